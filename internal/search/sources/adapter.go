// Package sources defines the adapter contract and the per-type adapter registry.
//
// An adapter is one named information source. It exposes the capability
// interfaces for the search types it supports; the registry binds a query to
// the right capability call so the orchestrator only ever sees Tasks.
package sources

import (
	"context"
	"fmt"

	"recon/internal/search/models"
	"recon/internal/search/normalize"
	dErrors "recon/pkg/domain-errors"
)

// Adapter is an information source with a stable name.
type Adapter interface {
	Name() string
}

type EmailSearcher interface {
	Adapter
	SearchEmail(ctx context.Context, email string) (normalize.Envelope, error)
}

type DomainSearcher interface {
	Adapter
	SearchDomain(ctx context.Context, domain string) (normalize.Envelope, error)
}

type PhoneSearcher interface {
	Adapter
	SearchPhone(ctx context.Context, countryCode, number string) (normalize.Envelope, error)
}

type UsernameSearcher interface {
	Adapter
	SearchUsername(ctx context.Context, username string) (normalize.Envelope, error)
}

// HTTPClient is the part of transport.Client that sub-sources call.
type HTTPClient interface {
	Name() string
	GetJSON(ctx context.Context, path string, query map[string]string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
}

// PhoneParser splits a phone query into calling code and national number.
type PhoneParser interface {
	Parse(query string) (countryCode, number string, err error)
}

// Task is one bound adapter invocation.
type Task struct {
	Adapter string
	Run     func(ctx context.Context) (normalize.Envelope, error)
}

// Registry maps each search type to its ordered adapters. It is immutable.
type Registry struct {
	byType map[models.SearchType][]Adapter
	phone  PhoneParser
}

// NewRegistry validates that every adapter implements the capability of the
// type it is registered under. parser is required when phone adapters exist.
func NewRegistry(bindings map[models.SearchType][]Adapter, parser PhoneParser) (*Registry, error) {
	r := &Registry{byType: make(map[models.SearchType][]Adapter, len(bindings)), phone: parser}
	for t, adapters := range bindings {
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown search type %q", t)
		}
		seen := make(map[string]bool, len(adapters))
		for _, a := range adapters {
			if a == nil {
				return nil, fmt.Errorf("nil adapter registered for %s", t)
			}
			if seen[a.Name()] {
				return nil, fmt.Errorf("adapter %s registered twice for %s", a.Name(), t)
			}
			seen[a.Name()] = true
			if !supports(t, a) {
				return nil, fmt.Errorf("adapter %s cannot serve %s searches", a.Name(), t)
			}
		}
		if t == models.SearchTypePhone && len(adapters) > 0 && parser == nil {
			return nil, fmt.Errorf("phone adapters require a phone parser")
		}
		r.byType[t] = append([]Adapter(nil), adapters...)
	}
	return r, nil
}

// Adapters returns the ordered adapters for t.
func (r *Registry) Adapters(t models.SearchType) []Adapter {
	return append([]Adapter(nil), r.byType[t]...)
}

// Bind resolves t's adapters into tasks for query. No adapters yields no tasks.
func (r *Registry) Bind(t models.SearchType, query string) ([]Task, error) {
	adapters := r.byType[t]
	if len(adapters) == 0 {
		return nil, nil
	}

	var countryCode, number string
	if t == models.SearchTypePhone {
		var err error
		countryCode, number, err = r.phone.Parse(query)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid phone number")
		}
	}

	tasks := make([]Task, 0, len(adapters))
	for _, a := range adapters {
		tasks = append(tasks, Task{Adapter: a.Name(), Run: bind(t, a, query, countryCode, number)})
	}
	return tasks, nil
}

func supports(t models.SearchType, a Adapter) bool {
	switch t {
	case models.SearchTypeEmail:
		_, ok := a.(EmailSearcher)
		return ok
	case models.SearchTypeDomain:
		_, ok := a.(DomainSearcher)
		return ok
	case models.SearchTypePhone:
		_, ok := a.(PhoneSearcher)
		return ok
	case models.SearchTypeUsername:
		_, ok := a.(UsernameSearcher)
		return ok
	}
	return false
}

func bind(t models.SearchType, a Adapter, query, countryCode, number string) func(context.Context) (normalize.Envelope, error) {
	switch t {
	case models.SearchTypeEmail:
		s := a.(EmailSearcher)
		return func(ctx context.Context) (normalize.Envelope, error) { return s.SearchEmail(ctx, query) }
	case models.SearchTypeDomain:
		s := a.(DomainSearcher)
		return func(ctx context.Context) (normalize.Envelope, error) { return s.SearchDomain(ctx, query) }
	case models.SearchTypePhone:
		s := a.(PhoneSearcher)
		return func(ctx context.Context) (normalize.Envelope, error) { return s.SearchPhone(ctx, countryCode, number) }
	default:
		s := a.(UsernameSearcher)
		return func(ctx context.Context) (normalize.Envelope, error) { return s.SearchUsername(ctx, query) }
	}
}
