// Package domain implements the domain analysis adapter.
package domain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
)

// Name is the adapter name recorded on results.
const Name = "DomainAdapter"

// Adapter fans a domain out to registration, DNS, certificate and
// subdomain sources.
type Adapter struct {
	mappers *normalize.Registry
	subs    []sources.SubSource
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithClock overrides the summary timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

func New(mappers *normalize.Registry, subs []sources.SubSource, opts ...Option) *Adapter {
	a := &Adapter{
		mappers: mappers,
		subs:    subs,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return Name
}

// RegisterMappers installs the domain payload mappers on b.
func RegisterMappers(b *normalize.Builder) {
	b.RegisterSuccessMapper(Name, normalize.DomainSuccess).
		RegisterErrorMapper(Name, normalize.APIError)
}

func (a *Adapter) SearchDomain(ctx context.Context, domain string) (normalize.Envelope, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	outcomes := sources.FanOut(ctx, domain, a.subs)
	breakdown, summary := sources.Collect(outcomes, a.now())

	a.logger.InfoContext(ctx, "domain analysis completed",
		"successful_sources", summary.SuccessfulSources,
		"total_sources", summary.TotalSources,
	)

	raw := models.Document{
		"domain":  domain,
		"sources": breakdown,
		"summary": summary.Document(),
	}
	return a.mappers.MapSuccess(Name, raw), nil
}
