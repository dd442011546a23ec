// Package email implements the email lookup adapter.
package email

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
const Name = "EmailAdapter"

// Adapter fans an email address out to its sub-sources.
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

// RegisterMappers installs the email payload mappers on b.
func RegisterMappers(b *normalize.Builder) {
	b.RegisterSuccessMapper(Name, normalize.LookupSuccess("email", "email_lookup", "Email lookup completed successfully")).
		RegisterErrorMapper(Name, normalize.APIError)
}

func (a *Adapter) SearchEmail(ctx context.Context, address string) (normalize.Envelope, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	outcomes := sources.FanOut(ctx, address, a.subs)
	lookups, summary := sources.Collect(outcomes, a.now())

	a.logger.InfoContext(ctx, "email lookup completed",
		"successful_sources", summary.SuccessfulSources,
		"total_sources", summary.TotalSources,
	)

	raw := models.Document{
		"email":          address,
		"lookup_results": lookups,
		"summary":        summary.Document(),
	}
	return a.mappers.MapSuccess(Name, raw), nil
}
