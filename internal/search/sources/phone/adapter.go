// Package phone implements the phone lookup adapter and its parsers.
package phone

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
)

// Name is the adapter name recorded on results.
const Name = "PhoneLookupAdapter"

// LinkedEmailSource names the follow-up lookup over emails found in phone results.
const LinkedEmailSource = "linked_email"

const defaultMaxLinkedEmails = 3

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// Lookup is one phone upstream.
type Lookup interface {
	Name() string
	LookupPhone(ctx context.Context, countryCode, number string) (models.Document, error)
}

// Adapter fans a phone number out to every Lookup, then searches the emails
// those lookups reveal.
type Adapter struct {
	mappers   *normalize.Registry
	lookups   []Lookup
	linked    sources.SubSource
	maxLinked int
	logger    *slog.Logger
	now       func() time.Time
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

// WithLinkedEmail enables the follow-up search of up to limit discovered emails
// through src. limit <= 0 keeps the default of three.
func WithLinkedEmail(src sources.SubSource, limit int) Option {
	return func(a *Adapter) {
		a.linked = src
		if limit > 0 {
			a.maxLinked = limit
		}
	}
}

func New(mappers *normalize.Registry, lookups []Lookup, opts ...Option) *Adapter {
	a := &Adapter{
		mappers:   mappers,
		lookups:   lookups,
		maxLinked: defaultMaxLinkedEmails,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return Name
}

// RegisterMappers installs the phone payload mappers on b.
func RegisterMappers(b *normalize.Builder) {
	b.RegisterSuccessMapper(Name, normalize.LookupSuccess("phone", "phone_lookup", "Phone lookup completed successfully")).
		RegisterErrorMapper(Name, normalize.APIError)
}

func (a *Adapter) SearchPhone(ctx context.Context, countryCode, number string) (normalize.Envelope, error) {
	full := countryCode + number
	subs := make([]sources.SubSource, 0, len(a.lookups))
	for _, l := range a.lookups {
		subs = append(subs, sources.NewFunc(l.Name(), func(ctx context.Context, _ string) (models.Document, error) {
			return l.LookupPhone(ctx, countryCode, number)
		}))
	}
	outcomes := sources.FanOut(ctx, full, subs)

	emails := LinkedEmails(outcomes, a.maxLinked)
	if a.linked != nil && len(emails) > 0 {
		a.logger.InfoContext(ctx, "searching emails linked to phone number",
			"emails", len(emails),
		)
		outcomes = append(outcomes, sources.FanOut(ctx, full, []sources.SubSource{a.followUp(emails)})...)
	}

	lookups, summary := sources.Collect(outcomes, a.now())
	a.logger.InfoContext(ctx, "phone lookup completed",
		"successful_sources", summary.SuccessfulSources,
		"total_sources", summary.TotalSources,
	)

	raw := models.Document{
		"phone":          full,
		"country_code":   countryCode,
		"phone_number":   number,
		"lookup_results": lookups,
		"summary":        summary.Document(),
	}
	if len(emails) > 0 {
		raw["linked_emails"] = emails
	}
	return a.mappers.MapSuccess(Name, raw), nil
}

// followUp searches each email through the linked source. It is found when
// any email produced a finding.
func (a *Adapter) followUp(emails []string) sources.SubSource {
	return sources.NewFunc(LinkedEmailSource, func(ctx context.Context, _ string) (models.Document, error) {
		subs := make([]sources.SubSource, 0, len(emails))
		for _, email := range emails {
			subs = append(subs, sources.NewFunc(email, func(ctx context.Context, _ string) (models.Document, error) {
				return a.linked.Lookup(ctx, email)
			}))
		}
		results := models.Document{}
		found := 0
		for _, o := range sources.FanOut(ctx, "", subs) {
			results[o.Source] = o.Payload()
			if o.Successful() {
				found++
			}
		}
		confidence := 0.0
		if found > 0 {
			confidence = 0.6
		}
		return models.Document{
			"found":  found > 0,
			"source": LinkedEmailSource,
			"data": models.Document{
				"emails_searched": emails,
				"results":         results,
			},
			"confidence": confidence,
		}, nil
	})
}

// LinkedEmails collects up to limit distinct lowercase email addresses from the
// payloads of successful outcomes, in discovery order.
func LinkedEmails(outcomes []sources.Outcome, limit int) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(v any)
	walk = func(v any) {
		if len(out) >= limit {
			return
		}
		switch t := v.(type) {
		case string:
			for _, m := range emailPattern.FindAllString(t, -1) {
				m = strings.ToLower(m)
				if !seen[m] && len(out) < limit {
					seen[m] = true
					out = append(out, m)
				}
			}
		case map[string]any:
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case []string:
			for _, item := range t {
				walk(item)
			}
		case []models.Document:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, o := range outcomes {
		if o.Successful() {
			walk(o.Data["data"])
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
