package sources

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"recon/internal/search/models"
	"recon/internal/search/normalize"
)

// SubSource is one upstream consulted by an adapter.
type SubSource interface {
	Name() string
	Lookup(ctx context.Context, query string) (models.Document, error)
}

type funcSource struct {
	name string
	fn   func(ctx context.Context, query string) (models.Document, error)
}

func (f funcSource) Name() string { return f.name }

func (f funcSource) Lookup(ctx context.Context, query string) (models.Document, error) {
	return f.fn(ctx, query)
}

// NewFunc adapts fn to a SubSource named name.
func NewFunc(name string, fn func(ctx context.Context, query string) (models.Document, error)) SubSource {
	return funcSource{name: name, fn: fn}
}

// Outcome is the typed result of one sub-source lookup: exactly one of Data or Err is set.
type Outcome struct {
	Source   string
	Data     models.Document
	Err      error
	Duration time.Duration
}

// Payload is the document recorded for the outcome; failures become {error, type}.
func (o Outcome) Payload() models.Document {
	if o.Err != nil {
		return ErrorDocument(o.Err)
	}
	if o.Data == nil {
		return models.Document{}
	}
	return o.Data
}

// Successful applies models.DocumentSuccessful to the payload.
func (o Outcome) Successful() bool {
	return o.Err == nil && models.DocumentSuccessful(o.Payload())
}

// ErrorDocument is the payload recorded for a failed sub-source.
func ErrorDocument(err error) models.Document {
	return models.Document{"error": err.Error(), "type": normalize.ErrorKind(err)}
}

// FanOut runs every sub-source concurrently and returns their outcomes in
// declaration order. A failing or panicking sub-source never cancels siblings.
func FanOut(ctx context.Context, query string, subs []SubSource) []Outcome {
	outcomes := make([]Outcome, len(subs))
	var g errgroup.Group
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = runOne(ctx, query, sub)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func runOne(ctx context.Context, query string, sub SubSource) (out Outcome) {
	start := time.Now()
	out.Source = sub.Name()
	defer func() {
		if p := recover(); p != nil {
			out.Data = nil
			out.Err = fmt.Errorf("%s panicked: %v", sub.Name(), p)
		}
		out.Duration = time.Since(start)
	}()
	data, err := sub.Lookup(ctx, query)
	if err != nil {
		out.Err = err
		return out
	}
	out.Data = data
	return out
}

// Collect folds outcomes into the ordered breakdown and its summary.
func Collect(outcomes []Outcome, now time.Time) (models.Lookups, models.Summary) {
	lookups := make(models.Lookups, 0, len(outcomes))
	summary := models.Summary{TotalSources: len(outcomes), Timestamp: now}
	for _, o := range outcomes {
		lookups = append(lookups, models.Lookup{Source: o.Source, Data: o.Payload()})
		if o.Successful() {
			summary.SuccessfulSources++
		}
	}
	summary.FailedSources = summary.TotalSources - summary.SuccessfulSources
	summary.FoundData = summary.SuccessfulSources > 0
	return lookups, summary
}
