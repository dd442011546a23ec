package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
)

// outcome is what one adapter task produced. env is always set: failures are
// mapped through the adapter's error mapper.
type outcome struct {
	adapter  string
	env      normalize.Envelope
	err      error
	panicked bool
	duration time.Duration
}

func (o outcome) label() string {
	switch {
	case o.panicked:
		return "panic"
	case o.err != nil || !o.env.Success:
		return "failure"
	}
	return "success"
}

type tally struct {
	successful          int
	failed              int
	persistedSuccessful int
	results             []*models.Result
	seen                map[string]bool
}

// claim reserves source for this execution. A source reported twice keeps
// its first row only.
func (t *tally) claim(source string) bool {
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	if t.seen[source] {
		return false
	}
	t.seen[source] = true
	return true
}

// fanOut starts every task at once and waits for all of them. Outcomes keep
// task order.
func (o *Orchestrator) fanOut(ctx context.Context, tasks []sources.Task) []outcome {
	if o.fanOutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fanOutTimeout)
		defer cancel()
	}

	outcomes := make([]outcome, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = o.invoke(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) invoke(ctx context.Context, task sources.Task) (out outcome) {
	ctx, span := o.tracer.Start(ctx, "search.adapter", trace.WithAttributes(
		attribute.String("adapter", task.Adapter),
	))
	start := time.Now()
	out.adapter = task.Adapter

	defer func() {
		if p := recover(); p != nil {
			out.err = fmt.Errorf("adapter %s panicked: %v", task.Adapter, p)
			out.panicked = true
		}
		if out.err != nil {
			out.env = o.mappers.MapError(task.Adapter, out.err)
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
		}
		out.duration = time.Since(start)
		span.End()
	}()

	env, err := task.Run(ctx)
	if err != nil {
		out.err = err
		return out
	}
	out.env = env
	return out
}

// persist writes the results of every outcome in adapter order.
//
// Failed adapters write nothing. Adapters reporting "lookup_results" write
// one row per sub-source; any other success writes one row for the adapter.
// A source name is written at most once per execution. Duplicates and rows
// that cannot be written count as failed sources.
func (o *Orchestrator) persist(ctx context.Context, search *models.Search, outcomes []outcome) tally {
	var t tally
	for _, out := range outcomes {
		o.metrics.ObserveAdapter(out.adapter, out.label(), out.duration)

		if out.err != nil || !out.env.Success {
			t.failed++
			o.logger.WarnContext(ctx, "adapter failed",
				"search_id", search.ID,
				"adapter", out.adapter,
				"error_code", out.env.ErrorCode,
				"message", out.env.Message,
				"duration_ms", out.duration.Milliseconds(),
			)
			continue
		}

		if raw, ok := out.env.Data["lookup_results"]; ok {
			if lookups, ok := models.LookupsFrom(raw); ok {
				for _, l := range lookups {
					score := confidenceOf(l.Data)
					r := models.NewResult(search.ID, l.Source, l.Data, &score, o.now())
					if !o.record(ctx, &t, r, out.adapter) {
						t.failed++
						continue
					}
					if r.Successful() {
						t.successful++
					} else {
						t.failed++
					}
				}
				continue
			}
		}

		summary, hasSummary := models.SummaryFrom(out.env.Data["summary"])
		var score *float64
		if hasSummary {
			c := summary.Completeness()
			score = &c
		} else if c, ok := toFloat(out.env.Data["confidence_score"]); ok {
			score = &c
		}
		r := models.NewResult(search.ID, out.adapter, out.env.Data, score, o.now())
		if !o.record(ctx, &t, r, out.adapter) {
			t.failed++
			continue
		}
		switch {
		case hasSummary:
			t.successful += summary.SuccessfulSources
			t.failed += max(summary.TotalSources-summary.SuccessfulSources, 0)
		case r.Successful():
			t.successful++
		default:
			t.failed++
		}
	}
	return t
}

// record claims the row's source and writes it. It reports false when the
// source was already written or the write failed.
func (o *Orchestrator) record(ctx context.Context, t *tally, r *models.Result, adapter string) bool {
	if !t.claim(r.Source) {
		o.logger.WarnContext(ctx, "duplicate source dropped",
			"search_id", r.SearchID,
			"adapter", adapter,
			"source", r.Source,
		)
		return false
	}
	return o.write(ctx, t, r, adapter)
}

func (o *Orchestrator) write(ctx context.Context, t *tally, r *models.Result, adapter string) bool {
	if err := o.results.Create(ctx, r); err != nil {
		o.metrics.IncrementPersistFailure()
		o.logger.ErrorContext(ctx, "failed to persist result",
			"search_id", r.SearchID,
			"adapter", adapter,
			"source", r.Source,
			"error", err,
		)
		return false
	}
	o.metrics.IncrementResultPersisted()
	t.results = append(t.results, r)
	if r.Successful() {
		t.persistedSuccessful++
	}
	return true
}

// confidenceOf reads a sub-source payload's "confidence", defaulting to 0.
func confidenceOf(doc models.Document) float64 {
	c, _ := toFloat(doc["confidence"])
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
