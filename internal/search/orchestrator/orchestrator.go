// Package orchestrator executes searches.
//
// Execute fans one search out to every adapter bound to its type, persists what
// the adapters found and drives the search row through
// pending -> in_progress -> completed|failed. A failing or panicking adapter
// is recorded as a failed outcome and never aborts its siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recon/internal/search/events"
	"recon/internal/search/lease"
	"recon/internal/search/metrics"
	"recon/internal/search/models"
	"recon/internal/search/normalize"
	"recon/internal/search/sources"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/platform/sentinel"
)

type SearchStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Search, error)
	Transition(ctx context.Context, search *models.Search, from models.SearchStatus) error
}

type ResultStore interface {
	Create(ctx context.Context, result *models.Result) error
	ListBySearch(ctx context.Context, searchID uuid.UUID) ([]*models.Result, error)
}

// Binder resolves a search into one task per adapter, in registration order.
type Binder interface {
	Bind(searchType models.SearchType, query string) ([]sources.Task, error)
}

// Locker grants the per-search execution lease. Acquire returns
// sentinel.ErrConflict while the lease is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string) (string, error)
	Release(ctx context.Context, key, token string) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Lifecycle) error
}

// ExecutionSummary is the outcome of one Execute call.
type ExecutionSummary struct {
	SearchID     uuid.UUID           `json:"search_id"`
	Status       models.SearchStatus `json:"status"`
	ResultsCount int                 `json:"results_count"`
	FailedCount  int                 `json:"failed_count"`
	ErrorMessage *string             `json:"error_message"`
	Results      []*models.Result    `json:"results"`
}

// SearchSummary is a stored search with its results grouped by source.
type SearchSummary struct {
	Search  *models.Search `json:"search"`
	Results ResultsSummary `json:"results"`
}

type ResultsSummary struct {
	Total    int                           `json:"total"`
	BySource map[string]models.SourceStats `json:"by_source"`
	Data     []*models.Result              `json:"data"`
}

type Orchestrator struct {
	searches      SearchStore
	results       ResultStore
	binder        Binder
	mappers       *normalize.Registry
	locker        Locker
	publisher     Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	fanOutTimeout time.Duration
	now           func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLocker replaces the process-local lease table, e.g. with a Redis lease.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithFanOutTimeout bounds the time adapters get as a group. Zero means no
// bound beyond the caller's context.
func WithFanOutTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.fanOutTimeout = d
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the time source for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

const tracerName = "recon/internal/search/orchestrator"

func New(searches SearchStore, results ResultStore, binder Binder, mappers *normalize.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searches:  searches,
		results:   results,
		binder:    binder,
		mappers:   mappers,
		locker:    lease.NewMemory(lease.DefaultTTL),
		publisher: events.Discard{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs a pending search to completion.
//
// Errors: not_found when the search does not exist, invalid_state when it is
// not pending, conflict when another execution holds its lease, validation
// when no adapter can serve it (the search is failed first), internal when a
// state write fails. Adapter failures are never returned; they are counted.
func (o *Orchestrator) Execute(ctx context.Context, searchID uuid.UUID) (*ExecutionSummary, error) {
	ctx, span := o.tracer.Start(ctx, "search.execute", trace.WithAttributes(
		attribute.String("search.id", searchID.String()),
	))
	defer span.End()
	start := time.Now()

	search, err := o.searches.FindByID(ctx, searchID)
	if err != nil {
		return nil, o.storeError(err, "failed to load search")
	}
	if err := search.CanStart(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("search.type", string(search.Type)))

	token, err := o.locker.Acquire(ctx, searchID.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "search is already executing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire execution lease")
	}
	defer o.release(ctx, searchID, token)

	// Writes below outlive a cancelled caller so a started search always ends terminal.
	store := context.WithoutCancel(ctx)

	tasks, err := o.binder.Bind(search.Type, search.Query)
	if err != nil || len(tasks) == 0 {
		reason := dErrors.New(dErrors.CodeValidation, "no adapters available for search type: "+string(search.Type))
		if err != nil {
			reason = dErrors.Wrap(err, dErrors.CodeValidation, "cannot bind search")
			if de, ok := dErrors.As(err); ok {
				reason = de
			}
		}
		if ferr := o.failSetup(store, search, reason.Error(), start); ferr != nil {
			return nil, ferr
		}
		span.SetStatus(codes.Error, reason.Error())
		return nil, reason
	}

	search.ApplyStart(o.now())
	if err := o.searches.Transition(store, search, models.SearchStatusPending); err != nil {
		return nil, o.storeError(err, "failed to start search")
	}
	o.publish(store, events.FromSearch(events.TypeSearchStarted, search, 0, o.now()))
	o.logger.InfoContext(ctx, "search started",
		"search_id", search.ID,
		"search_type", search.Type,
		"adapters", len(tasks),
	)

	outcomes := o.fanOut(ctx, tasks)
	t := o.persist(store, search, outcomes)

	status, message := conclude(t)
	if err := search.Finish(status, t.persistedSuccessful, message, o.now()); err != nil {
		return nil, err
	}
	if err := o.searches.Transition(store, search, models.SearchStatusInProgress); err != nil {
		o.logger.ErrorContext(ctx, "failed to record search outcome",
			"search_id", search.ID,
			"error", err,
		)
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record search outcome")
	}

	o.publish(store, events.FromSearch(events.TerminalType(status), search, t.failed, o.now()))
	o.metrics.ObserveExecution(string(search.Type), string(status), start)
	o.logger.InfoContext(ctx, "search finished",
		"search_id", search.ID,
		"status", status,
		"results_count", search.ResultsCount,
		"failed_count", t.failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	span.SetAttributes(
		attribute.String("search.status", string(status)),
		attribute.Int("search.results_count", search.ResultsCount),
	)

	return &ExecutionSummary{
		SearchID:     search.ID,
		Status:       search.Status,
		ResultsCount: search.ResultsCount,
		FailedCount:  t.failed,
		ErrorMessage: search.ErrorMessage,
		Results:      t.results,
	}, nil
}

// Summary returns the stored search and its results grouped by source.
func (o *Orchestrator) Summary(ctx context.Context, searchID uuid.UUID) (*SearchSummary, error) {
	search, err := o.searches.FindByID(ctx, searchID)
	if err != nil {
		return nil, o.storeError(err, "failed to load search")
	}
	results, err := o.results.ListBySearch(ctx, searchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load results")
	}
	return &SearchSummary{
		Search: search,
		Results: ResultsSummary{
			Total:    len(results),
			BySource: models.Aggregate(results),
			Data:     results,
		},
	}, nil
}

// Recount recomputes results_count from stored results with the same
// classification Execute uses.
func Recount(results []*models.Result) int {
	n := 0
	for _, r := range results {
		if r.Successful() {
			n++
		}
	}
	return n
}

func (o *Orchestrator) failSetup(ctx context.Context, search *models.Search, message string, start time.Time) error {
	if err := search.Fail(message, o.now()); err != nil {
		return err
	}
	if err := o.searches.Transition(ctx, search, models.SearchStatusPending); err != nil {
		return o.storeError(err, "failed to record search failure")
	}
	o.publish(ctx, events.FromSearch(events.TypeSearchFailed, search, 0, o.now()))
	o.metrics.ObserveExecution(string(search.Type), string(search.Status), start)
	o.logger.WarnContext(ctx, "search failed before start",
		"search_id", search.ID,
		"search_type", search.Type,
		"reason", message,
	)
	return nil
}

func (o *Orchestrator) release(ctx context.Context, searchID uuid.UUID, token string) {
	if err := o.locker.Release(context.WithoutCancel(ctx), searchID.String(), token); err != nil {
		o.logger.WarnContext(ctx, "failed to release execution lease",
			"search_id", searchID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event events.Lifecycle) {
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"search_id", event.SearchID,
			"type", event.Type,
			"error", err,
		)
	}
}

func (o *Orchestrator) storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "search not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "search is no longer pending")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// conclude derives the terminal status and error message from the tally.
func conclude(t tally) (models.SearchStatus, *string) {
	if t.successful == 0 {
		msg := "no sources produced results"
		switch {
		case t.failed == 1:
			msg = "1 source failed"
		case t.failed > 1:
			msg = fmt.Sprintf("all %d sources failed", t.failed)
		}
		return models.SearchStatusFailed, &msg
	}
	switch {
	case t.failed == 1:
		msg := "1 source failed"
		return models.SearchStatusCompleted, &msg
	case t.failed > 1:
		msg := fmt.Sprintf("%d sources failed", t.failed)
		return models.SearchStatusCompleted, &msg
	}
	return models.SearchStatusCompleted, nil
}
