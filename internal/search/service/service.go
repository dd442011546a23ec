// Package service is the application layer for searches: it creates them,
// hands them to the executor and serves the read side.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"recon/internal/search/events"
	"recon/internal/search/metrics"
	"recon/internal/search/models"
	"recon/internal/search/orchestrator"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/platform/sentinel"
	"recon/pkg/requestcontext"
)

type SearchStore interface {
	Create(ctx context.Context, search *models.Search) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Search, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter models.ListFilter) (*models.SearchPage, error)
	Overview(ctx context.Context) (*models.Overview, error)
}

type ResultStore interface {
	DeleteBySearch(ctx context.Context, searchID uuid.UUID) (int, error)
	StatsBySearch(ctx context.Context, searchID uuid.UUID) (map[string]models.SourceStats, error)
}

// Runner executes and summarizes searches. *orchestrator.Orchestrator
// satisfies it.
type Runner interface {
	Execute(ctx context.Context, searchID uuid.UUID) (*orchestrator.ExecutionSummary, error)
	Summary(ctx context.Context, searchID uuid.UUID) (*orchestrator.SearchSummary, error)
}

// Dispatcher schedules a background execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, searchID uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Lifecycle) error
}

// StoreTx groups store writes into one transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	searches   SearchStore
	results    ResultStore
	runner     Runner
	dispatcher Dispatcher
	publisher  Publisher
	tx         StoreTx
	locker     orchestrator.Locker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDispatcher enables CreateAndDispatch. Without one, created searches
// run synchronously.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLocker makes Delete hold the execution lease, so a search cannot be
// removed while a worker is persisting its results.
func WithLocker(l orchestrator.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func New(searches SearchStore, results ResultStore, runner Runner, opts ...Option) *Service {
	s := &Service{
		searches:  searches,
		results:   results,
		runner:    runner,
		publisher: events.Discard{},
		tx:        &inMemoryStoreTx{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new pending search.
func (s *Service) Create(ctx context.Context, searchType models.SearchType, query string) (*models.Search, error) {
	search, err := models.NewSearch(uuid.New(), searchType, query, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			de, _ := dErrors.As(err)
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}
	if err := s.searches.Create(ctx, search); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "search already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create search")
	}

	s.metrics.IncrementSearchCreated(string(search.Type))
	s.publish(ctx, events.TypeSearchCreated, search)
	s.logger.InfoContext(ctx, "search created",
		"search_id", search.ID,
		"search_type", search.Type,
		"request_id", requestcontext.RequestID(ctx),
	)
	return search, nil
}

// CreateAndDispatch creates a search and schedules its execution. A rejected
// dispatch is not an error: the search stays pending and can be run with
// Execute.
func (s *Service) CreateAndDispatch(ctx context.Context, searchType models.SearchType, query string) (*models.Search, error) {
	search, err := s.Create(ctx, searchType, query)
	if err != nil {
		return nil, err
	}

	if s.dispatcher == nil {
		if _, err := s.runner.Execute(ctx, search.ID); err != nil {
			s.logger.WarnContext(ctx, "search execution failed",
				"search_id", search.ID,
				"error", err,
			)
		}
		return s.current(ctx, search), nil
	}

	if err := s.dispatcher.Dispatch(ctx, search.ID); err != nil {
		s.logger.WarnContext(ctx, "search left pending",
			"search_id", search.ID,
			"error", err,
		)
	}
	return search, nil
}

// Execute runs a pending search in the caller's context.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) (*orchestrator.ExecutionSummary, error) {
	return s.runner.Execute(ctx, id)
}

// Get returns a search with its results grouped by source.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*orchestrator.SearchSummary, error) {
	return s.runner.Summary(ctx, id)
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) (*models.SearchPage, error) {
	filter.Normalize()
	page, err := s.searches.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list searches")
	}
	return page, nil
}

// Stats returns search counts by status and by type.
func (s *Service) Stats(ctx context.Context) (*models.Overview, error) {
	overview, err := s.searches.Overview(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load search stats")
	}
	return overview, nil
}

// SourceStats returns per-source result counts and mean confidence for a search.
func (s *Service) SourceStats(ctx context.Context, id uuid.UUID) (map[string]models.SourceStats, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.results.StatsBySearch(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result stats")
	}
	return stats, nil
}

// Delete removes a search and its results. Searches still executing cannot
// be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if s.locker != nil {
		token, err := s.locker.Acquire(ctx, id.String())
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "search is executing")
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire execution lease")
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), id.String(), token); err != nil {
				s.logger.WarnContext(ctx, "failed to release execution lease", "search_id", id, "error", err)
			}
		}()
	}

	var deleted *models.Search
	removed := 0
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		search, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if search.Status == models.SearchStatusInProgress {
			return dErrors.New(dErrors.CodeConflict, "search is executing")
		}
		n, err := s.results.DeleteBySearch(txCtx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete results")
		}
		if err := s.searches.Delete(txCtx, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "search not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete search")
		}
		deleted, removed = search, n
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.TypeSearchDeleted, deleted)
	s.logger.InfoContext(ctx, "search deleted",
		"search_id", id,
		"results_deleted", removed,
	)
	return nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	search, err := s.searches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "search not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load search")
	}
	return search, nil
}

func (s *Service) current(ctx context.Context, search *models.Search) *models.Search {
	if latest, err := s.searches.FindByID(ctx, search.ID); err == nil {
		return latest
	}
	return search
}

func (s *Service) publish(ctx context.Context, t events.Type, search *models.Search) {
	event := events.FromSearch(t, search, 0, requestcontext.Now(ctx))
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"search_id", search.ID,
			"type", t,
			"error", err,
		)
	}
}

// inMemoryStoreTx serializes units of work for the in-memory stores.
type inMemoryStoreTx struct {
	mu sync.Mutex
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
