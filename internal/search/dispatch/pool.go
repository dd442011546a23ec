// Package dispatch runs search executions in the background on a bounded
// worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"recon/internal/search/metrics"
	"recon/internal/search/orchestrator"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/requestcontext"
)

// Executor runs one search to completion.
type Executor interface {
	Execute(ctx context.Context, searchID uuid.UUID) (*orchestrator.ExecutionSummary, error)
}

// Pool hands executions to a fixed set of workers. Submissions never block:
// when every worker is busy Dispatch is rejected and the search stays pending.
type Pool struct {
	workers *ants.Pool
	exec    Executor
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Pool)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithTimeout bounds a single background execution. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.timeout = d
	}
}

// DefaultWorkers is used when size is not positive.
const DefaultWorkers = 16

func New(exec Executor, size int, opts ...Option) (*Pool, error) {
	if exec == nil {
		return nil, errors.New("dispatch: executor is required")
	}
	if size <= 0 {
		size = DefaultWorkers
	}
	p := &Pool{
		exec:    exec,
		timeout: 5 * time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	workers, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("search execution panicked", "panic", fmt.Sprint(v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.workers = workers
	return p, nil
}

// Dispatch schedules searchID for execution. The execution keeps ctx's request
// id but not its cancellation.
func (p *Pool) Dispatch(ctx context.Context, searchID uuid.UUID) error {
	bg := requestcontext.Detach(ctx)
	err := p.workers.Submit(func() {
		p.run(bg, searchID)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.metrics.IncrementDispatchRejected()
		return dErrors.New(dErrors.CodeUnavailable, "execution capacity exhausted")
	case errors.Is(err, ants.ErrPoolClosed):
		return dErrors.New(dErrors.CodeUnavailable, "executor is shutting down")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to dispatch search")
}

func (p *Pool) run(ctx context.Context, searchID uuid.UUID) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	summary, err := p.exec.Execute(ctx, searchID)
	if err != nil {
		p.logger.WarnContext(ctx, "background search execution failed",
			"search_id", searchID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	p.logger.DebugContext(ctx, "background search execution finished",
		"search_id", searchID,
		"status", summary.Status,
		"results_count", summary.ResultsCount,
	)
}

// Running is the number of executions in flight.
func (p *Pool) Running() int {
	return p.workers.Running()
}

// Shutdown stops accepting work and waits for in-flight executions until ctx
// is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	wait := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if err := p.workers.ReleaseTimeout(wait); err != nil {
		return fmt.Errorf("drain worker pool: %w", err)
	}
	return nil
}
