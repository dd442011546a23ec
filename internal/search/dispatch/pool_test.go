package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon/internal/search/metrics"
	"recon/internal/search/models"
	"recon/internal/search/orchestrator"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/requestcontext"
)

type call struct {
	id        uuid.UUID
	requestID string
	deadline  bool
	cancelled bool
}

type blockingExecutor struct {
	calls   chan call
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{calls: make(chan call, 4), release: make(chan struct{})}
}

func (e *blockingExecutor) Execute(ctx context.Context, id uuid.UUID) (*orchestrator.ExecutionSummary, error) {
	_, hasDeadline := ctx.Deadline()
	e.calls <- call{id: id, requestID: requestcontext.RequestID(ctx), deadline: hasDeadline, cancelled: ctx.Err() != nil}
	<-e.release
	return &orchestrator.ExecutionSummary{SearchID: id, Status: models.SearchStatusCompleted}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchDetachesFromRequest(t *testing.T) {
	exec := newBlockingExecutor()
	pool, err := New(exec, 2, WithLogger(quietLogger()), WithTimeout(time.Minute))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(requestcontext.WithRequestID(context.Background(), "req-42"))
	id := uuid.New()
	require.NoError(t, pool.Dispatch(ctx, id))
	cancel()

	select {
	case got := <-exec.calls:
		assert.Equal(t, id, got.id)
		assert.Equal(t, "req-42", got.requestID)
		assert.True(t, got.deadline)
		assert.False(t, got.cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("execution never started")
	}
	close(exec.release)
}

func TestDispatchRejectsWhenSaturated(t *testing.T) {
	exec := newBlockingExecutor()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	pool, err := New(exec, 1, WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	require.NoError(t, pool.Dispatch(context.Background(), uuid.New()))
	<-exec.calls

	err = pool.Dispatch(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchRejected))

	close(exec.release)
}

func TestDispatchAfterShutdown(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)
	pool, err := New(exec, 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, pool.Shutdown(context.Background()))

	err = pool.Dispatch(context.Background(), uuid.New())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New(nil, 1)
	assert.Error(t, err)
}
