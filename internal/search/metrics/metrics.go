package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for search execution.
// All methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	SearchesCreated   *prometheus.CounterVec
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	AdapterOutcomes   *prometheus.CounterVec
	AdapterDuration   *prometheus.HistogramVec
	ResultsPersisted  prometheus.Counter
	PersistFailures   prometheus.Counter
	DispatchRejected  prometheus.Counter
}

// New registers search metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers search metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_searches_created_total",
			Help: "Total searches created by search type",
		}, []string{"search_type"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_search_executions_total",
			Help: "Search executions by search type and final status",
		}, []string{"search_type", "status"}),
		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recon_search_execution_duration_seconds",
			Help:    "Wall time of a search execution from start to final write",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"search_type"}),
		AdapterOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_adapter_outcomes_total",
			Help: "Adapter invocations by adapter and outcome (success, failure, panic)",
		}, []string{"adapter", "outcome"}),
		AdapterDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recon_adapter_duration_seconds",
			Help:    "Duration of a single adapter invocation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"adapter"}),
		ResultsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "recon_results_persisted_total",
			Help: "Result rows written",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "recon_result_persist_failures_total",
			Help: "Result rows that could not be written",
		}),
		DispatchRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "recon_dispatch_rejected_total",
			Help: "Background executions rejected because the worker pool was full or closed",
		}),
	}
}

func (m *Metrics) IncrementSearchCreated(searchType string) {
	if m == nil {
		return
	}
	m.SearchesCreated.WithLabelValues(searchType).Inc()
}

// ObserveExecution records a finished execution. Call with time.Now() taken at start.
func (m *Metrics) ObserveExecution(searchType, status string, start time.Time) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(searchType, status).Inc()
	m.ExecutionDuration.WithLabelValues(searchType).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveAdapter(adapter, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AdapterOutcomes.WithLabelValues(adapter, outcome).Inc()
	m.AdapterDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

func (m *Metrics) IncrementResultPersisted() {
	if m == nil {
		return
	}
	m.ResultsPersisted.Inc()
}

func (m *Metrics) IncrementPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) IncrementDispatchRejected() {
	if m == nil {
		return
	}
	m.DispatchRejected.Inc()
}
