// Package app wires configuration into a running search engine: stores,
// adapters, executor, event sink and HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	httpapi "recon/internal/http"
	"recon/internal/platform/config"
	"recon/internal/platform/kafka"
	httpmetrics "recon/internal/platform/metrics"
	"recon/internal/platform/postgres"
	platformredis "recon/internal/platform/redis"
	"recon/internal/search/dispatch"
	"recon/internal/search/events"
	"recon/internal/search/handler"
	"recon/internal/search/lease"
	"recon/internal/search/metrics"
	"recon/internal/search/orchestrator"
	"recon/internal/search/service"
	resultstore "recon/internal/search/store/result"
	searchstore "recon/internal/search/store/search"
	"recon/pkg/platform/tx"
)

// App is a fully wired engine. Close releases everything Build opened.
type App struct {
	Service      *service.Service
	Orchestrator *orchestrator.Orchestrator
	Pool         *dispatch.Pool
	Router       http.Handler
	Registry     *prometheus.Registry

	db      *sql.DB
	redis   *platformredis.Client
	kafka   *kgo.Client
	logger  *slog.Logger
	closers []func() error
}

type Option func(*buildOptions)

type buildOptions struct {
	background bool
}

// WithoutBackground runs created searches inline instead of on the worker
// pool. The CLI uses it.
func WithoutBackground() Option {
	return func(o *buildOptions) {
		o.background = false
	}
}

// Build connects the configured backends. Postgres, Redis and Kafka are each
// optional; without them the engine runs on in-memory stores, a process-local
// lease and a log-only event sink.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	bo := buildOptions{background: true}
	for _, opt := range opts {
		opt(&bo)
	}

	a := &App{logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	searchMetrics := metrics.NewWithRegistry(a.Registry)

	if err := a.openBackends(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	memSearches := searchstore.NewInMemory()
	var (
		searches orchestratorSearchStore = memSearches
		results  resultStore             = resultstore.NewInMemory(resultstore.WithSearches(memSearches))
		storeTx  service.StoreTx
	)
	if a.db != nil {
		searches = searchstore.NewPostgres(a.db)
		results = resultstore.NewPostgres(a.db)
		storeTx = tx.NewTransactor(a.db)
	}

	var locker orchestrator.Locker = lease.NewMemory(cfg.Executor.LeaseTTL)
	if a.redis != nil {
		locker = lease.NewRedis(a.redis.Client, cfg.Executor.LeaseTTL)
	}
	var publisher events.Publisher = events.NewLog(logger)
	if a.kafka != nil {
		publisher = events.NewKafka(a.kafka, cfg.Kafka.Topic)
	}

	mappers := Mappers(logger)
	adapters, err := Adapters(cfg.Sources, mappers, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("register adapters: %w", err)
	}

	a.Orchestrator = orchestrator.New(searches, results, adapters, mappers,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(searchMetrics),
		orchestrator.WithLocker(locker),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithFanOutTimeout(cfg.Executor.FanOutTimeout),
	)

	svcOpts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(searchMetrics),
		service.WithPublisher(publisher),
		service.WithStoreTx(storeTx),
		service.WithLocker(locker),
	}
	if bo.background {
		a.Pool, err = dispatch.New(a.Orchestrator, cfg.Executor.Workers,
			dispatch.WithLogger(logger),
			dispatch.WithMetrics(searchMetrics),
			dispatch.WithTimeout(cfg.Executor.ExecutionTimeout),
		)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		svcOpts = append(svcOpts, service.WithDispatcher(a.Pool))
	}
	a.Service = service.New(searches, results, a.Orchestrator, svcOpts...)

	a.Router = httpapi.NewRouter(httpapi.Options{
		Metrics:  httpmetrics.NewWithRegistry(a.Registry),
		Gatherer: a.Registry,
		Health:   a.healthChecks(),
	}, handler.New(a.Service, logger))

	logger.Info("search engine ready",
		"postgres", a.db != nil,
		"redis", a.redis != nil,
		"kafka", a.kafka != nil,
		"background", bo.background,
	)
	return a, nil
}

// orchestratorSearchStore is what both the orchestrator and the service need
// from the search store.
type orchestratorSearchStore interface {
	orchestrator.SearchStore
	service.SearchStore
}

type resultStore interface {
	orchestrator.ResultStore
	service.ResultStore
}

func (a *App) openBackends(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rc, err := platformredis.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		a.redis = rc
		a.closers = append(a.closers, rc.Close)
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return err
	}
	if kc != nil {
		a.kafka = kc
		a.closers = append(a.closers, func() error { kc.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) healthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.kafka != nil {
		checks["kafka"] = a.kafka.Ping
	}
	return checks
}

// Shutdown drains in-flight executions, then closes backends.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
