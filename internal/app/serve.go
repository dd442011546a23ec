package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"recon/internal/platform/config"
	"recon/internal/platform/httpserver"
)

// Serve builds the engine and serves HTTP until ctx is cancelled, then
// drains the server and the executor within cfg.Server.ShutdownTimeout.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server, a.Router)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting recon", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
