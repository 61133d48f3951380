package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mail-spool/internal/server"
	"mail-spool/internal/spool"
)

// shutdownTimeout is how long in-flight requests get after a signal.
const shutdownTimeout = 5 * time.Second

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, cfg server.Config) error {
	server.ConfigureLogging(cfg.Log)
	server.WarnOnRiskyConfig(cfg)

	store, err := spool.New(cfg.Spool)
	if err != nil {
		return err
	}
	if err := store.Check(); err != nil {
		server.Error("spool directory unusable", map[string]any{"dir": store.Config().Dir}, err)
		return fmt.Errorf("spool check: %w", err)
	}

	srv := server.New(cfg, store)

	errCh := make(chan error, 1)
	go func() {
		server.Info("starting", map[string]any{
			"addr":      cfg.Addr,
			"spool_dir": store.Config().Dir,
			"version":   cfg.Build.Version,
			"commit":    cfg.Build.Commit,
		})
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		server.Info("shutting down", map[string]any{"reason": context.Cause(ctx).Error()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			server.Error("shutdown failed", nil, err)
			return err
		}
		server.Info("shutdown complete", nil)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Error("server failed", nil, err)
			return err
		}
		return nil
	}
}
