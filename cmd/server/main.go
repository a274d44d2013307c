package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-hail-core/internal/config"
	httpapi "github.com/example/ride-hail-core/internal/http"
	"github.com/example/ride-hail-core/internal/logging"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel, "api")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// optional migration: apply migrations/001_create_wallet.sql if requested
	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_wallet.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_wallet.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(cfg, logger)
	go srv.Refresher.Run(ctx)
	defer srv.Arrival.Stop()

	hs := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	logger.Info("ride-hail core listening", "addr", cfg.HTTPAddr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
