package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civora/approvals/internal/authz"
	"github.com/civora/approvals/internal/config"
	"github.com/civora/approvals/internal/engine"
	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/export"
	"github.com/civora/approvals/internal/notify"
	"github.com/civora/approvals/internal/registry"
	"github.com/civora/approvals/internal/server"
	"github.com/civora/approvals/internal/sla"
	"github.com/civora/approvals/internal/store/postgres"
)

func runServe() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Load the gate catalog.
	reg, err := registry.LoadFile(cfg.GatesFile)
	if err != nil {
		return err
	}
	logger.Info("gate catalog loaded", "file", cfg.GatesFile, "entity_types", len(reg.EntityTypes()))

	// Load the role table, if configured.
	var checker authz.Checker = authz.AllowAll{}
	if cfg.RolesFile != "" {
		roles, err := authz.LoadFile(cfg.RolesFile)
		if err != nil {
			return err
		}
		checker = roles
		logger.Info("role table loaded", "file", cfg.RolesFile)
	}

	// Connect to Postgres.
	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	// Create event publisher and notifier.
	var publisher events.Publisher
	var notifier notify.Notifier = notify.Noop{}
	if cfg.NATSURL != "" {
		pub, err := events.DialNATS(cfg.NATSURL)
		if err != nil {
			store.Close()
			return err
		}
		publisher = pub
		notifier = notify.NewBus(pub)
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		publisher = &events.NoopPublisher{}
		logger.Info("events disabled (APPROVALS_NATS_URL not set)")
	}

	// Create server components. The SSE hub tees every published event
	// to connected stream subscribers before it reaches NATS.
	hub := server.NewHub()
	fanout := hub.Fanout(publisher)
	eng := engine.New(store, reg, fanout, notifier, checker, logger)
	apvServer := server.New(eng, hub, logger)

	// Start HTTP server.
	var handler http.Handler = apvServer.NewHTTPHandler(cfg.AuthToken)
	handler = server.LoggingMiddleware(handler)
	handler = server.RecoveryMiddleware(handler)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "err", err)
		}
	}()

	// Start the SLA escalation sweeper.
	var sweeper *sla.Sweeper
	if cfg.SweepInterval > 0 {
		sweeper = sla.NewSweeper(store, fanout, notifier, cfg.SweepInterval, logger)
		sweeper.Start()
		logger.Info("escalation sweeper started", "interval", cfg.SweepInterval)
	}

	// Start the export scheduler if a destination is configured.
	var scheduler *export.Scheduler
	if cfg.ExportInterval > 0 && cfg.ExportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(
			context.Background(),
			cfg.ExportS3Bucket,
			cfg.ExportS3Key,
			cfg.ExportS3Region,
			cfg.ExportS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			scheduler = export.NewScheduler(store, []export.Destination{s3Dest}, cfg.ExportInterval, logger)
			scheduler.Start()
			logger.Info("export scheduler started", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key, "interval", cfg.ExportInterval)
		}
	}

	logger.Info("approvals server started", "http_addr", cfg.HTTPAddr)

	// Wait for SIGINT or SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	// Graceful shutdown.
	if scheduler != nil {
		scheduler.Stop()
		logger.Info("export scheduler stopped")
	}

	if sweeper != nil {
		sweeper.Stop()
		logger.Info("escalation sweeper stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}
	logger.Info("HTTP server stopped")

	if err := publisher.Close(); err != nil {
		logger.Error("error closing publisher", "err", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("error closing store", "err", err)
	}

	logger.Info("shutdown complete")
	return nil
}
