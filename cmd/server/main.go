// Package main is the entry point for the quantd analytics service.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Build the structured logger
//  3. Wire all dependencies via the DI container (databases, services,
//     job orchestration, HTTP handlers)
//  4. Hydrate the job registry from the ledger so interrupted jobs are
//     visible as FAILED after a restart
//  5. Start the worker pool, the maintenance scheduler and the HTTP server
//  6. Wait for SIGINT/SIGTERM and shut everything down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantleap/quantd/internal/config"
	"github.com/quantleap/quantd/internal/di"
	"github.com/quantleap/quantd/internal/scheduler"
	"github.com/quantleap/quantd/internal/server"
	"github.com/quantleap/quantd/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty,
	})

	log.Info().Msg("Starting quantd")

	// Wire all dependencies: databases, event bus, engine services, the
	// job orchestrator and the HTTP handlers.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Mark jobs left RUNNING or PENDING by a previous process as failed.
	// Their payloads were never persisted, so they cannot be resumed.
	if err := container.JobManager.Hydrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to hydrate job registry")
	}

	container.WorkerPool.Start()

	// Maintenance scheduler: job retention, WAL checkpoints, cache sweep.
	sched := scheduler.New(log)
	maintenance := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.RetentionSchedule, container.RetentionJob},
		{cfg.CheckpointSchedule, container.CheckpointJob},
		{cfg.CacheSweepSchedule, container.CacheSweepJob},
	}
	for _, m := range maintenance {
		if err := sched.AddJob(m.schedule, m.job); err != nil {
			log.Fatal().Err(err).Str("job", m.job.Name()).Msg("Invalid maintenance schedule")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Workers:   cfg.Workers,
		Databases: container.Databases(),
		Bus:       container.EventBus,
		Events:    container.EventManager,
		Manager:   container.JobManager,
		Registrars: []server.Registrar{
			container.MarketDataHandler,
			container.IndicatorHandler,
			container.SignalHandler,
			container.PricingHandler,
			container.BacktestHandler,
			container.RiskHandler,
			container.JobsHandler,
		},
		Log: log,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Int("workers", cfg.Workers).Msg("quantd started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop accepting HTTP traffic first, then the cron scheduler, then
	// drain the worker pool so running jobs reach a terminal state.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()
	container.WorkerPool.Stop()

	log.Info().Msg("quantd stopped")
}
