// Package main is the entry point for the KessanView disclosure sync and
// scoring service.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/di"
	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/scheduler"
	"github.com/kessanview/kessanview/internal/server"
	"github.com/kessanview/kessanview/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Loads configuration from environment variables (.env file)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (databases, repositories, services)
// 4. Starts the HTTP server
// 5. Resumes sync runs interrupted by the previous shutdown
// 6. Starts the cron scheduler (disclosure sync, price sync, company master sync, backups)
// 7. Waits for a shutdown signal and shuts down gracefully
//
// The application uses a 3-database architecture:
// - universe.db: company master (codes, names, sector and market classification)
// - disclosures.db: disclosure snapshots, sync cursors and importance scores
// - history.db: daily price history
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still logged.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("plan", string(cfg.JQuantsPlan)).
		Str("data_dir", cfg.DataDir).
		Msg("Starting KessanView")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		Companies: container.CompanyRepo,
		Snapshots: container.SnapshotRepo,
		Scores:    container.ScoreRepo,
		Deltas:    container.DeltaComputer,
		Signals:   container.Signals,
		Recompute: container.Recompute,
		Scheduler: container.SyncScheduler,
		Budget:    container.Budget,
		Bus:       container.Bus,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	go resumeInterruptedSyncs(container, log)

	jobs := scheduler.Jobs{
		SyncDisclosures: container.SyncScheduler.SyncDate,
		SyncPrices: func(ctx context.Context, tradeDate string) error {
			_, err := container.PriceSync.SyncDate(ctx, tradeDate)
			return err
		},
		SyncCompanies: func(ctx context.Context) error {
			_, err := container.MetadataSync.SyncAll(ctx)
			return err
		},
	}
	if container.BackupService != nil {
		jobs.Backup = func(ctx context.Context) error {
			if err := container.BackupService.CreateAndUpload(ctx); err != nil {
				return err
			}
			return container.BackupService.RotateOldBackups(ctx, 14)
		}
	}

	sched := scheduler.New(jobs, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	log.Info().Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop scheduling new jobs and wait for running ones to finish.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// resumeInterruptedSyncs restarts sync runs whose cursors were left in
// progress by a crash or shutdown. Cursors persist before every page request,
// so each run picks up from the last completed page.
func resumeInterruptedSyncs(container *di.Container, log zerolog.Logger) {
	cursors, err := container.CursorRepo.ListByState(domain.CursorInProgress)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list interrupted syncs")
		return
	}
	for _, cursor := range cursors {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		if err := container.SyncScheduler.SyncDate(ctx, cursor.TargetDate); err != nil {
			log.Error().Err(err).Str("target_date", cursor.TargetDate).Msg("Resumed sync failed")
		}
		cancel()
	}
}
