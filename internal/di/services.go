package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/clients/jquants"
	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/events"
	"github.com/kessanview/kessanview/internal/modules/analysis"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/prices"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
	"github.com/kessanview/kessanview/internal/reliability"
)

// InitializeServices creates the upstream client, budget, event bus and all
// services, and subscribes the recompute service to snapshot writes.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.JQuantsClient = jquants.NewClient(jquants.Config{
		APIKey:  cfg.JQuantsAPIKey,
		BaseURL: cfg.JQuantsBaseURL,
	}, log)

	// One budget for every upstream consumer: disclosure sync, the company
	// master sync and price sync all draw from the same plan quota.
	container.Budget = budget.New(cfg.TierLimits(), log)
	container.Bus = events.NewBus()

	container.DeltaComputer = analysis.NewDeltaComputer(container.SnapshotRepo, log)
	container.Signals = analysis.NewSignals(container.SnapshotRepo)
	container.ScoringEngine = scoring.NewEngine(cfg.Weights, log)

	container.Recompute = scoring.NewRecomputeService(
		container.SnapshotRepo,
		container.ScoreRepo,
		container.DeltaComputer,
		container.ScoringEngine,
		container.Bus,
		log,
	)
	container.Recompute.Start()

	container.SyncScheduler = disclosures.NewSyncScheduler(
		container.JQuantsClient,
		container.SnapshotRepo,
		container.CursorRepo,
		container.Budget,
		container.Bus,
		cfg,
		log,
	)

	container.MetadataSync = universe.NewMetadataSyncService(
		container.JQuantsClient,
		container.CompanyRepo,
		container.Budget,
		log,
	)

	container.PriceSync = prices.NewSyncService(
		container.JQuantsClient,
		container.PriceHistory,
		container.Budget,
		log,
	)

	if cfg.BackupBucket != "" {
		store, err := reliability.NewObjectStore(
			cfg.BackupEndpoint,
			cfg.BackupAccessKey,
			cfg.BackupSecretKey,
			cfg.BackupBucket,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize backup object store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			store,
			cfg.DataDir,
			[]string{"universe", "disclosures", "history"},
			log,
		)
	}

	return nil
}
