// Package di provides dependency injection wiring and initialization.
package di

import (
	"database/sql"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/clients/jquants"
	"github.com/kessanview/kessanview/internal/database"
	"github.com/kessanview/kessanview/internal/events"
	"github.com/kessanview/kessanview/internal/modules/analysis"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/prices"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
	"github.com/kessanview/kessanview/internal/reliability"
)

// Container holds all application dependencies.
//
// It is created by Wire() and passed to the HTTP server. The database split
// mirrors the data lifecycles: the company master changes weekly, disclosure
// snapshots and scores accrete daily, and price history grows row-per-quote
// and gets pruned.
type Container struct {
	// Databases
	UniverseDB    *database.DB // company master
	DisclosuresDB *database.DB // snapshots, cursors, scores
	HistoryDB     *sql.DB      // daily price history (mattn driver, WAL)

	// Upstream client and quota accounting
	JQuantsClient *jquants.Client
	Budget        *budget.RateBudget

	// Event bus, shared by sync, recompute and the dashboard streams
	Bus *events.Bus

	// Repositories
	CompanyRepo  *universe.CompanyRepository
	SnapshotRepo *disclosures.SnapshotRepository
	CursorRepo   *disclosures.CursorRepository
	ScoreRepo    *scoring.ScoreRepository
	PriceHistory *prices.HistoryDB

	// Services
	DeltaComputer *analysis.DeltaComputer
	Signals       *analysis.Signals
	ScoringEngine *scoring.Engine
	Recompute     *scoring.RecomputeService
	SyncScheduler *disclosures.SyncScheduler
	MetadataSync  *universe.MetadataSyncService
	PriceSync     *prices.SyncService

	// BackupService is nil when no backup bucket is configured.
	BackupService *reliability.BackupService
}

// Close releases all database handles.
func (c *Container) Close() {
	if c.UniverseDB != nil {
		_ = c.UniverseDB.Close()
	}
	if c.DisclosuresDB != nil {
		_ = c.DisclosuresDB.Close()
	}
	if c.HistoryDB != nil {
		_ = c.HistoryDB.Close()
	}
}
