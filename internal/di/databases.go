package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/database"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/prices"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
)

// InitializeDatabases opens all databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// universe.db - company master
	universeDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/universe.db",
		Profile: database.ProfileStandard,
		Name:    "universe",
		Schema:  universe.Schema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize universe database: %w", err)
	}
	container.UniverseDB = universeDB

	// disclosures.db - snapshots, sync cursors and scores share one file so
	// a snapshot write and its score land in the same database.
	disclosuresDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/disclosures.db",
		Profile: database.ProfileStandard,
		Name:    "disclosures",
		Schema:  disclosures.Schema + scoring.Schema,
	})
	if err != nil {
		universeDB.Close()
		return nil, fmt.Errorf("failed to initialize disclosures database: %w", err)
	}
	container.DisclosuresDB = disclosuresDB

	// history.db - daily price quotes
	historyDB, err := prices.OpenHistoryDB(cfg.DataDir + "/history.db")
	if err != nil {
		universeDB.Close()
		disclosuresDB.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	return container, nil
}
