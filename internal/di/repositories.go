package di

import (
	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/prices"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
)

// InitializeRepositories creates all repositories with database connections.
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.CompanyRepo = universe.NewCompanyRepository(container.UniverseDB.Conn(), log)
	container.SnapshotRepo = disclosures.NewSnapshotRepository(container.DisclosuresDB.Conn(), log)
	container.CursorRepo = disclosures.NewCursorRepository(container.DisclosuresDB.Conn(), log)
	container.ScoreRepo = scoring.NewScoreRepository(container.DisclosuresDB.Conn(), log)
	container.PriceHistory = prices.NewHistoryDB(container.HistoryDB, log)
}
