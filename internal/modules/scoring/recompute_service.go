package scoring

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/events"
	"github.com/kessanview/kessanview/internal/modules/analysis"
)

// RecomputeService keeps derived values current. It listens for snapshot
// writes, recomputes the delta and score of the written disclosure and of
// every stored disclosure that uses it as a baseline, and maintains the
// per-date rank indexes the read API serves from.
type RecomputeService struct {
	snapshots domain.SnapshotStore
	scores    domain.ScoreStore
	deltas    *analysis.DeltaComputer
	engine    *Engine
	bus       *events.Bus
	log       zerolog.Logger

	mu      sync.Mutex
	indexes map[string]*RankIndex // target date -> index
}

// NewRecomputeService creates a recompute service.
func NewRecomputeService(
	snapshots domain.SnapshotStore,
	scores domain.ScoreStore,
	deltas *analysis.DeltaComputer,
	engine *Engine,
	bus *events.Bus,
	log zerolog.Logger,
) *RecomputeService {
	return &RecomputeService{
		snapshots: snapshots,
		scores:    scores,
		deltas:    deltas,
		engine:    engine,
		bus:       bus,
		log:       log.With().Str("service", "recompute").Logger(),
		indexes:   make(map[string]*RankIndex),
	}
}

// Start subscribes to snapshot writes. Handlers run on the publishing
// goroutine after the upsert committed, so recompute never races a write.
func (s *RecomputeService) Start() {
	s.bus.Subscribe(events.SnapshotUpserted, func(e *events.Event) {
		data, ok := e.Data.(*events.SnapshotUpsertedData)
		if !ok {
			return
		}
		if err := s.onSnapshotUpserted(data.CompanyID, data.Period); err != nil {
			s.log.Error().Err(err).
				Str("company_id", data.CompanyID).
				Str("period", data.Period).
				Msg("Recompute failed")
		}
	})
}

func (s *RecomputeService) onSnapshotUpserted(companyID, periodStr string) error {
	period, err := domain.ParsePeriodKey(periodStr)
	if err != nil {
		return err
	}

	if err := s.Recompute(companyID, period); err != nil {
		return err
	}

	// A new snapshot may be the baseline of already-stored later periods;
	// their deltas are stale until recomputed.
	for _, dep := range analysis.DependentKeys(period) {
		dependent, err := s.snapshots.Get(companyID, dep)
		if err != nil {
			return err
		}
		if dependent == nil || !dependent.IsEarningsStatement() {
			continue
		}
		if err := s.Recompute(companyID, dep); err != nil {
			return err
		}
	}
	return nil
}

// Recompute derives delta and score for one stored disclosure and updates
// the rank index of its reported date.
func (s *RecomputeService) Recompute(companyID string, period domain.PeriodKey) error {
	snapshot, err := s.snapshots.Get(companyID, period)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("no snapshot for %s %s", companyID, period)
	}
	if !snapshot.IsEarningsStatement() {
		return nil
	}

	delta, err := s.deltas.Compute(snapshot)
	if err != nil {
		return err
	}

	record, err := s.engine.Score(delta, snapshot)
	if err != nil {
		return err
	}

	targetDate := snapshot.ReportedAt.UTC().Format("2006-01-02")

	// Unchanged inputs produce an identical record; skip the write.
	existing, err := s.scores.Get(companyID, period)
	if err != nil {
		return err
	}
	if existing != nil && existing.InputHash == record.InputHash {
		return nil
	}

	if err := s.scores.Save(record, targetDate); err != nil {
		return err
	}

	index, err := s.Index(targetDate)
	if err != nil {
		return err
	}
	index.Insert(record)

	s.bus.Publish(events.ScoreUpdated, &events.ScoreUpdatedData{
		CompanyID: companyID,
		Period:    period.String(),
		Score:     record.Score,
	})
	return nil
}

// Index returns the rank index for a target date, building it from the
// score store on first use.
func (s *RecomputeService) Index(targetDate string) (*RankIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index, ok := s.indexes[targetDate]; ok {
		return index, nil
	}

	records, err := s.scores.ListByDate(targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to build rank index for %s: %w", targetDate, err)
	}
	index := RebuildRankIndex(targetDate, records)
	s.indexes[targetDate] = index
	return index, nil
}
