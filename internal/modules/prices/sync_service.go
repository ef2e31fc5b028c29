package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/domain"
)

// PriceSource provides pages of upstream daily quotes for one trade date.
type PriceSource interface {
	DailyQuotesPage(ctx context.Context, targetDate string, pageToken string) ([]domain.DailyPrice, string, error)
}

// SyncService pulls one trade date's quotes into history.db. Quotes share
// the upstream rate budget with disclosure syncs; price freshness is less
// important than disclosure freshness, so this service only waits briefly
// and gives up when the budget is tight.
type SyncService struct {
	source  PriceSource
	history *HistoryDB
	budget  *budget.RateBudget
	log     zerolog.Logger

	maxBudgetWait time.Duration
}

// NewSyncService creates a price sync service.
func NewSyncService(source PriceSource, history *HistoryDB, rateBudget *budget.RateBudget, log zerolog.Logger) *SyncService {
	return &SyncService{
		source:        source,
		history:       history,
		budget:        rateBudget,
		log:           log.With().Str("service", "price_sync").Logger(),
		maxBudgetWait: 10 * time.Second,
	}
}

// SyncDate pulls all quotes for one trade date. Returns the number stored.
func (s *SyncService) SyncDate(ctx context.Context, tradeDate string) (int, error) {
	if _, err := time.Parse("2006-01-02", tradeDate); err != nil {
		return 0, fmt.Errorf("invalid trade date %q: %w", tradeDate, err)
	}

	total := 0
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := s.acquireBudget(ctx); err != nil {
			return total, err
		}

		quotes, next, err := s.source.DailyQuotesPage(ctx, tradeDate, pageToken)
		if err != nil {
			return total, fmt.Errorf("failed to fetch daily quotes: %w", err)
		}

		for i := range quotes {
			if err := s.history.UpsertDailyPrice(&quotes[i]); err != nil {
				return total, err
			}
			total++
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	s.log.Info().Str("trade_date", tradeDate).Int("quotes", total).Msg("Price sync completed")
	return total, nil
}

func (s *SyncService) acquireBudget(ctx context.Context) error {
	for {
		granted, retryAfter := s.budget.TryAcquire(1)
		if granted {
			return nil
		}
		if retryAfter > s.maxBudgetWait {
			return &domain.TransientUpstreamError{
				RetryAfter: retryAfter,
				Err:        fmt.Errorf("rate budget too tight for price sync, retry in %s", retryAfter),
			}
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
