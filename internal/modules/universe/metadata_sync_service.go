package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/domain"
)

// CompanySource provides pages of the upstream listed-company master.
type CompanySource interface {
	ListedInfoPage(ctx context.Context, pageToken string) ([]domain.Company, string, error)
}

// MetadataSyncService refreshes the company master from upstream.
// Runs rarely (the master changes on listings and delistings), but still
// draws from the shared rate budget like every other upstream call.
type MetadataSyncService struct {
	source    CompanySource
	companies *CompanyRepository
	budget    *budget.RateBudget
	log       zerolog.Logger
}

// NewMetadataSyncService creates a metadata sync service.
func NewMetadataSyncService(source CompanySource, companies *CompanyRepository, rateBudget *budget.RateBudget, log zerolog.Logger) *MetadataSyncService {
	return &MetadataSyncService{
		source:    source,
		companies: companies,
		budget:    rateBudget,
		log:       log.With().Str("service", "metadata_sync").Logger(),
	}
}

// SyncAll pulls every page of the company master and upserts each record.
// Returns the number of companies written.
func (s *MetadataSyncService) SyncAll(ctx context.Context) (int, error) {
	s.log.Info().Msg("Company master sync started")

	total := 0
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := s.waitForBudget(ctx); err != nil {
			return total, err
		}

		companies, next, err := s.source.ListedInfoPage(ctx, pageToken)
		if err != nil {
			return total, fmt.Errorf("failed to fetch listed info: %w", err)
		}

		for i := range companies {
			if err := s.companies.Upsert(&companies[i]); err != nil {
				return total, fmt.Errorf("failed to store company %s: %w", companies[i].Code, err)
			}
			total++
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	s.log.Info().Int("companies", total).Msg("Company master sync completed")
	return total, nil
}

func (s *MetadataSyncService) waitForBudget(ctx context.Context) error {
	for {
		granted, retryAfter := s.budget.TryAcquire(1)
		if granted {
			return nil
		}

		s.log.Debug().Dur("retry_after", retryAfter).Msg("Waiting for rate budget")
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
