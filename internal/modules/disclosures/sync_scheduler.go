package disclosures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/events"
)

// SyncScheduler drives rate-budgeted, resumable per-date sync runs against
// the upstream disclosure source. All budget waiting and retry policy lives
// here; the source performs exactly one request per FetchPage call.
type SyncScheduler struct {
	source    domain.DisclosureSource
	snapshots domain.SnapshotStore
	cursors   domain.CursorStore
	budget    *budget.RateBudget
	bus       *events.Bus
	cfg       *config.Config
	log       zerolog.Logger

	// inFlight guards each date's cursor: exactly one run per date at a
	// time, across manual triggers, cron slots and startup resume.
	mu       sync.Mutex
	inFlight map[string]struct{}

	// sleep is replaceable in tests so backoff does not slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncScheduler creates a sync scheduler.
func NewSyncScheduler(
	source domain.DisclosureSource,
	snapshots domain.SnapshotStore,
	cursors domain.CursorStore,
	rateBudget *budget.RateBudget,
	bus *events.Bus,
	cfg *config.Config,
	log zerolog.Logger,
) *SyncScheduler {
	return &SyncScheduler{
		source:    source,
		snapshots: snapshots,
		cursors:   cursors,
		budget:    rateBudget,
		bus:       bus,
		cfg:       cfg,
		log:       log.With().Str("service", "sync_scheduler").Logger(),
		inFlight:  make(map[string]struct{}),
		sleep:     sleepCtx,
	}
}

// claimDate marks a date as having an active run. Returns false when another
// run already owns it.
func (s *SyncScheduler) claimDate(targetDate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, active := s.inFlight[targetDate]; active {
		return false
	}
	s.inFlight[targetDate] = struct{}{}
	return true
}

func (s *SyncScheduler) releaseDate(targetDate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, targetDate)
}

// SyncDate runs (or resumes) the sync for one target date (YYYY-MM-DD).
//
// A cursor in progress or failed resumes from its persisted next-page token.
// A completed cursor restarts from the first page; re-ingesting the same
// records is a no-op under the snapshot overwrite rule, so a re-run of a
// completed date writes nothing.
//
// On failure the cursor stays at the last completed page and the error is a
// *domain.SyncFailed wrapping the cause.
//
// At most one run per date is active at a time; a concurrent call for a date
// already being synced returns domain.ErrSyncInProgress without touching the
// cursor.
func (s *SyncScheduler) SyncDate(ctx context.Context, targetDate string) error {
	if _, err := time.Parse("2006-01-02", targetDate); err != nil {
		return fmt.Errorf("invalid target date %q: %w", targetDate, err)
	}

	if !s.claimDate(targetDate) {
		return fmt.Errorf("sync for %s: %w", targetDate, domain.ErrSyncInProgress)
	}
	defer s.releaseDate(targetDate)

	runID := uuid.New().String()[:8]
	log := s.log.With().Str("run_id", runID).Str("target_date", targetDate).Logger()

	cursor, err := s.cursors.Load(targetDate)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	switch {
	case cursor == nil:
		cursor = &domain.SyncCursor{TargetDate: targetDate, State: domain.CursorNotStarted}
	case cursor.State == domain.CursorComplete:
		log.Info().Msg("Re-running completed date")
		cursor = &domain.SyncCursor{TargetDate: targetDate, State: domain.CursorNotStarted}
	case cursor.NextPageToken != "":
		log.Info().Int("pages_done", cursor.PagesDone).Msg("Resuming interrupted sync")
	}

	cursor.State = domain.CursorInProgress
	cursor.LastError = ""
	if err := s.cursors.Save(cursor); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	log.Info().Msg("Sync started")

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(cursor, log, err)
		}

		page, err := s.fetchPageWithRetry(ctx, log, targetDate, cursor.NextPageToken)
		if err != nil {
			return s.fail(cursor, log, err)
		}

		for i := range page.Records {
			applied, err := s.snapshots.Upsert(&page.Records[i])
			if err != nil {
				return s.fail(cursor, log, fmt.Errorf("failed to store snapshot: %w", err))
			}
			if applied {
				cursor.Fetched++
				s.bus.Publish(events.SnapshotUpserted, &events.SnapshotUpsertedData{
					CompanyID: page.Records[i].CompanyID,
					Period:    page.Records[i].Period.String(),
				})
			}
		}
		cursor.Skipped += page.Malformed
		cursor.PagesDone++
		cursor.NextPageToken = page.NextPageToken

		// Persist before the next request so a crash resumes from here.
		if err := s.cursors.Save(cursor); err != nil {
			return fmt.Errorf("failed to persist cursor: %w", err)
		}

		s.bus.Publish(events.SyncProgress, &events.SyncProgressData{
			TargetDate: targetDate,
			PagesDone:  cursor.PagesDone,
			Fetched:    cursor.Fetched,
			Skipped:    cursor.Skipped,
		})

		if page.NextPageToken == "" {
			break
		}
	}

	cursor.State = domain.CursorComplete
	if err := s.cursors.Save(cursor); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	log.Info().
		Int("pages", cursor.PagesDone).
		Int("fetched", cursor.Fetched).
		Int("skipped", cursor.Skipped).
		Msg("Sync completed")

	s.bus.Publish(events.SyncCompleted, &events.SyncCompletedData{
		TargetDate: targetDate,
		State:      string(domain.CursorComplete),
		Fetched:    cursor.Fetched,
		Skipped:    cursor.Skipped,
	})

	return nil
}

// SyncRange syncs every date in [from, to] inclusive, at most the tier's
// worker count in flight. Dates share one rate budget, so adding workers
// never exceeds quota; it only keeps the pipeline full while others wait.
func (s *SyncScheduler) SyncRange(ctx context.Context, from, to string) error {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return fmt.Errorf("invalid range start %q: %w", from, err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return fmt.Errorf("invalid range end %q: %w", to, err)
	}
	if end.Before(start) {
		return fmt.Errorf("range end %s precedes start %s", to, from)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.TierLimits().MaxFetchWorkers)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		targetDate := d.Format("2006-01-02")
		g.Go(func() error {
			return s.SyncDate(ctx, targetDate)
		})
	}

	return g.Wait()
}

// Status returns the persisted cursor for a date, or nil if never synced.
func (s *SyncScheduler) Status(targetDate string) (*domain.SyncCursor, error) {
	return s.cursors.Load(targetDate)
}

// fetchPageWithRetry acquires budget and fetches one page, retrying transient
// failures with exponential backoff up to MaxPageRetries attempts. Permanent
// failures and context cancellation surface immediately.
func (s *SyncScheduler) fetchPageWithRetry(ctx context.Context, log zerolog.Logger, targetDate, pageToken string) (*domain.Page, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxPageRetries; attempt++ {
		if err := s.acquireBudget(ctx, log); err != nil {
			return nil, err
		}

		page, err := s.source.FetchPage(ctx, targetDate, pageToken)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
		lastErr = err

		wait := s.cfg.RetryBaseWait * time.Duration(1<<(attempt-1))
		var transient *domain.TransientUpstreamError
		if errors.As(err, &transient) && transient.RetryAfter > wait {
			wait = transient.RetryAfter
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Transient upstream failure, backing off")

		if attempt < s.cfg.MaxPageRetries {
			if err := s.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("page fetch exhausted %d attempts: %w", s.cfg.MaxPageRetries, lastErr)
}

// acquireBudget blocks until the rate budget grants one request. A wait
// longer than BudgetWaitLimit fails fast instead of stalling the worker:
// that only happens when the day window is exhausted, and no amount of
// in-process waiting fixes a spent day quota.
func (s *SyncScheduler) acquireBudget(ctx context.Context, log zerolog.Logger) error {
	for {
		granted, retryAfter := s.budget.TryAcquire(1)
		if granted {
			return nil
		}
		if retryAfter > s.cfg.BudgetWaitLimit {
			return &domain.TransientUpstreamError{
				RetryAfter: retryAfter,
				Err:        fmt.Errorf("rate budget exhausted for %s, exceeds wait limit %s", retryAfter, s.cfg.BudgetWaitLimit),
			}
		}

		log.Debug().Dur("retry_after", retryAfter).Msg("Waiting for rate budget")
		if err := s.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// fail records the terminal failed state and wraps the cause.
// The cursor keeps its page token so the next run resumes, not restarts.
func (s *SyncScheduler) fail(cursor *domain.SyncCursor, log zerolog.Logger, cause error) error {
	cursor.State = domain.CursorFailed
	cursor.LastError = cause.Error()
	if err := s.cursors.Save(cursor); err != nil {
		log.Error().Err(err).Msg("Failed to persist failed cursor")
	}

	log.Error().Err(cause).Int("pages_done", cursor.PagesDone).Msg("Sync failed")

	s.bus.Publish(events.SyncCompleted, &events.SyncCompletedData{
		TargetDate: cursor.TargetDate,
		State:      string(domain.CursorFailed),
		Fetched:    cursor.Fetched,
		Skipped:    cursor.Skipped,
		Error:      cause.Error(),
	})

	return &domain.SyncFailed{TargetDate: cursor.TargetDate, LastPage: cursor.PagesDone, Cause: cause}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
