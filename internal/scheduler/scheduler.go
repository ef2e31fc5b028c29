// Package scheduler runs the recurring jobs: the evening disclosure sync,
// the nightly price pull, and the weekly company master refresh.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Jobs groups the callbacks the scheduler drives. Each receives the trade
// date the run covers.
type Jobs struct {
	SyncDisclosures func(ctx context.Context, targetDate string) error
	SyncPrices      func(ctx context.Context, tradeDate string) error
	SyncCompanies   func(ctx context.Context) error
	Backup          func(ctx context.Context) error
}

// Scheduler owns the cron runner. All schedules are evaluated in JST
// because disclosures follow the Tokyo exchange calendar.
type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	log  zerolog.Logger
	loc  *time.Location
	now  func() time.Time
}

// New creates the scheduler. Falls back to a fixed +09:00 zone when the
// tzdata lookup fails (stripped containers).
func New(jobs Jobs, log zerolog.Logger) *Scheduler {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}

	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		jobs: jobs,
		log:  log.With().Str("service", "scheduler").Logger(),
		loc:  loc,
		now:  time.Now,
	}
}

// Start registers the schedules and begins running them.
//
// Disclosures land mostly at 15:00 JST with a long tail into the evening;
// the main sync runs after the tail and a catch-up pass runs late night.
func (s *Scheduler) Start() error {
	schedules := []struct {
		spec string
		name string
		run  func()
	}{
		{"30 18 * * MON-FRI", "disclosure_sync", s.runDisclosureSync},
		{"30 23 * * MON-FRI", "disclosure_catchup", s.runDisclosureSync},
		{"0 19 * * MON-FRI", "price_sync", s.runPriceSync},
		{"0 7 * * SUN", "company_master_sync", s.runCompanySync},
		{"0 3 * * *", "backup", s.runBackup},
	}

	for _, job := range schedules {
		name := job.name
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return err
		}
		s.log.Info().Str("job", name).Str("spec", job.spec).Msg("Job scheduled")
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// tradeDate returns today's date in JST, the date disclosures released
// today are keyed under.
func (s *Scheduler) tradeDate() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

func (s *Scheduler) runDisclosureSync() {
	if s.jobs.SyncDisclosures == nil {
		return
	}
	date := s.tradeDate()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	if err := s.jobs.SyncDisclosures(ctx, date); err != nil {
		s.log.Error().Err(err).Str("target_date", date).Msg("Scheduled disclosure sync failed")
		return
	}
	s.log.Info().Str("target_date", date).Msg("Scheduled disclosure sync finished")
}

func (s *Scheduler) runPriceSync() {
	if s.jobs.SyncPrices == nil {
		return
	}
	date := s.tradeDate()
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Hour)
	defer cancel()

	if err := s.jobs.SyncPrices(ctx, date); err != nil {
		s.log.Error().Err(err).Str("trade_date", date).Msg("Scheduled price sync failed")
	}
}

func (s *Scheduler) runCompanySync() {
	if s.jobs.SyncCompanies == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.jobs.SyncCompanies(ctx); err != nil {
		s.log.Error().Err(err).Msg("Scheduled company master sync failed")
	}
}

func (s *Scheduler) runBackup() {
	if s.jobs.Backup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.jobs.Backup(ctx); err != nil {
		s.log.Error().Err(err).Msg("Scheduled backup failed")
	}
}
