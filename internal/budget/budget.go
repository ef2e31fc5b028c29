// Package budget tracks the remaining upstream request allowance for the
// active plan tier over rolling minute and day windows.
//
// The budget never blocks: TryAcquire either grants immediately or returns
// the wait until the next window rollover. Callers decide whether to wait
// or abort. Window boundaries are derived from the wall clock on every call,
// so the counters stay correct even after long idle periods.
package budget

import (
	"sync"
	"time"

	"github.com/kessanview/kessanview/internal/config"
	"github.com/rs/zerolog"
)

// RateBudget is safe for concurrent use by multiple sync workers.
type RateBudget struct {
	limits config.TierLimits
	now    func() time.Time
	log    zerolog.Logger

	mu          sync.Mutex
	minuteStart time.Time // truncated to the minute
	minuteUsed  int
	dayStart    time.Time // truncated to the UTC day
	dayUsed     int
}

// New creates a rate budget for the given tier limits.
func New(limits config.TierLimits, log zerolog.Logger) *RateBudget {
	return &RateBudget{
		limits: limits,
		now:    time.Now,
		log:    log.With().Str("component", "rate_budget").Logger(),
	}
}

// NewWithClock creates a rate budget with an injectable clock for tests.
func NewWithClock(limits config.TierLimits, now func() time.Time, log zerolog.Logger) *RateBudget {
	b := New(limits, log)
	b.now = now
	return b
}

// TryAcquire requests cost units of budget. When both windows have capacity
// it increments the counters and grants. Otherwise it returns the shorter of
// the two rollover waits as retryAfter.
func (b *RateBudget) TryAcquire(cost int) (granted bool, retryAfter time.Duration) {
	if cost <= 0 {
		cost = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rollover(now)

	minuteOK := b.minuteUsed+cost <= b.limits.RequestsPerMinute
	dayOK := b.dayUsed+cost <= b.limits.RequestsPerDay

	if minuteOK && dayOK {
		b.minuteUsed += cost
		b.dayUsed += cost
		return true, 0
	}

	// Report the shorter wait among the exhausted windows.
	var wait time.Duration
	if !minuteOK {
		wait = b.minuteStart.Add(time.Minute).Sub(now)
	}
	if !dayOK {
		dayWait := b.dayStart.Add(24 * time.Hour).Sub(now)
		if wait == 0 || dayWait < wait {
			wait = dayWait
		}
	}
	if wait < 0 {
		wait = 0
	}

	b.log.Debug().
		Int("minute_used", b.minuteUsed).
		Int("day_used", b.dayUsed).
		Dur("retry_after", wait).
		Msg("Budget exhausted")

	return false, wait
}

// Remaining returns the unused capacity of the tighter window, for status
// reporting only.
func (b *RateBudget) Remaining() (minute, day int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(b.now())
	return b.limits.RequestsPerMinute - b.minuteUsed, b.limits.RequestsPerDay - b.dayUsed
}

// rollover resets any counter whose wall-clock window has passed.
// Caller must hold the mutex.
func (b *RateBudget) rollover(now time.Time) {
	minuteStart := now.Truncate(time.Minute)
	if !minuteStart.Equal(b.minuteStart) {
		b.minuteStart = minuteStart
		b.minuteUsed = 0
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	if !dayStart.Equal(b.dayStart) {
		b.dayStart = dayStart
		b.dayUsed = 0
	}
}
