// Package analysis computes period-over-period change metrics for
// disclosure snapshots.
package analysis

import (
	"fmt"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/rs/zerolog"
)

// DeltaComputer derives QoQ and YoY percentage changes for a snapshot from
// the company's stored history. Pure computation over the store; it performs
// no writes.
type DeltaComputer struct {
	snapshots domain.SnapshotStore
	log       zerolog.Logger
}

// NewDeltaComputer creates a new delta computer.
func NewDeltaComputer(snapshots domain.SnapshotStore, log zerolog.Logger) *DeltaComputer {
	return &DeltaComputer{
		snapshots: snapshots,
		log:       log.With().Str("service", "delta_computer").Logger(),
	}
}

// Compute returns the delta record for a snapshot.
// Baselines are the previous quarter and the same quarter of the previous
// year. A baseline that is absent, not an earnings statement, or exactly
// zero leaves the corresponding delta undefined (nil) - never NaN or Inf.
func (c *DeltaComputer) Compute(snapshot *domain.DisclosureSnapshot) (*domain.DeltaRecord, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}

	prevQuarter, err := c.baseline(snapshot.CompanyID, snapshot.Period.PrevQuarter())
	if err != nil {
		return nil, fmt.Errorf("failed to load previous-quarter baseline: %w", err)
	}

	prevYear, err := c.baseline(snapshot.CompanyID, snapshot.Period.PrevYear())
	if err != nil {
		return nil, fmt.Errorf("failed to load previous-year baseline: %w", err)
	}

	record := &domain.DeltaRecord{
		CompanyID: snapshot.CompanyID,
		Period:    snapshot.Period,
	}

	if prevQuarter != nil {
		record.QoQRevenuePct = changeRate(snapshot.Revenue, prevQuarter.Revenue)
		record.QoQOperatingProfitPct = changeRate(snapshot.OperatingProfit, prevQuarter.OperatingProfit)
		record.QoQNetIncomePct = changeRate(snapshot.NetIncome, prevQuarter.NetIncome)
	}

	if prevYear != nil {
		record.YoYRevenuePct = changeRate(snapshot.Revenue, prevYear.Revenue)
		record.YoYOperatingProfitPct = changeRate(snapshot.OperatingProfit, prevYear.OperatingProfit)
		record.YoYNetIncomePct = changeRate(snapshot.NetIncome, prevYear.NetIncome)
	}

	return record, nil
}

// DependentKeys returns the period keys whose deltas use the given snapshot
// as a baseline: the next quarter and the same quarter next year. A write to
// a snapshot invalidates those records too.
func DependentKeys(period domain.PeriodKey) []domain.PeriodKey {
	next := domain.PeriodKey{FiscalYear: period.FiscalYear, Quarter: period.Quarter + 1}
	if period.Quarter >= 4 {
		next = domain.PeriodKey{FiscalYear: period.FiscalYear + 1, Quarter: 1}
	}
	return []domain.PeriodKey{
		next,
		{FiscalYear: period.FiscalYear + 1, Quarter: period.Quarter},
	}
}

// baseline loads a comparison snapshot, rejecting non-earnings documents.
func (c *DeltaComputer) baseline(companyID string, period domain.PeriodKey) (*domain.DisclosureSnapshot, error) {
	snapshot, err := c.snapshots.Get(companyID, period)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || !snapshot.IsEarningsStatement() {
		return nil, nil
	}
	return snapshot, nil
}

// changeRate computes (current-baseline)/|baseline| as a percentage.
// Undefined (nil) when either value is missing or the baseline is zero;
// large swings pass through unclamped.
func changeRate(current, baseline *float64) *float64 {
	if current == nil || baseline == nil || *baseline == 0 {
		return nil
	}
	pct := (*current - *baseline) / abs(*baseline) * 100
	return &pct
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
