package analysis

import (
	"fmt"

	"github.com/kessanview/kessanview/internal/domain"
)

// Threshold for flagging a large YoY move, in percent.
const largeMoveThreshold = 30.0

// Signals produces human-readable annotations for the detail view:
// large YoY moves, profit/loss turnarounds, and record operating profit for
// the same period type. Derived on demand, never persisted.
type Signals struct {
	snapshots domain.SnapshotStore
}

// NewSignals creates a signal annotator.
func NewSignals(snapshots domain.SnapshotStore) *Signals {
	return &Signals{snapshots: snapshots}
}

// Detect returns the annotations for a snapshot given its delta record.
func (s *Signals) Detect(snapshot *domain.DisclosureSnapshot, delta *domain.DeltaRecord) ([]string, error) {
	if snapshot == nil || delta == nil {
		return nil, nil
	}

	var signals []string

	for _, m := range []struct {
		label string
		pct   *float64
	}{
		{"revenue", delta.YoYRevenuePct},
		{"operating profit", delta.YoYOperatingProfitPct},
		{"net income", delta.YoYNetIncomePct},
	} {
		if m.pct == nil {
			continue
		}
		if *m.pct >= largeMoveThreshold {
			signals = append(signals, fmt.Sprintf("%s up %.1f%% YoY", m.label, *m.pct))
		} else if *m.pct <= -largeMoveThreshold {
			signals = append(signals, fmt.Sprintf("%s down %.1f%% YoY", m.label, -*m.pct))
		}
	}

	turnaround, err := s.detectTurnaround(snapshot)
	if err != nil {
		return nil, err
	}
	signals = append(signals, turnaround...)

	record, err := s.detectRecordOperatingProfit(snapshot)
	if err != nil {
		return nil, err
	}
	signals = append(signals, record...)

	return signals, nil
}

// detectTurnaround compares net income signs against the prior-year quarter.
func (s *Signals) detectTurnaround(snapshot *domain.DisclosureSnapshot) ([]string, error) {
	if snapshot.NetIncome == nil {
		return nil, nil
	}

	prev, err := s.snapshots.Get(snapshot.CompanyID, snapshot.Period.PrevYear())
	if err != nil {
		return nil, err
	}
	if prev == nil || !prev.IsEarningsStatement() || prev.NetIncome == nil {
		return nil, nil
	}

	switch {
	case *prev.NetIncome < 0 && *snapshot.NetIncome >= 0:
		return []string{"returned to profit"}, nil
	case *prev.NetIncome >= 0 && *snapshot.NetIncome < 0:
		return []string{"fell to a loss"}, nil
	}
	return nil, nil
}

// detectRecordOperatingProfit checks whether the snapshot beats every stored
// statement of the same period type for the company.
func (s *Signals) detectRecordOperatingProfit(snapshot *domain.DisclosureSnapshot) ([]string, error) {
	if snapshot.OperatingProfit == nil {
		return nil, nil
	}

	history, err := s.snapshots.ListByCompany(snapshot.CompanyID)
	if err != nil {
		return nil, err
	}

	sawPeer := false
	for _, peer := range history {
		if peer.Period == snapshot.Period || peer.Period.Quarter != snapshot.Period.Quarter {
			continue
		}
		if peer.OperatingProfit == nil {
			continue
		}
		sawPeer = true
		if *peer.OperatingProfit >= *snapshot.OperatingProfit {
			return nil, nil
		}
	}

	if !sawPeer {
		return nil, nil
	}
	return []string{"record operating profit for the period"}, nil
}
