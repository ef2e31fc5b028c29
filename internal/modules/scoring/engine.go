// Package scoring turns delta records into 0-100 importance scores and keeps
// the per-date rank order the dashboard reads.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/domain"
)

// Engine maps a snapshot's deltas to a score. Pure computation: no I/O, no
// state, deterministic for identical inputs.
type Engine struct {
	weights config.ScoringWeights
	log     zerolog.Logger
}

// NewEngine creates a scoring engine with the given rule-set coefficients.
func NewEngine(weights config.ScoringWeights, log zerolog.Logger) *Engine {
	return &Engine{
		weights: weights,
		log:     log.With().Str("service", "scoring_engine").Logger(),
	}
}

// Score computes the score record for one disclosure.
// Returns domain.ErrScoreInputMissing when no delta record is supplied.
func (e *Engine) Score(delta *domain.DeltaRecord, snapshot *domain.DisclosureSnapshot) (*domain.ScoreRecord, error) {
	if delta == nil {
		return nil, domain.ErrScoreInputMissing
	}
	if snapshot == nil {
		return nil, fmt.Errorf("nil snapshot")
	}

	magnitude := e.magnitude(delta)
	signal := e.signal(delta, snapshot)

	total := magnitude + signal
	if total > 100 {
		total = 100
	}
	score := int(math.Round(total))

	record := &domain.ScoreRecord{
		CompanyID: snapshot.CompanyID,
		Period:    snapshot.Period,
		Score:     score,
		Category:  categoryFor(score),
		Inputs:    *delta,
	}

	hash, err := hashInputs(delta)
	if err != nil {
		return nil, fmt.Errorf("failed to hash score inputs: %w", err)
	}
	record.InputHash = hash

	return record, nil
}

// magnitude awards points proportional to each defined delta's absolute
// percentage, capped per metric and then overall. Undefined deltas
// contribute zero; they never penalize.
func (e *Engine) magnitude(delta *domain.DeltaRecord) float64 {
	w := e.weights

	revenue := metricPoints(w.RevenueWeight, w.RevenueCap, delta.QoQRevenuePct, delta.YoYRevenuePct)
	operating := metricPoints(w.OperatingProfitWeight, w.OperatingProfitCap, delta.QoQOperatingProfitPct, delta.YoYOperatingProfitPct)
	net := metricPoints(w.NetIncomeWeight, w.NetIncomeCap, delta.QoQNetIncomePct, delta.YoYNetIncomePct)

	total := revenue + operating + net
	if total > w.MagnitudeCap {
		total = w.MagnitudeCap
	}
	return total
}

// signal awards the qualitative component: turning points and horizon
// agreement. Clamped to [0, SignalCap].
func (e *Engine) signal(delta *domain.DeltaRecord, snapshot *domain.DisclosureSnapshot) float64 {
	w := e.weights

	metrics := []struct {
		current *float64
		qoq     *float64
		yoy     *float64
	}{
		{snapshot.Revenue, delta.QoQRevenuePct, delta.YoYRevenuePct},
		{snapshot.OperatingProfit, delta.QoQOperatingProfitPct, delta.YoYOperatingProfitPct},
		{snapshot.NetIncome, delta.QoQNetIncomePct, delta.YoYNetIncomePct},
	}

	var total float64
	for _, m := range metrics {
		if crossedZero(m.current, m.qoq) || crossedZero(m.current, m.yoy) {
			total += w.TurningPointBonus
		}

		if m.qoq != nil && m.yoy != nil && *m.qoq != 0 && *m.yoy != 0 {
			if (*m.qoq > 0) == (*m.yoy > 0) {
				total += w.AgreementBonus
			} else {
				total -= w.DisagreementCut
			}
		}
	}

	if total < 0 {
		total = 0
	}
	if total > w.SignalCap {
		total = w.SignalCap
	}
	return total
}

// metricPoints sums the weighted absolute percentages of one metric's two
// horizons and applies the per-metric cap.
func metricPoints(weight, cap float64, qoq, yoy *float64) float64 {
	var points float64
	if qoq != nil {
		points += weight * math.Abs(*qoq)
	}
	if yoy != nil {
		points += weight * math.Abs(*yoy)
	}
	if points > cap {
		points = cap
	}
	return points
}

// crossedZero reports whether a delta implies the metric changed sign against
// its baseline: the move covered at least the baseline's full magnitude and
// landed on the side the move points to. A profit-to-loss swing always shows
// pct <= -100 with a negative current value; loss-to-profit shows pct >= +100
// with a non-negative current value.
func crossedZero(current, pct *float64) bool {
	if current == nil || pct == nil {
		return false
	}
	if *current < 0 {
		return *pct <= -100
	}
	return *pct >= 100
}

// categoryFor maps a score to its triage band.
func categoryFor(score int) string {
	switch {
	case score >= 80:
		return domain.CategoryNotable
	case score >= 50:
		return domain.CategoryReview
	default:
		return domain.CategoryNormal
	}
}

// hashInputs fingerprints the delta record so recomputation can be skipped
// when inputs have not changed.
func hashInputs(delta *domain.DeltaRecord) (string, error) {
	blob, err := msgpack.Marshal(delta)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
