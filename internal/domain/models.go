// Package domain contains the core data model and collaborator contracts.
// It has no infrastructure dependencies; repositories and clients implement
// the interfaces defined here.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Company is immutable reference data for one listed company.
// Created and updated only by the company master sync.
type Company struct {
	Code         string `json:"code"` // stable exchange code
	Name         string `json:"name"`
	Sector17Code string `json:"sector_17_code"`
	Sector17Name string `json:"sector_17_name"`
	Sector33Code string `json:"sector_33_code"`
	Sector33Name string `json:"sector_33_name"`
	MarketCode   string `json:"market_code"`
	MarketName   string `json:"market_name"`
}

// Quarter is a fiscal quarter in 1..4. Quarter 4 is the full-year statement.
type Quarter int

// PeriodKey identifies one fiscal period of one company.
// Keys are totally ordered: by year, then quarter.
type PeriodKey struct {
	FiscalYear int     `json:"fiscal_year"`
	Quarter    Quarter `json:"quarter"`
}

// PrevQuarter returns the key of the immediately preceding quarter.
// The quarter before Q1 is Q4 of the prior fiscal year.
func (k PeriodKey) PrevQuarter() PeriodKey {
	if k.Quarter <= 1 {
		return PeriodKey{FiscalYear: k.FiscalYear - 1, Quarter: 4}
	}
	return PeriodKey{FiscalYear: k.FiscalYear, Quarter: k.Quarter - 1}
}

// PrevYear returns the same quarter of the prior fiscal year.
func (k PeriodKey) PrevYear() PeriodKey {
	return PeriodKey{FiscalYear: k.FiscalYear - 1, Quarter: k.Quarter}
}

// Before reports whether k precedes other in fiscal order.
func (k PeriodKey) Before(other PeriodKey) bool {
	if k.FiscalYear != other.FiscalYear {
		return k.FiscalYear < other.FiscalYear
	}
	return k.Quarter < other.Quarter
}

// String renders the key as "2025Q3" for logging and URLs.
func (k PeriodKey) String() string {
	return fmt.Sprintf("%dQ%d", k.FiscalYear, k.Quarter)
}

// ParsePeriodKey parses the "2025Q3" form produced by String.
func ParsePeriodKey(s string) (PeriodKey, error) {
	var year int
	var quarter int
	if _, err := fmt.Sscanf(s, "%dQ%d", &year, &quarter); err != nil {
		return PeriodKey{}, fmt.Errorf("invalid period key %q: %w", s, err)
	}
	if quarter < 1 || quarter > 4 {
		return PeriodKey{}, fmt.Errorf("invalid period key %q: quarter out of range", s)
	}
	return PeriodKey{FiscalYear: year, Quarter: Quarter(quarter)}, nil
}

// DisclosureSnapshot is one company's reported figures for one fiscal period.
// Uniquely keyed by (CompanyID, Period). Immutable once stored; a re-fetch of
// the same key overwrites only if the new ReportedAt is not older, which
// applies corrections and rejects stale re-delivery.
type DisclosureSnapshot struct {
	CompanyID        string    `json:"company_id"`
	Period           PeriodKey `json:"period"`
	ReportedAt       time.Time `json:"reported_at"`
	DisclosureNumber string    `json:"disclosure_number"`
	DocumentType     string    `json:"document_type"`

	// Nil means the figure was not reported.
	Revenue         *float64 `json:"revenue"`
	OperatingProfit *float64 `json:"operating_profit"`
	NetIncome       *float64 `json:"net_income"`

	Currency       string `json:"currency"`
	IsConsolidated bool   `json:"is_consolidated"`
}

// IsEarningsStatement reports whether the snapshot is a regular earnings
// statement. Forecast and dividend revisions carry no reported figures and
// never serve as comparison baselines.
func (s *DisclosureSnapshot) IsEarningsStatement() bool {
	return strings.Contains(s.DocumentType, "FinancialStatements")
}

// DeltaRecord holds period-over-period percentage changes for one snapshot.
// A nil field means "undefined": no valid baseline existed (absent or zero).
// Always re-derivable from the snapshot set, never a source of truth.
type DeltaRecord struct {
	CompanyID string    `json:"company_id"`
	Period    PeriodKey `json:"period"`

	QoQRevenuePct         *float64 `json:"qoq_revenue_pct"`
	QoQOperatingProfitPct *float64 `json:"qoq_operating_profit_pct"`
	QoQNetIncomePct       *float64 `json:"qoq_net_income_pct"`
	YoYRevenuePct         *float64 `json:"yoy_revenue_pct"`
	YoYOperatingProfitPct *float64 `json:"yoy_operating_profit_pct"`
	YoYNetIncomePct       *float64 `json:"yoy_net_income_pct"`
}

// Score categories for analyst triage.
const (
	CategoryNotable = "notable" // score >= 80
	CategoryReview  = "review"  // score >= 50
	CategoryNormal  = "normal"
)

// ScoreRecord is the scored result for one disclosure.
// Recomputation is idempotent: identical inputs yield an identical record.
type ScoreRecord struct {
	CompanyID string    `json:"company_id"`
	Period    PeriodKey `json:"period"`
	Score     int       `json:"score"` // 0..100
	Category  string    `json:"category"`

	// Inputs is the delta snapshot the score was computed from; InputHash
	// identifies it so recomputation can be skipped for unchanged inputs.
	Inputs    DeltaRecord `json:"inputs"`
	InputHash string      `json:"input_hash"`
}

// CursorState is the lifecycle of one target date's sync.
// Transitions are forward-only: NotStarted -> InProgress -> Complete | Failed.
type CursorState string

const (
	CursorNotStarted CursorState = "not_started"
	CursorInProgress CursorState = "in_progress"
	CursorComplete   CursorState = "complete"
	CursorFailed     CursorState = "failed"
)

// SyncCursor tracks resumable progress for one day's sync.
// Persisted before every next-page request, so a crash after any page
// resumes from the last completed page.
type SyncCursor struct {
	TargetDate    string      `json:"target_date"` // YYYY-MM-DD
	State         CursorState `json:"state"`
	NextPageToken string      `json:"next_page_token"` // empty when no page pending
	PagesDone     int         `json:"pages_done"`
	Fetched       int         `json:"fetched"` // snapshots upserted this run
	Skipped       int         `json:"skipped"` // malformed records skipped
	LastError     string      `json:"last_error"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DailyPrice is one day's raw quote for one company.
// Stored as delivered; no indicator computation happens in this system.
type DailyPrice struct {
	CompanyID        string   `json:"company_id"`
	TradeDate        string   `json:"trade_date"` // YYYY-MM-DD
	Open             *float64 `json:"open"`
	High             *float64 `json:"high"`
	Low              *float64 `json:"low"`
	Close            *float64 `json:"close"`
	Volume           *float64 `json:"volume"`
	TurnoverValue    *float64 `json:"turnover_value"`
	AdjustmentFactor float64  `json:"adjustment_factor"`
	AdjustedClose    *float64 `json:"adjusted_close"`
}
