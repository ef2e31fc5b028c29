package disclosures

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
)

// snapshotColumns lists the columns for the snapshots table.
// Column order must match scanSnapshot.
const snapshotColumns = `company_id, fiscal_year, quarter, reported_at, disclosure_number,
document_type, revenue, operating_profit, net_income, currency, is_consolidated`

// SnapshotRepository persists disclosure snapshots in disclosures.db.
// Implements domain.SnapshotStore.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Upsert writes a snapshot under the overwrite-if-not-older rule: the write
// applies only when it is newer than the stored row, by reported_at and then
// by disclosure_number for same-timestamp corrections. An equal-or-newer
// existing row makes the write a no-op, so re-ingesting an already synced
// page writes nothing. Returns whether the write was applied.
func (r *SnapshotRepository) Upsert(snapshot *domain.DisclosureSnapshot) (bool, error) {
	if snapshot == nil {
		return false, fmt.Errorf("nil snapshot")
	}
	if snapshot.CompanyID == "" {
		return false, fmt.Errorf("company ID is required for snapshot upsert")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingAt sql.NullInt64
	var existingNumber sql.NullString
	err = tx.QueryRow(
		"SELECT reported_at, disclosure_number FROM snapshots WHERE company_id = ? AND fiscal_year = ? AND quarter = ?",
		snapshot.CompanyID, snapshot.Period.FiscalYear, int(snapshot.Period.Quarter),
	).Scan(&existingAt, &existingNumber)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to query existing snapshot: %w", err)
	}

	if existingAt.Valid && !supersedes(snapshot, existingAt.Int64, existingNumber.String) {
		r.log.Debug().
			Str("company_id", snapshot.CompanyID).
			Str("period", snapshot.Period.String()).
			Msg("Equal-or-newer snapshot already stored, write skipped")
		return false, nil
	}

	query := `
		INSERT OR REPLACE INTO snapshots
		(company_id, fiscal_year, quarter, reported_at, reported_date, disclosure_number,
		 document_type, revenue, operating_profit, net_income, currency, is_consolidated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query,
		snapshot.CompanyID,
		snapshot.Period.FiscalYear,
		int(snapshot.Period.Quarter),
		snapshot.ReportedAt.Unix(),
		snapshot.ReportedAt.UTC().Format("2006-01-02"),
		snapshot.DisclosureNumber,
		snapshot.DocumentType,
		nullFloat(snapshot.Revenue),
		nullFloat(snapshot.OperatingProfit),
		nullFloat(snapshot.NetIncome),
		snapshot.Currency,
		boolToInt(snapshot.IsConsolidated),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// supersedes reports whether the incoming snapshot replaces the stored row.
// reported_at decides; disclosure numbers break ties, since the upstream
// assigns same-timestamp corrections a larger number.
func supersedes(snapshot *domain.DisclosureSnapshot, storedAt int64, storedNumber string) bool {
	newAt := snapshot.ReportedAt.Unix()
	if newAt != storedAt {
		return newAt > storedAt
	}
	return snapshot.DisclosureNumber > storedNumber
}

// Get returns the snapshot for a key, or nil if absent.
func (r *SnapshotRepository) Get(companyID string, period domain.PeriodKey) (*domain.DisclosureSnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots WHERE company_id = ? AND fiscal_year = ? AND quarter = ?"

	rows, err := r.db.Query(query, companyID, period.FiscalYear, int(period.Quarter))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	snapshot, err := scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return snapshot, nil
}

// ListByCompany returns the company's earnings-statement snapshots in
// fiscal-period order.
func (r *SnapshotRepository) ListByCompany(companyID string) ([]domain.DisclosureSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE company_id = ? AND document_type LIKE '%FinancialStatements%'
		ORDER BY fiscal_year ASC, quarter ASC
	`

	rows, err := r.db.Query(query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots by company: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListByDate returns all snapshots reported on a date (YYYY-MM-DD).
func (r *SnapshotRepository) ListByDate(targetDate string) ([]domain.DisclosureSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE reported_date = ?
		ORDER BY company_id ASC, fiscal_year ASC, quarter ASC
	`

	rows, err := r.db.Query(query, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots by date: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]domain.DisclosureSnapshot, error) {
	var snapshots []domain.DisclosureSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(rows *sql.Rows) (*domain.DisclosureSnapshot, error) {
	var s domain.DisclosureSnapshot
	var fiscalYear, quarter int
	var reportedAt int64
	var revenue, operatingProfit, netIncome sql.NullFloat64
	var isConsolidated int

	err := rows.Scan(
		&s.CompanyID,
		&fiscalYear,
		&quarter,
		&reportedAt,
		&s.DisclosureNumber,
		&s.DocumentType,
		&revenue,
		&operatingProfit,
		&netIncome,
		&s.Currency,
		&isConsolidated,
	)
	if err != nil {
		return nil, err
	}

	s.Period = domain.PeriodKey{FiscalYear: fiscalYear, Quarter: domain.Quarter(quarter)}
	s.ReportedAt = time.Unix(reportedAt, 0).UTC()
	s.Revenue = floatPtr(revenue)
	s.OperatingProfit = floatPtr(operatingProfit)
	s.NetIncome = floatPtr(netIncome)
	s.IsConsolidated = isConsolidated != 0

	return &s, nil
}

// nullFloat converts an optional figure to sql.NullFloat64.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
