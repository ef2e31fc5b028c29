package scoring

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kessanview/kessanview/internal/domain"
)

// Schema is the DDL for the scores table, which lives alongside the
// snapshots it derives from in disclosures.db.
const Schema = `
CREATE TABLE IF NOT EXISTS scores (
    company_id  TEXT NOT NULL,
    fiscal_year INTEGER NOT NULL,
    quarter     INTEGER NOT NULL,
    target_date TEXT NOT NULL,
    score       INTEGER NOT NULL,
    category    TEXT NOT NULL,
    inputs      BLOB NOT NULL,
    input_hash  TEXT NOT NULL,
    PRIMARY KEY (company_id, fiscal_year, quarter)
);

CREATE INDEX IF NOT EXISTS idx_scores_target_date ON scores(target_date, score DESC);
`

// ScoreRepository persists score records. Implements domain.ScoreStore.
// Inputs are stored as a msgpack blob so the exact delta snapshot a score
// was computed from survives schema-free.
type ScoreRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(db *sql.DB, log zerolog.Logger) *ScoreRepository {
	return &ScoreRepository{
		db:  db,
		log: log.With().Str("repo", "score").Logger(),
	}
}

// Save writes a score record under its (companyID, period) key for the
// given target date, replacing any previous score.
func (r *ScoreRepository) Save(record *domain.ScoreRecord, targetDate string) error {
	if record == nil {
		return fmt.Errorf("nil score record")
	}

	inputs, err := msgpack.Marshal(&record.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode score inputs: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO scores
		(company_id, fiscal_year, quarter, target_date, score, category, inputs, input_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		record.CompanyID,
		record.Period.FiscalYear,
		int(record.Period.Quarter),
		targetDate,
		record.Score,
		record.Category,
		inputs,
		record.InputHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// Get returns the score record for a key, or nil if absent.
func (r *ScoreRepository) Get(companyID string, period domain.PeriodKey) (*domain.ScoreRecord, error) {
	query := `
		SELECT company_id, fiscal_year, quarter, score, category, inputs, input_hash
		FROM scores WHERE company_id = ? AND fiscal_year = ? AND quarter = ?
	`

	rows, err := r.db.Query(query, companyID, period.FiscalYear, int(period.Quarter))
	if err != nil {
		return nil, fmt.Errorf("failed to query score: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	record, err := scanScore(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	return record, nil
}

// ListByDate returns all score records for a target date in rank order.
func (r *ScoreRepository) ListByDate(targetDate string) ([]domain.ScoreRecord, error) {
	query := `
		SELECT company_id, fiscal_year, quarter, score, category, inputs, input_hash
		FROM scores WHERE target_date = ?
		ORDER BY score DESC, company_id ASC
	`

	rows, err := r.db.Query(query, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores by date: %w", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		record, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return records, nil
}

func scanScore(rows *sql.Rows) (*domain.ScoreRecord, error) {
	var record domain.ScoreRecord
	var fiscalYear, quarter int
	var inputs []byte

	err := rows.Scan(
		&record.CompanyID,
		&fiscalYear,
		&quarter,
		&record.Score,
		&record.Category,
		&inputs,
		&record.InputHash,
	)
	if err != nil {
		return nil, err
	}

	record.Period = domain.PeriodKey{FiscalYear: fiscalYear, Quarter: domain.Quarter(quarter)}
	if err := msgpack.Unmarshal(inputs, &record.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode score inputs: %w", err)
	}
	return &record, nil
}
