package disclosures

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
)

// CursorRepository persists per-date sync cursors in disclosures.db.
// Implements domain.CursorStore.
type CursorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCursorRepository creates a new cursor repository.
func NewCursorRepository(db *sql.DB, log zerolog.Logger) *CursorRepository {
	return &CursorRepository{
		db:  db,
		log: log.With().Str("repo", "cursor").Logger(),
	}
}

// Save writes the cursor for its target date, replacing any prior state.
func (r *CursorRepository) Save(cursor *domain.SyncCursor) error {
	if cursor == nil {
		return fmt.Errorf("nil cursor")
	}
	if cursor.TargetDate == "" {
		return fmt.Errorf("target date is required for cursor save")
	}

	query := `
		INSERT OR REPLACE INTO sync_cursors
		(target_date, state, next_page_token, pages_done, fetched, skipped, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		cursor.TargetDate,
		string(cursor.State),
		cursor.NextPageToken,
		cursor.PagesDone,
		cursor.Fetched,
		cursor.Skipped,
		cursor.LastError,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

// Load returns the cursor for a date, or nil if none was ever saved.
func (r *CursorRepository) Load(targetDate string) (*domain.SyncCursor, error) {
	query := `
		SELECT target_date, state, next_page_token, pages_done, fetched, skipped, last_error, updated_at
		FROM sync_cursors WHERE target_date = ?
	`

	var c domain.SyncCursor
	var state string
	var updatedAt int64
	err := r.db.QueryRow(query, targetDate).Scan(
		&c.TargetDate,
		&state,
		&c.NextPageToken,
		&c.PagesDone,
		&c.Fetched,
		&c.Skipped,
		&c.LastError,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync cursor: %w", err)
	}

	c.State = domain.CursorState(state)
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &c, nil
}

// ListByState returns all cursors currently in the given state, oldest first.
// Used at startup to find interrupted runs worth resuming.
func (r *CursorRepository) ListByState(state domain.CursorState) ([]domain.SyncCursor, error) {
	query := `
		SELECT target_date, state, next_page_token, pages_done, fetched, skipped, last_error, updated_at
		FROM sync_cursors WHERE state = ? ORDER BY target_date ASC
	`

	rows, err := r.db.Query(query, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to query sync cursors: %w", err)
	}
	defer rows.Close()

	var cursors []domain.SyncCursor
	for rows.Next() {
		var c domain.SyncCursor
		var stateStr string
		var updatedAt int64
		if err := rows.Scan(&c.TargetDate, &stateStr, &c.NextPageToken, &c.PagesDone,
			&c.Fetched, &c.Skipped, &c.LastError, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync cursor: %w", err)
		}
		c.State = domain.CursorState(stateStr)
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync cursors: %w", err)
	}
	return cursors, nil
}
