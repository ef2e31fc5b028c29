// Package prices stores raw daily quotes in history.db. Quotes are kept as
// delivered for the dashboard's price context next to each disclosure; no
// indicator computation happens anywhere in this system.
package prices

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
)

// Schema is the DDL for history.db.
const Schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
    company_id        TEXT NOT NULL,
    trade_date        TEXT NOT NULL,
    open              REAL,
    high              REAL,
    low               REAL,
    close             REAL,
    volume            REAL,
    turnover_value    REAL,
    adjustment_factor REAL NOT NULL DEFAULT 1.0,
    adjusted_close    REAL,
    PRIMARY KEY (company_id, trade_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(trade_date);
`

// OpenHistoryDB opens history.db with the mattn driver in WAL mode and
// applies the schema.
func OpenHistoryDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return db, nil
}

// HistoryDB provides access to stored daily quotes.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor.
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// UpsertDailyPrice inserts or replaces one day's quote.
func (h *HistoryDB) UpsertDailyPrice(p *domain.DailyPrice) error {
	if p == nil {
		return fmt.Errorf("nil daily price")
	}
	if p.CompanyID == "" || p.TradeDate == "" {
		return fmt.Errorf("company ID and trade date are required for price upsert")
	}

	query := `
		INSERT OR REPLACE INTO daily_prices
		(company_id, trade_date, open, high, low, close, volume, turnover_value,
		 adjustment_factor, adjusted_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := h.db.Exec(query,
		p.CompanyID,
		p.TradeDate,
		nullFloat(p.Open),
		nullFloat(p.High),
		nullFloat(p.Low),
		nullFloat(p.Close),
		nullFloat(p.Volume),
		nullFloat(p.TurnoverValue),
		p.AdjustmentFactor,
		nullFloat(p.AdjustedClose),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily price: %w", err)
	}
	return nil
}

// GetDailyPrices returns the most recent quotes for a company, newest first.
func (h *HistoryDB) GetDailyPrices(companyID string, limit int) ([]domain.DailyPrice, error) {
	query := `
		SELECT company_id, trade_date, open, high, low, close, volume, turnover_value,
		       adjustment_factor, adjusted_close
		FROM daily_prices
		WHERE company_id = ?
		ORDER BY trade_date DESC
		LIMIT ?
	`

	rows, err := h.db.Query(query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []domain.DailyPrice
	for rows.Next() {
		var p domain.DailyPrice
		var open, high, low, closePrice, volume, turnover, adjClose sql.NullFloat64

		err := rows.Scan(&p.CompanyID, &p.TradeDate, &open, &high, &low, &closePrice,
			&volume, &turnover, &p.AdjustmentFactor, &adjClose)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		p.Open = floatPtr(open)
		p.High = floatPtr(high)
		p.Low = floatPtr(low)
		p.Close = floatPtr(closePrice)
		p.Volume = floatPtr(volume)
		p.TurnoverValue = floatPtr(turnover)
		p.AdjustedClose = floatPtr(adjClose)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return prices, nil
}

// LatestClose returns the most recent adjusted close for a company on or
// before the given date, or nil when no quote exists.
func (h *HistoryDB) LatestClose(companyID, onOrBefore string) (*float64, error) {
	query := `
		SELECT COALESCE(adjusted_close, close)
		FROM daily_prices
		WHERE company_id = ? AND trade_date <= ? AND (adjusted_close IS NOT NULL OR close IS NOT NULL)
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var value sql.NullFloat64
	err := h.db.QueryRow(query, companyID, onOrBefore).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest close: %w", err)
	}
	return floatPtr(value), nil
}

// CountForDate returns how many quotes are stored for a trade date.
func (h *HistoryDB) CountForDate(tradeDate string) (int, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM daily_prices WHERE trade_date = ?", tradeDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count daily prices: %w", err)
	}
	return count, nil
}

// PruneBefore removes quotes older than the cutoff date and returns the
// number of rows deleted.
func (h *HistoryDB) PruneBefore(cutoff string) (int64, error) {
	result, err := h.db.Exec("DELETE FROM daily_prices WHERE trade_date < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily prices: %w", err)
	}
	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		h.log.Info().Int64("rows", deleted).Str("cutoff", cutoff).Msg("Pruned old daily prices")
	}
	return deleted, nil
}

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
