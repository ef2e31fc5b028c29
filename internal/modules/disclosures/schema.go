// Package disclosures owns the disclosure snapshot store, the per-date sync
// cursors, and the rate-budgeted sync scheduler that fills them from the
// upstream provider.
package disclosures

// Schema is the DDL for disclosures.db.
// Snapshots are keyed by (company_id, fiscal_year, quarter); reported_at
// arbitrates corrections. Cursors are keyed by target date.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    company_id        TEXT NOT NULL,
    fiscal_year       INTEGER NOT NULL,
    quarter           INTEGER NOT NULL,
    reported_at       INTEGER NOT NULL,
    reported_date     TEXT NOT NULL,
    disclosure_number TEXT NOT NULL DEFAULT '',
    document_type     TEXT NOT NULL DEFAULT '',
    revenue           REAL,
    operating_profit  REAL,
    net_income        REAL,
    currency          TEXT NOT NULL DEFAULT 'JPY',
    is_consolidated   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (company_id, fiscal_year, quarter)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_reported_date ON snapshots(reported_date);
CREATE INDEX IF NOT EXISTS idx_snapshots_company ON snapshots(company_id);

CREATE TABLE IF NOT EXISTS sync_cursors (
    target_date     TEXT PRIMARY KEY,
    state           TEXT NOT NULL DEFAULT 'not_started',
    next_page_token TEXT NOT NULL DEFAULT '',
    pages_done      INTEGER NOT NULL DEFAULT 0,
    fetched         INTEGER NOT NULL DEFAULT 0,
    skipped         INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    updated_at      INTEGER NOT NULL
);
`
