// Package universe owns the company master: the reference data every ranked
// result joins against. Filled by the listed-company sync, read by the API.
package universe

// Schema is the DDL for universe.db.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
    code           TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    sector_17_code TEXT NOT NULL DEFAULT '',
    sector_17_name TEXT NOT NULL DEFAULT '',
    sector_33_code TEXT NOT NULL DEFAULT '',
    sector_33_name TEXT NOT NULL DEFAULT '',
    market_code    TEXT NOT NULL DEFAULT '',
    market_name    TEXT NOT NULL DEFAULT '',
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_sector_33 ON companies(sector_33_code);
CREATE INDEX IF NOT EXISTS idx_companies_market ON companies(market_code);
`
