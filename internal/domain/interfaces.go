package domain

import "context"

// Page is one page of upstream disclosure records.
// NextPageToken is empty on the final page.
type Page struct {
	Records       []DisclosureSnapshot
	Malformed     int // records dropped during parsing (validation failures)
	NextPageToken string
}

// DisclosureSource is the upstream provider of disclosure snapshots.
// Implementations fail with TransientUpstreamError or PermanentUpstreamError;
// individually malformed records are dropped and counted, not fatal.
type DisclosureSource interface {
	// FetchPage returns the disclosures released on targetDate (YYYY-MM-DD)
	// starting at pageToken. An empty pageToken requests the first page.
	FetchPage(ctx context.Context, targetDate string, pageToken string) (*Page, error)
}

// SnapshotStore persists disclosure snapshots.
type SnapshotStore interface {
	// Upsert applies the overwrite-if-not-older rule. It returns false when
	// an existing, equal-or-newer record made the write a no-op.
	Upsert(snapshot *DisclosureSnapshot) (applied bool, err error)

	// Get returns the snapshot for a key, or nil if absent.
	Get(companyID string, period PeriodKey) (*DisclosureSnapshot, error)

	// ListByCompany returns all earnings-statement snapshots of a company
	// in fiscal-period order.
	ListByCompany(companyID string) ([]DisclosureSnapshot, error)

	// ListByDate returns all snapshots reported on a date (YYYY-MM-DD).
	ListByDate(targetDate string) ([]DisclosureSnapshot, error)
}

// CursorStore persists per-date sync cursors.
type CursorStore interface {
	Save(cursor *SyncCursor) error
	// Load returns the cursor for a date, or nil if none was ever saved.
	Load(targetDate string) (*SyncCursor, error)
}

// CompanyStore persists the company master.
type CompanyStore interface {
	Upsert(company *Company) error
	Get(code string) (*Company, error)
}

// ScoreStore persists score records.
type ScoreStore interface {
	Save(record *ScoreRecord, targetDate string) error
	Get(companyID string, period PeriodKey) (*ScoreRecord, error)
	ListByDate(targetDate string) ([]ScoreRecord, error)
}
