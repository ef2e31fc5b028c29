package disclosures

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessanview/kessanview/internal/domain"
	testhelpers "github.com/kessanview/kessanview/internal/testing"
)

func newTestSnapshotRepo(t *testing.T) (*SnapshotRepository, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "disclosures", Schema)
	return NewSnapshotRepository(db.Conn(), zerolog.Nop()), cleanup
}

func ptr(v float64) *float64 { return &v }

func sampleSnapshot(reportedAt time.Time) *domain.DisclosureSnapshot {
	return &domain.DisclosureSnapshot{
		CompanyID:        "7203",
		Period:           domain.PeriodKey{FiscalYear: 2026, Quarter: 2},
		ReportedAt:       reportedAt,
		DisclosureNumber: "20251114500123",
		DocumentType:     "2QFinancialStatements_Consolidated_IFRS",
		Revenue:          ptr(2.5e12),
		OperatingProfit:  ptr(3.1e11),
		NetIncome:        ptr(2.2e11),
		Currency:         "JPY",
		IsConsolidated:   true,
	}
}

func TestSnapshotUpsertAndGet(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	reported := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)
	applied, err := repo.Upsert(sampleSnapshot(reported))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "7203", got.CompanyID)
	assert.True(t, got.ReportedAt.Equal(reported))
	require.NotNil(t, got.Revenue)
	assert.InDelta(t, 2.5e12, *got.Revenue, 1)
	assert.True(t, got.IsConsolidated)
	assert.Equal(t, "JPY", got.Currency)
}

func TestSnapshotGetMissingReturnsNil(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	got, err := repo.Get("9999", domain.PeriodKey{FiscalYear: 2026, Quarter: 1})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotCorrectionOverwrites(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	original := sampleSnapshot(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
	_, err := repo.Upsert(original)
	require.NoError(t, err)

	// A later correction for the same period replaces the figures.
	correction := sampleSnapshot(time.Date(2025, 11, 20, 15, 0, 0, 0, time.UTC))
	correction.Revenue = ptr(2.6e12)
	applied, err := repo.Upsert(correction)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 2.6e12, *got.Revenue, 1)
}

func TestSnapshotStaleRedeliveryRejected(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	current := sampleSnapshot(time.Date(2025, 11, 20, 15, 0, 0, 0, time.UTC))
	_, err := repo.Upsert(current)
	require.NoError(t, err)

	stale := sampleSnapshot(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
	stale.Revenue = ptr(1.0)
	applied, err := repo.Upsert(stale)
	require.NoError(t, err)
	assert.False(t, applied, "older reported_at must not overwrite")

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	assert.InDelta(t, 2.5e12, *got.Revenue, 1)
}

func TestSnapshotEqualRedeliveryIsNoOp(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	reported := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)
	_, err := repo.Upsert(sampleSnapshot(reported))
	require.NoError(t, err)

	// Re-delivering the identical record must not count as a write.
	applied, err := repo.Upsert(sampleSnapshot(reported))
	require.NoError(t, err)
	assert.False(t, applied, "equal reported_at and disclosure_number must be a no-op")

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	assert.InDelta(t, 2.5e12, *got.Revenue, 1)
}

func TestSnapshotSameTimestampCorrectionApplies(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	reported := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)
	_, err := repo.Upsert(sampleSnapshot(reported))
	require.NoError(t, err)

	// A correction can share reported_at; its larger disclosure number wins.
	correction := sampleSnapshot(reported)
	correction.DisclosureNumber = "20251114500456"
	correction.Revenue = ptr(2.6e12)
	applied, err := repo.Upsert(correction)
	require.NoError(t, err)
	assert.True(t, applied)

	// The older number re-delivered afterwards is rejected.
	applied, err = repo.Upsert(sampleSnapshot(reported))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	assert.InDelta(t, 2.6e12, *got.Revenue, 1)
}

func TestSnapshotNilFiguresRoundTrip(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	s := sampleSnapshot(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
	s.OperatingProfit = nil
	s.NetIncome = nil
	_, err := repo.Upsert(s)
	require.NoError(t, err)

	got, err := repo.Get("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	require.NoError(t, err)
	assert.NotNil(t, got.Revenue)
	assert.Nil(t, got.OperatingProfit)
	assert.Nil(t, got.NetIncome)
}

func TestListByCompanyFiltersAndOrders(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	periods := []domain.PeriodKey{
		{FiscalYear: 2026, Quarter: 2},
		{FiscalYear: 2025, Quarter: 4},
		{FiscalYear: 2026, Quarter: 1},
	}
	for _, p := range periods {
		s := sampleSnapshot(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
		s.Period = p
		_, err := repo.Upsert(s)
		require.NoError(t, err)
	}

	// Forecast revisions are excluded from the company listing.
	revision := sampleSnapshot(time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC))
	revision.Period = domain.PeriodKey{FiscalYear: 2026, Quarter: 3}
	revision.DocumentType = "EarnForecastRevision"
	_, err := repo.Upsert(revision)
	require.NoError(t, err)

	list, err := repo.ListByCompany("7203")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.PeriodKey{FiscalYear: 2025, Quarter: 4}, list[0].Period)
	assert.Equal(t, domain.PeriodKey{FiscalYear: 2026, Quarter: 1}, list[1].Period)
	assert.Equal(t, domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, list[2].Period)
}

func TestListByDate(t *testing.T) {
	repo, cleanup := newTestSnapshotRepo(t)
	defer cleanup()

	a := sampleSnapshot(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
	b := sampleSnapshot(time.Date(2025, 11, 14, 16, 0, 0, 0, time.UTC))
	b.CompanyID = "6758"
	other := sampleSnapshot(time.Date(2025, 11, 15, 15, 0, 0, 0, time.UTC))
	other.CompanyID = "9984"

	for _, s := range []*domain.DisclosureSnapshot{a, b, other} {
		_, err := repo.Upsert(s)
		require.NoError(t, err)
	}

	list, err := repo.ListByDate("2025-11-14")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "6758", list[0].CompanyID)
	assert.Equal(t, "7203", list[1].CompanyID)
}
