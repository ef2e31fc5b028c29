package analysis

import (
	"testing"
	"time"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySnapshotStore is an in-memory SnapshotStore for tests.
type memorySnapshotStore struct {
	snapshots map[string]*domain.DisclosureSnapshot
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{snapshots: make(map[string]*domain.DisclosureSnapshot)}
}

func (m *memorySnapshotStore) key(companyID string, period domain.PeriodKey) string {
	return companyID + "|" + period.String()
}

func (m *memorySnapshotStore) Upsert(s *domain.DisclosureSnapshot) (bool, error) {
	m.snapshots[m.key(s.CompanyID, s.Period)] = s
	return true, nil
}

func (m *memorySnapshotStore) Get(companyID string, period domain.PeriodKey) (*domain.DisclosureSnapshot, error) {
	return m.snapshots[m.key(companyID, period)], nil
}

func (m *memorySnapshotStore) ListByCompany(companyID string) ([]domain.DisclosureSnapshot, error) {
	var out []domain.DisclosureSnapshot
	for _, s := range m.snapshots {
		if s.CompanyID == companyID && s.IsEarningsStatement() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memorySnapshotStore) ListByDate(targetDate string) ([]domain.DisclosureSnapshot, error) {
	return nil, nil
}

func f(v float64) *float64 { return &v }

func earningsSnapshot(company string, period domain.PeriodKey, revenue, op, ni *float64) *domain.DisclosureSnapshot {
	return &domain.DisclosureSnapshot{
		CompanyID:       company,
		Period:          period,
		ReportedAt:      time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC),
		DocumentType:    "FinancialStatements_Consolidated_JP",
		Revenue:         revenue,
		OperatingProfit: op,
		NetIncome:       ni,
		Currency:        "JPY",
	}
}

func TestCompute_QoQAgainstPreviousQuarter(t *testing.T) {
	store := newMemorySnapshotStore()
	_, _ = store.Upsert(earningsSnapshot("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 1}, f(100), f(20), f(10)))

	current := earningsSnapshot("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, f(130), f(30), f(5))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	require.NotNil(t, delta.QoQRevenuePct)
	assert.InDelta(t, 30.0, *delta.QoQRevenuePct, 1e-9)
	require.NotNil(t, delta.QoQOperatingProfitPct)
	assert.InDelta(t, 50.0, *delta.QoQOperatingProfitPct, 1e-9)
	require.NotNil(t, delta.QoQNetIncomePct)
	assert.InDelta(t, -50.0, *delta.QoQNetIncomePct, 1e-9)

	// No prior-year statement stored, so all YoY fields stay undefined.
	assert.Nil(t, delta.YoYRevenuePct)
	assert.Nil(t, delta.YoYOperatingProfitPct)
	assert.Nil(t, delta.YoYNetIncomePct)
}

func TestCompute_YoYAgainstSameQuarterPriorYear(t *testing.T) {
	store := newMemorySnapshotStore()
	_, _ = store.Upsert(earningsSnapshot("7203", domain.PeriodKey{FiscalYear: 2025, Quarter: 2}, f(200), f(-10), f(-20)))

	current := earningsSnapshot("7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, f(250), f(5), f(10))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	require.NotNil(t, delta.YoYRevenuePct)
	assert.InDelta(t, 25.0, *delta.YoYRevenuePct, 1e-9)

	// Sign change flows through the arithmetic: (5 - (-10)) / |-10| = +150%.
	require.NotNil(t, delta.YoYOperatingProfitPct)
	assert.InDelta(t, 150.0, *delta.YoYOperatingProfitPct, 1e-9)
	require.NotNil(t, delta.YoYNetIncomePct)
	assert.InDelta(t, 150.0, *delta.YoYNetIncomePct, 1e-9)
}

func TestCompute_PreviousQuarterOfQ1IsPriorYearQ4(t *testing.T) {
	store := newMemorySnapshotStore()
	_, _ = store.Upsert(earningsSnapshot("6758", domain.PeriodKey{FiscalYear: 2025, Quarter: 4}, f(1000), nil, nil))

	current := earningsSnapshot("6758", domain.PeriodKey{FiscalYear: 2026, Quarter: 1}, f(1100), nil, nil)

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	require.NotNil(t, delta.QoQRevenuePct)
	assert.InDelta(t, 10.0, *delta.QoQRevenuePct, 1e-9)
}

func TestCompute_ZeroBaselineIsUndefined(t *testing.T) {
	store := newMemorySnapshotStore()
	_, _ = store.Upsert(earningsSnapshot("6758", domain.PeriodKey{FiscalYear: 2026, Quarter: 1}, f(0), f(0), f(3)))

	current := earningsSnapshot("6758", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, f(50), f(10), f(6))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	assert.Nil(t, delta.QoQRevenuePct, "zero baseline must be undefined, never infinity")
	assert.Nil(t, delta.QoQOperatingProfitPct)
	require.NotNil(t, delta.QoQNetIncomePct)
	assert.InDelta(t, 100.0, *delta.QoQNetIncomePct, 1e-9)
}

func TestCompute_NoBaselinesAtAll(t *testing.T) {
	store := newMemorySnapshotStore()
	current := earningsSnapshot("9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 3}, f(100), f(10), f(5))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	assert.Nil(t, delta.QoQRevenuePct)
	assert.Nil(t, delta.QoQOperatingProfitPct)
	assert.Nil(t, delta.QoQNetIncomePct)
	assert.Nil(t, delta.YoYRevenuePct)
	assert.Nil(t, delta.YoYOperatingProfitPct)
	assert.Nil(t, delta.YoYNetIncomePct)
}

func TestCompute_ForecastRevisionIsNotABaseline(t *testing.T) {
	store := newMemorySnapshotStore()
	revision := earningsSnapshot("9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 1}, f(999), f(999), f(999))
	revision.DocumentType = "EarnForecastRevision"
	_, _ = store.Upsert(revision)

	current := earningsSnapshot("9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, f(100), f(10), f(5))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	assert.Nil(t, delta.QoQRevenuePct, "forecast revisions must never serve as baselines")
}

func TestDependentKeys(t *testing.T) {
	deps := DependentKeys(domain.PeriodKey{FiscalYear: 2026, Quarter: 2})
	assert.Contains(t, deps, domain.PeriodKey{FiscalYear: 2026, Quarter: 3})
	assert.Contains(t, deps, domain.PeriodKey{FiscalYear: 2027, Quarter: 2})

	// Q4 rolls into the next fiscal year's Q1.
	deps = DependentKeys(domain.PeriodKey{FiscalYear: 2026, Quarter: 4})
	assert.Contains(t, deps, domain.PeriodKey{FiscalYear: 2027, Quarter: 1})
	assert.Contains(t, deps, domain.PeriodKey{FiscalYear: 2027, Quarter: 4})
}

func TestSignals_TurnaroundAndLargeMove(t *testing.T) {
	store := newMemorySnapshotStore()
	_, _ = store.Upsert(earningsSnapshot("7974", domain.PeriodKey{FiscalYear: 2025, Quarter: 2}, f(100), f(10), f(-20)))

	current := earningsSnapshot("7974", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, f(150), f(15), f(5))

	computer := NewDeltaComputer(store, zerolog.Nop())
	delta, err := computer.Compute(current)
	require.NoError(t, err)

	signals, err := NewSignals(store).Detect(current, delta)
	require.NoError(t, err)

	assert.Contains(t, signals, "revenue up 50.0% YoY")
	assert.Contains(t, signals, "operating profit up 50.0% YoY")
	assert.Contains(t, signals, "returned to profit")
}
