package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/domain"
	"github.com/kessanview/kessanview/internal/events"
	"github.com/kessanview/kessanview/internal/modules/analysis"
	"github.com/kessanview/kessanview/internal/modules/disclosures"
	"github.com/kessanview/kessanview/internal/modules/scoring"
	"github.com/kessanview/kessanview/internal/modules/universe"
	testhelpers "github.com/kessanview/kessanview/internal/testing"
)

// emptySource terminates every sync after a single empty page.
type emptySource struct{}

func (emptySource) FetchPage(ctx context.Context, targetDate, pageToken string) (*domain.Page, error) {
	return &domain.Page{}, nil
}

type apiFixture struct {
	router    chi.Router
	snapshots *disclosures.SnapshotRepository
	companies *universe.CompanyRepository
	cursors   *disclosures.CursorRepository
	bus       *events.Bus
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := zerolog.Nop()

	universeDB, universeCleanup := testhelpers.NewTestDB(t, "universe", universe.Schema)
	t.Cleanup(universeCleanup)
	discDB, discCleanup := testhelpers.NewTestDB(t, "disclosures", disclosures.Schema+scoring.Schema)
	t.Cleanup(discCleanup)

	companies := universe.NewCompanyRepository(universeDB.Conn(), log)
	snapshots := disclosures.NewSnapshotRepository(discDB.Conn(), log)
	cursors := disclosures.NewCursorRepository(discDB.Conn(), log)
	scores := scoring.NewScoreRepository(discDB.Conn(), log)

	bus := events.NewBus()
	deltas := analysis.NewDeltaComputer(snapshots, log)
	signals := analysis.NewSignals(snapshots)
	engine := scoring.NewEngine(config.DefaultScoringWeights(), log)
	recompute := scoring.NewRecomputeService(snapshots, scores, deltas, engine, bus, log)
	recompute.Start()

	cfg := &config.Config{
		JQuantsPlan:     config.TierPremium,
		MaxPageRetries:  2,
		RetryBaseWait:   time.Millisecond,
		BudgetWaitLimit: time.Second,
	}
	rateBudget := budget.New(cfg.TierLimits(), log)
	scheduler := disclosures.NewSyncScheduler(emptySource{}, snapshots, cursors, rateBudget, bus, cfg, log)

	handlers := NewHandlers(companies, snapshots, scores, deltas, signals, recompute, scheduler, log)

	router := chi.NewRouter()
	router.Get("/api/ranked", handlers.HandleRanked)
	router.Get("/api/disclosures/{code}/{period}", handlers.HandleDetail)
	router.Post("/api/sync/range", handlers.HandleSyncRange)
	router.Post("/api/sync/{date}", handlers.HandleSyncDate)
	router.Get("/api/sync/{date}/status", handlers.HandleSyncStatus)

	return &apiFixture{
		router:    router,
		snapshots: snapshots,
		companies: companies,
		cursors:   cursors,
		bus:       bus,
	}
}

func (fx *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *apiFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// upsertEarnings writes a snapshot through the repository and publishes the
// write, so the recompute service scores it the same way the scheduler would.
func (fx *apiFixture) upsertEarnings(t *testing.T, code string, period domain.PeriodKey, reportedAt time.Time, revenue, op, ni float64) {
	t.Helper()
	snapshot := &domain.DisclosureSnapshot{
		CompanyID:       code,
		Period:          period,
		ReportedAt:      reportedAt,
		DocumentType:    "2QFinancialStatements_Consolidated_JP",
		Revenue:         &revenue,
		OperatingProfit: &op,
		NetIncome:       &ni,
		Currency:        "JPY",
	}
	applied, err := fx.snapshots.Upsert(snapshot)
	require.NoError(t, err)
	require.True(t, applied)
	fx.bus.Publish(events.SnapshotUpserted, &events.SnapshotUpsertedData{
		CompanyID: code,
		Period:    period.String(),
	})
}

func TestHandleRanked(t *testing.T) {
	fx := newAPIFixture(t)
	reported := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)

	require.NoError(t, fx.companies.Upsert(&domain.Company{Code: "7203", Name: "Toyota Motor"}))

	// Q1 baselines, then Q2 disclosures reported on the query date.
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 1},
		time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC), 1000, 100, 60)
	fx.upsertEarnings(t, "9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 1},
		time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC), 500, 50, 30)
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, reported, 1800, 240, 150)
	fx.upsertEarnings(t, "9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, reported, 510, 51, 31)

	rec := fx.get(t, "/api/ranked?date=2025-11-14")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "2025-11-14", body["date"])
	assert.EqualValues(t, 2, body["total"])

	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	second := results[1].(map[string]interface{})
	// The large mover ranks above the flat quarter and carries its name
	// from the company master.
	assert.Equal(t, "7203", first["company_id"])
	assert.Equal(t, "Toyota Motor", first["company_name"])
	assert.Equal(t, "2026Q2", first["period"])
	assert.Greater(t, first["score"].(float64), second["score"].(float64))

	assert.NotNil(t, body["distribution"])
}

func TestHandleRanked_FiltersAndPaging(t *testing.T) {
	fx := newAPIFixture(t)
	reported := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 1},
		time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC), 1000, 100, 60)
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, reported, 1800, 240, 150)
	fx.upsertEarnings(t, "9984", domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, reported, 510, 51, 31)

	rec := fx.get(t, "/api/ranked?date=2025-11-14&min_score=99")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 0, body["count"])
	assert.EqualValues(t, 2, body["total"])

	rec = fx.get(t, "/api/ranked?date=2025-11-14&limit=1&offset=1")
	body = decodeBody(t, rec)
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
}

func TestHandleRanked_RequiresValidDate(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.get(t, "/api/ranked")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.get(t, "/api/ranked?date=14-11-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDetail(t *testing.T) {
	fx := newAPIFixture(t)
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 1},
		time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC), 1000, 100, 60)
	fx.upsertEarnings(t, "7203", domain.PeriodKey{FiscalYear: 2026, Quarter: 2},
		time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC), 1800, 240, 150)

	rec := fx.get(t, "/api/disclosures/7203/2026Q2")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	snapshot := body["snapshot"].(map[string]interface{})
	assert.Equal(t, "7203", snapshot["company_id"])
	delta := body["delta"].(map[string]interface{})
	assert.InDelta(t, 80.0, delta["qoq_revenue_pct"].(float64), 0.01)
	require.NotNil(t, body["score"])
	score := body["score"].(map[string]interface{})
	assert.Greater(t, score["score"].(float64), 0.0)
}

func TestHandleDetail_NotFound(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.get(t, "/api/disclosures/7203/2026Q2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.get(t, "/api/disclosures/7203/notaperiod")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSyncDate(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.post(t, "/api/sync/2025-11-14", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "started", body["status"])

	// The background run against the empty source completes quickly.
	require.Eventually(t, func() bool {
		cursor, err := fx.cursors.Load("2025-11-14")
		return err == nil && cursor != nil && cursor.State == domain.CursorComplete
	}, 2*time.Second, 10*time.Millisecond)

	rec = fx.post(t, "/api/sync/not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSyncRange_Validation(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.post(t, "/api/sync/range", `{"from":"2025-11-14","to":"2025-11-10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.post(t, "/api/sync/range", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.post(t, "/api/sync/range", `{"from":"2025-11-10","to":"2025-11-11"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleSyncStatus(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.get(t, "/api/sync/2025-11-14/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not_started", body["state"])

	require.NoError(t, fx.cursors.Save(&domain.SyncCursor{
		TargetDate:    "2025-11-14",
		State:         domain.CursorInProgress,
		NextPageToken: "p3",
		PagesDone:     2,
		Fetched:       120,
	}))

	rec = fx.get(t, "/api/sync/2025-11-14/status")
	body = decodeBody(t, rec)
	assert.Equal(t, "in_progress", body["state"])
	assert.EqualValues(t, 2, body["pages_done"])
	assert.Equal(t, "p3", body["next_page_token"])
}
