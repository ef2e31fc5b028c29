package jquants

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, zerolog.Nop())
}

func TestFetchPage_ParsesRecordsAndPaginationKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2025-11-14", r.URL.Query().Get("date"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{
					"Code": "67580",
					"DiscDate": "2025-11-14",
					"DiscTime": "15:00:00",
					"DiscNo": "20251114500001",
					"DocType": "2QFinancialStatements_Consolidated_IFRS",
					"CurPerType": "2Q",
					"CurFYEn": "2026-03-31",
					"Sales": "2500000000000",
					"OP": "340000000000",
					"NP": "250000000000"
				}
			],
			"pagination_key": "next-page-token"
		}`))
	})

	page, err := client.FetchPage(context.Background(), "2025-11-14", "")
	require.NoError(t, err)

	require.Len(t, page.Records, 1)
	assert.Equal(t, "next-page-token", page.NextPageToken)
	assert.Equal(t, 0, page.Malformed)

	snap := page.Records[0]
	assert.Equal(t, "67580", snap.CompanyID)
	assert.Equal(t, domain.PeriodKey{FiscalYear: 2026, Quarter: 2}, snap.Period)
	assert.True(t, snap.IsConsolidated)
	assert.True(t, snap.IsEarningsStatement())
	require.NotNil(t, snap.Revenue)
	assert.Equal(t, 2.5e12, *snap.Revenue)
	assert.Equal(t, time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC), snap.ReportedAt)
}

func TestFetchPage_CountsMalformedRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Second record has no Code, third an unknown period type.
		_, _ = w.Write([]byte(`{
			"data": [
				{"Code": "72030", "DiscDate": "20251114", "DocType": "FYFinancialStatements", "CurPerType": "FY", "CurFYEn": "20260331"},
				{"Code": "", "DiscDate": "20251114", "CurPerType": "FY", "CurFYEn": "20260331"},
				{"Code": "99840", "DiscDate": "20251114", "CurPerType": "5Q", "CurFYEn": "20260331"}
			]
		}`))
	})

	page, err := client.FetchPage(context.Background(), "2025-11-14", "")
	require.NoError(t, err)

	assert.Len(t, page.Records, 1)
	assert.Equal(t, 2, page.Malformed)
	assert.Empty(t, page.NextPageToken)
}

func TestFetchPage_MissingFiguresAreNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"Code": "72030", "DiscDate": "20251114", "DocType": "EarnForecastRevision", "CurPerType": "FY", "CurFYEn": "20260331", "Sales": "", "OP": "", "NP": ""}
			]
		}`))
	})

	page, err := client.FetchPage(context.Background(), "2025-11-14", "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	snap := page.Records[0]
	assert.Nil(t, snap.Revenue)
	assert.Nil(t, snap.OperatingProfit)
	assert.Nil(t, snap.NetIncome)
	assert.False(t, snap.IsEarningsStatement())
}

func TestFetchPage_RateLimitIsTransientWithRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchPage(context.Background(), "2025-11-14", "")
	require.Error(t, err)

	var transient *domain.TransientUpstreamError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, http.StatusTooManyRequests, transient.StatusCode)
	assert.Equal(t, 30*time.Second, transient.RetryAfter)
}

func TestFetchPage_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPage(context.Background(), "2025-11-14", "")
	assert.True(t, domain.IsTransient(err))
}

func TestFetchPage_AuthFailureIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "invalid api key"}`))
	})

	_, err := client.FetchPage(context.Background(), "2025-11-14", "")
	require.Error(t, err)

	var permanent *domain.PermanentUpstreamError
	require.True(t, errors.As(err, &permanent))
	assert.Equal(t, http.StatusForbidden, permanent.StatusCode)
	assert.False(t, domain.IsTransient(err))
}

func TestFetchPage_MalformedBodyIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	})

	_, err := client.FetchPage(context.Background(), "2025-11-14", "")
	assert.True(t, domain.IsTransient(err))
}

func TestListedInfoPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"Code": "67580", "CoName": "Sony Group", "S33": "3250", "S33Nm": "Electric Appliances", "Mkt": "0111", "MktNm": "Prime"},
				{"Code": "", "CoName": "nameless"}
			]
		}`))
	})

	companies, next, err := client.ListedInfoPage(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, companies, 1)
	assert.Equal(t, "Sony Group", companies[0].Name)
	assert.Equal(t, "Prime", companies[0].MarketName)
}

func TestDailyQuotesPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"Code": "67580", "Date": "2025-11-14", "O": "3000", "H": "3100", "L": "2950", "C": "3050", "Vo": "1200000", "AdjFactor": "1.0", "AdjC": "3050"}
			],
			"pagination_key": "p2"
		}`))
	})

	prices, next, err := client.DailyQuotesPage(context.Background(), "2025-11-14", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", next)
	require.Len(t, prices, 1)
	assert.Equal(t, "2025-11-14", prices[0].TradeDate)
	require.NotNil(t, prices[0].Close)
	assert.Equal(t, 3050.0, *prices[0].Close)
}

func TestFetchPage_ContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchPage(ctx, "2025-11-14", "")
	assert.ErrorIs(t, err, context.Canceled)
}
