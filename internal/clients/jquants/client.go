// Package jquants provides the J-Quants API V2 client.
//
// The client performs one upstream request per call and classifies failures
// into the transient/permanent taxonomy; budgeting, waiting, and retrying are
// the sync scheduler's responsibility.
package jquants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kessanview/kessanview/internal/domain"
	"github.com/rs/zerolog"
)

const (
	endpointStatements  = "/fins/summary"
	endpointListedInfo  = "/equities/master"
	endpointDailyQuotes = "/equities/bars/daily"

	requestTimeout = 30 * time.Second
)

// Client is a J-Quants API V2 client. It implements domain.DisclosureSource.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Config holds client configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// NewClient creates a new J-Quants client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With().Str("component", "jquants").Logger(),
	}
}

// FetchPage returns one page of disclosures released on targetDate.
// An empty pageToken requests the first page.
func (c *Client) FetchPage(ctx context.Context, targetDate string, pageToken string) (*domain.Page, error) {
	params := url.Values{}
	params.Set("date", targetDate)
	if pageToken != "" {
		params.Set("pagination_key", pageToken)
	}

	var resp statementsResponse
	if err := c.get(ctx, endpointStatements, params, &resp); err != nil {
		return nil, err
	}

	page := &domain.Page{NextPageToken: resp.PaginationKey}
	for _, raw := range resp.Data {
		snapshot, err := raw.toSnapshot()
		if err != nil {
			var integrity *domain.DataIntegrityError
			if errors.As(err, &integrity) {
				page.Malformed++
				c.log.Debug().Err(err).Str("date", targetDate).Msg("Skipping malformed record")
				continue
			}
			return nil, err
		}
		page.Records = append(page.Records, *snapshot)
	}

	return page, nil
}

// ListedInfoPage returns one page of the listed-company master.
func (c *Client) ListedInfoPage(ctx context.Context, pageToken string) ([]domain.Company, string, error) {
	params := url.Values{}
	if pageToken != "" {
		params.Set("pagination_key", pageToken)
	}

	var resp listedInfoResponse
	if err := c.get(ctx, endpointListedInfo, params, &resp); err != nil {
		return nil, "", err
	}

	companies := make([]domain.Company, 0, len(resp.Data))
	for _, raw := range resp.Data {
		if raw.Code == "" {
			continue
		}
		companies = append(companies, raw.toCompany())
	}

	return companies, resp.PaginationKey, nil
}

// DailyQuotesPage returns one page of quotes for all companies on targetDate.
func (c *Client) DailyQuotesPage(ctx context.Context, targetDate string, pageToken string) ([]domain.DailyPrice, string, error) {
	params := url.Values{}
	params.Set("date", targetDate)
	if pageToken != "" {
		params.Set("pagination_key", pageToken)
	}

	var resp dailyQuotesResponse
	if err := c.get(ctx, endpointDailyQuotes, params, &resp); err != nil {
		return nil, "", err
	}

	prices := make([]domain.DailyPrice, 0, len(resp.Data))
	for _, raw := range resp.Data {
		price, ok := raw.toDailyPrice()
		if !ok {
			continue
		}
		prices = append(prices, price)
	}

	return prices, resp.PaginationKey, nil
}

// get performs a single GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation propagates untouched so callers can tell
		// an aborted run from an upstream outage.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &domain.TransientUpstreamError{Err: err}
		}
		return &domain.TransientUpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &domain.TransientUpstreamError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.TransientUpstreamError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        errors.New("rate limited"),
		}
	case resp.StatusCode >= 500:
		return &domain.TransientUpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server error: %s", truncate(body, 200)),
		}
	default:
		return &domain.PermanentUpstreamError{
			StatusCode: resp.StatusCode,
			Message:    truncate(body, 500),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.TransientUpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}

	return nil
}

// parseRetryAfter reads a Retry-After header in seconds form.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
