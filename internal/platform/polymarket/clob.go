package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// ClobClient is the REST client for the public, unauthenticated endpoints
// of the Polymarket CLOB API. It serves current midpoint prices for
// mark-to-market valuation.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Midpoint returns the current midpoint price for one outcome token.
func (c *ClobClient) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doRequest(ctx, http.MethodGet, "/midpoint?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get midpoint %s: %w", tokenID, err)
	}

	var result struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}

	mid, err := strconv.ParseFloat(result.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", result.Mid, err)
	}
	return mid, nil
}

// Midpoints returns current midpoint prices for multiple tokens in one
// request. Tokens without a live book are omitted from the result map.
func (c *ClobClient) Midpoints(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	params := make([]map[string]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		params = append(params, map[string]string{"token_id": id})
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/midpoints", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get midpoints: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode midpoints: %w", err)
	}

	mids := make(map[string]float64, len(raw))
	for id, s := range raw {
		if mid, err := strconv.ParseFloat(s, 64); err == nil && mid > 0 {
			mids[id] = mid
		}
	}
	return mids, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends, and reads an HTTP request against the CLOB API
// and returns the raw response body.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
