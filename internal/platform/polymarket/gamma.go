package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"encoding/json"
)

// GammaClient is the REST client for the Polymarket Gamma API, which serves
// market metadata: outcome token IDs per condition and resolution state.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarkets returns a paginated list of markets, oldest-updated first so a
// refresh sweep converges.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

// GetMarketsByCondition returns the markets for the given condition IDs,
// used to backfill mappings and resolutions for conditions first seen in
// wallet activity.
func (g *GammaClient) GetMarketsByCondition(ctx context.Context, conditionIDs []string) ([]APIMarket, error) {
	if len(conditionIDs) == 0 {
		return nil, nil
	}
	params := url.Values{}
	for _, id := range conditionIDs {
		params.Add("condition_ids", id)
	}

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets by condition: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	// The markets endpoint may wrap its payload in a data envelope.
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
			return envelope.Data, nil
		}
	}
	return body, nil
}
