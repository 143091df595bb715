// Package goldsky is a GraphQL client for the Goldsky subgraph indexers:
// order fills from the Polymarket CTF Exchange orderbook subgraph, and
// split/merge/redemption events from the activity subgraph.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// collateralAssetID is the asset ID the CTF Exchange uses for the USDC side
// of a fill.
const collateralAssetID = "0"

// usdcScale converts raw 6-decimal subgraph amounts to collateral units.
const usdcScale = 1e6

// rateLimitKey throttles all subgraph queries under one budget.
const rateLimitKey = "goldsky"

// Client queries the Goldsky subgraph endpoints.
type Client struct {
	orderbookURL string
	activityURL  string
	apiKey       string
	httpClient   *http.Client
	limiter      domain.RateLimiter // optional
}

// NewClient creates a new Goldsky GraphQL client.
//
// orderbookURL is the orderbook subgraph endpoint, e.g.
// "https://api.goldsky.com/api/public/.../subgraphs/polymarket-orderbook-resync/gn";
// activityURL is the activity subgraph carrying split/merge/redemption
// events. limiter may be nil.
func NewClient(orderbookURL, activityURL, apiKey string, limiter domain.RateLimiter) *Client {
	return &Client{
		orderbookURL: orderbookURL,
		activityURL:  activityURL,
		apiKey:       strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// orderFilledEvent is the raw subgraph row for one exchange fill.
type orderFilledEvent struct {
	ID                string `json:"id"`
	TransactionHash   string `json:"transactionHash"`
	Timestamp         string `json:"timestamp"`
	Maker             string `json:"maker"`
	MakerAssetID      string `json:"makerAssetId"`
	MakerAmountFilled string `json:"makerAmountFilled"`
	Taker             string `json:"taker"`
	TakerAssetID      string `json:"takerAssetId"`
	TakerAmountFilled string `json:"takerAmountFilled"`
}

const orderFillFields = `
	id
	transactionHash
	timestamp
	maker
	makerAssetId
	makerAmountFilled
	taker
	takerAssetId
	takerAmountFilled`

// FetchOrderFills queries fills at or after the given timestamp across all
// wallets, limited by first. Each subgraph event yields one record per
// wallet perspective (maker and taker).
func (c *Client) FetchOrderFills(ctx context.Context, since time.Time, first int) ([]domain.RawFill, error) {
	query := `
		query OrderFills($since: BigInt!, $first: Int!) {
			orderFilledEvents(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { timestamp_gte: $since }
			) {` + orderFillFields + `
			}
		}
	`
	variables := map[string]any{
		"since": strconv.FormatInt(since.Unix(), 10),
		"first": first,
	}

	events, err := c.queryOrderFills(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch order fills: %w", err)
	}

	var fills []domain.RawFill
	for _, e := range events {
		fills = append(fills, expandFillPerspectives(e)...)
	}
	return fills, nil
}

// FetchWalletFills queries one wallet's fills at or after the given unix
// timestamp, in both maker and taker roles.
func (c *Client) FetchWalletFills(ctx context.Context, wallet string, since int64, first int) ([]domain.RawFill, error) {
	query := `
		query WalletFills($wallet: String!, $since: BigInt!, $first: Int!) {
			maker: orderFilledEvents(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { maker: $wallet, timestamp_gte: $since }
			) {` + orderFillFields + `
			}
			taker: orderFilledEvents(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { taker: $wallet, timestamp_gte: $since }
			) {` + orderFillFields + `
			}
		}
	`
	wallet = strings.ToLower(wallet)
	variables := map[string]any{
		"wallet": wallet,
		"since":  strconv.FormatInt(since, 10),
		"first":  first,
	}

	respData, err := c.doQuery(ctx, c.orderbookURL, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch wallet fills: %w", err)
	}

	var result struct {
		Maker []orderFilledEvent `json:"maker"`
		Taker []orderFilledEvent `json:"taker"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode wallet fills: %w", err)
	}

	var fills []domain.RawFill
	for _, e := range append(result.Maker, result.Taker...) {
		for _, f := range expandFillPerspectives(e) {
			if strings.EqualFold(f.Wallet, wallet) {
				fills = append(fills, f)
			}
		}
	}
	return fills, nil
}

// expandFillPerspectives converts one subgraph fill into its per-wallet
// records. The collateral asset identifies the trade direction: the party
// paying USDC bought the outcome token.
func expandFillPerspectives(e orderFilledEvent) []domain.RawFill {
	ts := parseInt(e.Timestamp)
	makerAmt := parseAmount(e.MakerAmountFilled)
	takerAmt := parseAmount(e.TakerAmountFilled)

	var tokenID string
	var makerSide domain.FillSide
	var usdc, tokens float64
	if e.MakerAssetID == collateralAssetID {
		// Maker pays USDC for the taker's outcome tokens.
		tokenID = e.TakerAssetID
		makerSide = domain.FillBuy
		usdc, tokens = makerAmt, takerAmt
	} else {
		tokenID = e.MakerAssetID
		makerSide = domain.FillSell
		usdc, tokens = takerAmt, makerAmt
	}

	takerSide := domain.FillSell
	if makerSide == domain.FillSell {
		takerSide = domain.FillBuy
	}

	base := domain.RawFill{
		TokenID:     tokenID,
		USDCAmount:  usdc,
		TokenAmount: tokens,
		Timestamp:   ts,
		TxHash:      e.TransactionHash,
	}

	maker := base
	maker.EventID = e.ID + "-m"
	maker.Wallet = strings.ToLower(e.Maker)
	maker.Side = makerSide
	maker.Role = domain.RoleMaker

	taker := base
	taker.EventID = e.ID + "-t"
	taker.Wallet = strings.ToLower(e.Taker)
	taker.Side = takerSide
	taker.Role = domain.RoleTaker

	return []domain.RawFill{maker, taker}
}

// collateralRow is the raw subgraph row shared by split, merge, and
// redemption entities.
type collateralRow struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Stakeholder string `json:"stakeholder"`
	Condition   string `json:"condition"`
	Amount      string `json:"amount"`
}

// FetchWalletCollateral queries one wallet's split, merge, and redemption
// events at or after the given unix timestamp.
func (c *Client) FetchWalletCollateral(ctx context.Context, wallet string, since int64, first int) ([]domain.RawCollateralEvent, error) {
	query := `
		query WalletCollateral($wallet: String!, $since: BigInt!, $first: Int!) {
			splits(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { stakeholder: $wallet, timestamp_gte: $since }
			) { id timestamp stakeholder condition amount }
			merges(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { stakeholder: $wallet, timestamp_gte: $since }
			) { id timestamp stakeholder condition amount }
			redemptions(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { redeemer: $wallet, timestamp_gte: $since }
			) { id timestamp redeemer condition payout }
		}
	`
	variables := map[string]any{
		"wallet": strings.ToLower(wallet),
		"since":  strconv.FormatInt(since, 10),
		"first":  first,
	}

	respData, err := c.doQuery(ctx, c.activityURL, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch wallet collateral: %w", err)
	}
	events, err := decodeCollateral(respData)
	if err != nil {
		return nil, fmt.Errorf("goldsky: %w", err)
	}
	return events, nil
}

// decodeCollateral unpacks the shared splits/merges/redemptions response
// shape into raw collateral events.
func decodeCollateral(respData json.RawMessage) ([]domain.RawCollateralEvent, error) {
	var result struct {
		Splits      []collateralRow `json:"splits"`
		Merges      []collateralRow `json:"merges"`
		Redemptions []struct {
			ID        string `json:"id"`
			Timestamp string `json:"timestamp"`
			Redeemer  string `json:"redeemer"`
			Condition string `json:"condition"`
			Payout    string `json:"payout"`
		} `json:"redemptions"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("decode collateral: %w", err)
	}

	var events []domain.RawCollateralEvent
	for _, r := range result.Splits {
		events = append(events, collateralEvent(r, domain.CollateralSplit))
	}
	for _, r := range result.Merges {
		events = append(events, collateralEvent(r, domain.CollateralMerge))
	}
	for _, r := range result.Redemptions {
		events = append(events, domain.RawCollateralEvent{
			EventID:     r.ID,
			Wallet:      strings.ToLower(r.Redeemer),
			Type:        domain.CollateralRedemption,
			ConditionID: r.Condition,
			Amount:      parseAmount(r.Payout),
			Timestamp:   parseInt(r.Timestamp),
			TxHash:      txHashOf(r.ID),
		})
	}
	return events, nil
}

// FetchCollateral queries split, merge, and redemption events at or after
// the given timestamp across all wallets, limited by first per entity.
func (c *Client) FetchCollateral(ctx context.Context, since time.Time, first int) ([]domain.RawCollateralEvent, error) {
	query := `
		query Collateral($since: BigInt!, $first: Int!) {
			splits(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { timestamp_gte: $since }
			) { id timestamp stakeholder condition amount }
			merges(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { timestamp_gte: $since }
			) { id timestamp stakeholder condition amount }
			redemptions(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { timestamp_gte: $since }
			) { id timestamp redeemer condition payout }
		}
	`
	variables := map[string]any{
		"since": strconv.FormatInt(since.Unix(), 10),
		"first": first,
	}

	respData, err := c.doQuery(ctx, c.activityURL, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch collateral: %w", err)
	}
	events, err := decodeCollateral(respData)
	if err != nil {
		return nil, fmt.Errorf("goldsky: %w", err)
	}
	return events, nil
}

func collateralEvent(r collateralRow, typ domain.CollateralEventType) domain.RawCollateralEvent {
	return domain.RawCollateralEvent{
		EventID:     r.ID,
		Wallet:      strings.ToLower(r.Stakeholder),
		Type:        typ,
		ConditionID: r.Condition,
		Amount:      parseAmount(r.Amount),
		Timestamp:   parseInt(r.Timestamp),
		TxHash:      txHashOf(r.ID),
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) queryOrderFills(ctx context.Context, query string, variables map[string]any) ([]orderFilledEvent, error) {
	respData, err := c.doQuery(ctx, c.orderbookURL, query, variables)
	if err != nil {
		return nil, err
	}
	var result struct {
		OrderFilledEvents []orderFilledEvent `json:"orderFilledEvents"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("decode order fills: %w", err)
	}
	return result.OrderFilledEvents, nil
}

// doQuery executes a GraphQL query against the given endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, endpoint, query string, variables map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, err
		}
	}

	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / usdcScale
}

// txHashOf extracts the transaction hash from a subgraph row ID of the form
// "0xhash" or "0xhash-logIndex".
func txHashOf(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
