package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Only the fields feeding token mappings and resolution state are decoded.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"condition_id"`
	Slug          string   `json:"slug"`
	Active        flexBool `json:"active"`
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"1\",\"0\"]"
	Tokens        []Token  `json:"tokens"`
	ClobTokenIDs  string   `json:"clob_token_ids"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Volume        string   `json:"volume"`
	EndDateISO    string   `json:"end_date_iso"`
	UpdatedAt     string   `json:"updated_at"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// tokenIDs returns the market's outcome token IDs in outcome order,
// preferring the explicit tokens array over the encoded clob_token_ids.
func (m *APIMarket) tokenIDs() []string {
	if len(m.Tokens) > 0 {
		ids := make([]string, 0, len(m.Tokens))
		for _, t := range m.Tokens {
			ids = append(ids, t.TokenID)
		}
		return ids
	}
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// TokenMappings derives the token -> (condition, outcome index) rows for
// this market. Markets without usable token IDs yield nothing.
func (m *APIMarket) TokenMappings() []domain.TokenMapping {
	if m.ConditionID == "" {
		return nil
	}
	ids := m.tokenIDs()
	mappings := make([]domain.TokenMapping, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		mappings = append(mappings, domain.TokenMapping{
			TokenID:      id,
			ConditionID:  m.ConditionID,
			OutcomeIndex: i,
		})
	}
	return mappings
}

// Condition derives the resolution row for this market. A closed market
// resolves from winner flags when present, falling back to the reported
// outcome prices. Open markets and closed markets without usable payout
// data report as unresolved.
func (m *APIMarket) Condition() (domain.Condition, bool) {
	if m.ConditionID == "" {
		return domain.Condition{}, false
	}
	n := len(m.tokenIDs())
	if n == 0 {
		return domain.Condition{}, false
	}
	cond := domain.Condition{
		ConditionID:  m.ConditionID,
		OutcomeCount: n,
	}
	if !m.Closed {
		return cond, true
	}

	if payouts, ok := m.winnerPayouts(n); ok {
		cond.Resolved = true
		cond.Payouts = payouts
	} else if payouts, ok := m.pricePayouts(n); ok {
		cond.Resolved = true
		cond.Payouts = payouts
	}
	if cond.Resolved && !cond.PayoutValid() {
		cond.Resolved = false
		cond.Payouts = nil
	}
	return cond, true
}

func (m *APIMarket) winnerPayouts(n int) ([]float64, bool) {
	if len(m.Tokens) != n {
		return nil, false
	}
	payouts := make([]float64, n)
	winners := 0
	for i, t := range m.Tokens {
		if t.Winner {
			payouts[i] = 1
			winners++
		}
	}
	if winners != 1 {
		return nil, false
	}
	return payouts, true
}

func (m *APIMarket) pricePayouts(n int) ([]float64, bool) {
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil || len(raw) != n {
		return nil, false
	}
	payouts := make([]float64, n)
	for i, s := range raw {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		payouts[i] = p
	}
	return payouts, true
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceMessage represents the most recent trade price for an asset.
type PriceMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
	Markets []string `json:"markets,omitempty"`
}

// MarkQuote is one reference-price observation for an outcome token,
// produced by the WebSocket feed and written into the mark price cache.
type MarkQuote struct {
	TokenID   string
	Price     float64
	Timestamp time.Time
}

// BookMidpoint derives a midpoint quote from an orderbook snapshot. It
// reports false when either side of the book is empty.
func BookMidpoint(b *BookMessage) (MarkQuote, bool) {
	bestBid := 0.0
	for _, lvl := range b.Bids {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && p > bestBid {
			bestBid = p
		}
	}
	bestAsk := 0.0
	for _, lvl := range b.Asks {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && (bestAsk == 0 || p < bestAsk) {
			bestAsk = p
		}
	}
	if bestBid <= 0 || bestAsk <= 0 {
		return MarkQuote{}, false
	}
	return MarkQuote{
		TokenID:   b.AssetID,
		Price:     (bestBid + bestAsk) / 2,
		Timestamp: parseWSTimestamp(b.Timestamp),
	}, true
}

// LastTradeQuote converts a last-trade message to a quote.
func LastTradeQuote(p *PriceMessage) (MarkQuote, bool) {
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil || price <= 0 {
		return MarkQuote{}, false
	}
	return MarkQuote{
		TokenID:   p.AssetID,
		Price:     price,
		Timestamp: parseWSTimestamp(p.Timestamp),
	}, true
}

func parseWSTimestamp(s string) time.Time {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		// The feed sends unix milliseconds.
		if ts > 1e12 {
			return time.UnixMilli(ts)
		}
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
