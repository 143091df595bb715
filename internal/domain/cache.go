package domain

import (
	"context"
	"time"
)

// MarkPriceCache provides the current reference price per outcome token for
// mark-to-market valuation. Implementations carry a short TTL; entries are
// refreshed last-writer-wins and shared read-only across concurrent wallet
// computations.
type MarkPriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}
