package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/platform/polymarket"
)

// feedChannels are the market-data channels that yield reference prices.
var feedChannels = []string{"book", "last_trade_price"}

// Feed streams live quotes from the CLOB WebSocket into the mark price
// cache so mark-to-market valuation reads fresh prices instead of hitting
// the REST midpoint endpoint per run.
type Feed struct {
	ws     *polymarket.WSClient
	gamma  MarketSource
	cache  domain.MarkPriceCache
	logger *slog.Logger

	// MaxMarkets caps how many active markets are subscribed; zero means
	// all discovered markets.
	MaxMarkets int
}

// NewFeed creates a Feed.
func NewFeed(ws *polymarket.WSClient, gamma MarketSource, cache domain.MarkPriceCache, logger *slog.Logger) *Feed {
	return &Feed{
		ws:     ws,
		gamma:  gamma,
		cache:  cache,
		logger: logger,
	}
}

// Run discovers active markets, subscribes to their quote streams, and
// writes every quote into the cache until the context is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	tokenIDs, err := f.activeTokenIDs(ctx)
	if err != nil {
		return err
	}
	if len(tokenIDs) == 0 {
		return fmt.Errorf("pipeline: no active markets to feed")
	}

	f.ws.OnQuote(func(q polymarket.MarkQuote) {
		if q.Price <= 0 {
			return
		}
		if err := f.cache.SetPrice(ctx, q.TokenID, q.Price, q.Timestamp); err != nil {
			f.logger.Warn("pipeline: mark price write failed",
				slog.String("token_id", q.TokenID),
				slog.String("error", err.Error()),
			)
		}
	})

	if err := f.ws.Connect(ctx); err != nil {
		return fmt.Errorf("pipeline: feed connect: %w", err)
	}
	defer f.ws.Close()

	if err := f.ws.Subscribe(ctx, feedChannels, tokenIDs); err != nil {
		return fmt.Errorf("pipeline: feed subscribe: %w", err)
	}

	f.logger.Info("pipeline: feed started", slog.Int("tokens", len(tokenIDs)))
	<-ctx.Done()
	return ctx.Err()
}

// activeTokenIDs pages through the Gamma listing and collects the outcome
// token IDs of open markets.
func (f *Feed) activeTokenIDs(ctx context.Context) ([]string, error) {
	const pageSize = 500

	var tokenIDs []string
	for offset := 0; ; offset += pageSize {
		markets, err := f.gamma.GetMarkets(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("pipeline: discover markets: %w", err)
		}
		if len(markets) == 0 {
			break
		}
		for _, m := range markets {
			if m.Closed || !bool(m.Active) {
				continue
			}
			for _, mp := range m.TokenMappings() {
				tokenIDs = append(tokenIDs, mp.TokenID)
			}
			if f.MaxMarkets > 0 && len(tokenIDs) >= 2*f.MaxMarkets {
				return tokenIDs, nil
			}
		}
		if len(markets) < pageSize {
			break
		}
	}
	return tokenIDs, nil
}
