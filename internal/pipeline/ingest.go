// Package pipeline keeps the local stores current: it scrapes raw wallet
// activity from the Goldsky subgraphs, refreshes market metadata from the
// Gamma API, and streams live mark prices into the cache.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/platform/polymarket"
)

// ActivitySource feeds raw subgraph records into the scrape and backfill
// paths. The Goldsky client satisfies it.
type ActivitySource interface {
	FetchOrderFills(ctx context.Context, since time.Time, first int) ([]domain.RawFill, error)
	FetchCollateral(ctx context.Context, since time.Time, first int) ([]domain.RawCollateralEvent, error)
	FetchWalletFills(ctx context.Context, wallet string, since int64, first int) ([]domain.RawFill, error)
	FetchWalletCollateral(ctx context.Context, wallet string, since int64, first int) ([]domain.RawCollateralEvent, error)
}

// MarketSource serves market metadata. The Gamma client satisfies it.
type MarketSource interface {
	GetMarkets(ctx context.Context, limit, offset int) ([]polymarket.APIMarket, error)
	GetMarketsByCondition(ctx context.Context, conditionIDs []string) ([]polymarket.APIMarket, error)
}

// scrapeOverlap is re-read behind the stored cursor each scrape so records
// landing in the cursor's second are never missed. Duplicate rows are
// discarded on insert.
const scrapeOverlap = time.Minute

// fillPageSize is the subgraph page size for activity scraping.
const fillPageSize = 1000

// Config tunes the ingestion loops.
type Config struct {
	ScrapeInterval          time.Duration
	MetadataRefreshInterval time.Duration
	// MetadataPageSize is the Gamma markets page size per request.
	MetadataPageSize int
	// Backfill starts the scrape from the beginning of history instead of
	// the last stored activity timestamp.
	Backfill bool
	// BackfillWallets are pulled in full, with their condition metadata,
	// before the loops start.
	BackfillWallets []string
}

// Ingestor runs the activity scrape and metadata refresh loops.
type Ingestor struct {
	goldsky     ActivitySource
	gamma       MarketSource
	activity    domain.ActivityStore
	mappings    domain.TokenMappingStore
	resolutions domain.ResolutionStore
	cfg         Config
	logger      *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	gs ActivitySource,
	gamma MarketSource,
	activity domain.ActivityStore,
	mappings domain.TokenMappingStore,
	resolutions domain.ResolutionStore,
	cfg Config,
	logger *slog.Logger,
) *Ingestor {
	if cfg.ScrapeInterval <= 0 {
		cfg.ScrapeInterval = 5 * time.Minute
	}
	if cfg.MetadataRefreshInterval <= 0 {
		cfg.MetadataRefreshInterval = time.Hour
	}
	if cfg.MetadataPageSize <= 0 {
		cfg.MetadataPageSize = 500
	}
	return &Ingestor{
		goldsky:     gs,
		gamma:       gamma,
		activity:    activity,
		mappings:    mappings,
		resolutions: resolutions,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run executes both loops until the context is cancelled. Each cycle's error
// is logged and the loop continues; a subgraph outage costs freshness, not
// the process.
func (i *Ingestor) Run(ctx context.Context) error {
	// Prime both on startup so a fresh deployment serves data immediately.
	if _, err := i.RefreshMetadata(ctx); err != nil {
		i.logger.Error("pipeline: initial metadata refresh failed", slog.String("error", err.Error()))
	}
	for _, w := range i.cfg.BackfillWallets {
		if _, err := i.BackfillWallet(ctx, w); err != nil {
			i.logger.Error("pipeline: wallet backfill failed",
				slog.String("wallet", w), slog.String("error", err.Error()))
		}
	}
	if _, err := i.ScrapeOnce(ctx); err != nil {
		i.logger.Error("pipeline: initial scrape failed", slog.String("error", err.Error()))
	}

	scrape := time.NewTicker(i.cfg.ScrapeInterval)
	defer scrape.Stop()
	metadata := time.NewTicker(i.cfg.MetadataRefreshInterval)
	defer metadata.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scrape.C:
			if _, err := i.ScrapeOnce(ctx); err != nil {
				i.logger.Error("pipeline: scrape failed", slog.String("error", err.Error()))
			}
		case <-metadata.C:
			if _, err := i.RefreshMetadata(ctx); err != nil {
				i.logger.Error("pipeline: metadata refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ScrapeOnce pulls fills and collateral events from the stored cursor to the
// subgraph head and persists them. It returns the number of new records.
func (i *Ingestor) ScrapeOnce(ctx context.Context) (int, error) {
	since, err := i.cursor(ctx)
	if err != nil {
		return 0, err
	}

	inserted, err := i.scrapeFills(ctx, since)
	if err != nil {
		return inserted, err
	}
	n, err := i.scrapeCollateral(ctx, since)
	inserted += n
	if err != nil {
		return inserted, err
	}

	i.logger.Info("pipeline: scrape complete",
		slog.Time("since", since),
		slog.Int("inserted", inserted),
	)
	return inserted, nil
}

// cursor returns the scrape starting point.
func (i *Ingestor) cursor(ctx context.Context) (time.Time, error) {
	if i.cfg.Backfill {
		return time.Time{}, nil
	}
	last, err := i.activity.LastActivityTimestamp(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("pipeline: read cursor: %w", err)
	}
	if last.IsZero() {
		return time.Time{}, nil
	}
	return last.Add(-scrapeOverlap), nil
}

func (i *Ingestor) scrapeFills(ctx context.Context, since time.Time) (int, error) {
	inserted := 0
	for {
		fills, err := i.goldsky.FetchOrderFills(ctx, since, fillPageSize)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: scrape fills: %w", err)
		}
		if len(fills) == 0 {
			return inserted, nil
		}

		n, err := i.activity.InsertFills(ctx, fills)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: store fills: %w", err)
		}
		inserted += n

		// Each subgraph event expands to two per-wallet records, so a full
		// page is twice the page size.
		last := time.Unix(fills[len(fills)-1].Timestamp, 0)
		if len(fills) < 2*fillPageSize || !last.After(since) {
			return inserted, nil
		}
		since = last
	}
}

func (i *Ingestor) scrapeCollateral(ctx context.Context, since time.Time) (int, error) {
	inserted := 0
	for {
		events, err := i.goldsky.FetchCollateral(ctx, since, fillPageSize)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: scrape collateral: %w", err)
		}
		if len(events) == 0 {
			return inserted, nil
		}

		n, err := i.activity.InsertCollateralEvents(ctx, events)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: store collateral: %w", err)
		}
		inserted += n

		// Three entity lists share one page budget; only a fully saturated
		// response can hide more rows.
		last := maxTimestamp(events)
		if len(events) < fillPageSize || !last.After(since) {
			return inserted, nil
		}
		since = last
	}
}

func maxTimestamp(events []domain.RawCollateralEvent) time.Time {
	var max int64
	for _, e := range events {
		if e.Timestamp > max {
			max = e.Timestamp
		}
	}
	return time.Unix(max, 0)
}

// BackfillWallet pulls one wallet's complete fill and collateral history
// into the store, then fetches metadata for every condition its collateral
// touched so the next batch run can map them. It returns the number of new
// records.
func (i *Ingestor) BackfillWallet(ctx context.Context, wallet string) (int, error) {
	inserted := 0
	conditions := make(map[string]struct{})

	var since int64
	for {
		fills, err := i.goldsky.FetchWalletFills(ctx, wallet, since, fillPageSize)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: backfill fills %s: %w", wallet, err)
		}
		if len(fills) == 0 {
			break
		}
		n, err := i.activity.InsertFills(ctx, fills)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: store fills: %w", err)
		}
		inserted += n

		last := maxFillTimestamp(fills)
		if len(fills) < fillPageSize || last <= since {
			break
		}
		since = last
	}

	since = 0
	for {
		events, err := i.goldsky.FetchWalletCollateral(ctx, wallet, since, fillPageSize)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: backfill collateral %s: %w", wallet, err)
		}
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			conditions[e.ConditionID] = struct{}{}
		}
		n, err := i.activity.InsertCollateralEvents(ctx, events)
		if err != nil {
			return inserted, fmt.Errorf("pipeline: store collateral: %w", err)
		}
		inserted += n

		last := maxTimestamp(events).Unix()
		if len(events) < fillPageSize || last <= since {
			break
		}
		since = last
	}

	if err := i.backfillConditions(ctx, conditions); err != nil {
		return inserted, err
	}

	i.logger.Info("pipeline: wallet backfilled",
		slog.String("wallet", wallet),
		slog.Int("inserted", inserted),
		slog.Int("conditions", len(conditions)),
	)
	return inserted, nil
}

// backfillConditions fetches metadata for conditions first seen in wallet
// activity, ahead of the next full metadata sweep.
func (i *Ingestor) backfillConditions(ctx context.Context, conditionIDs map[string]struct{}) error {
	if len(conditionIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conditionIDs))
	for id := range conditionIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	markets, err := i.gamma.GetMarketsByCondition(ctx, ids)
	if err != nil {
		return fmt.Errorf("pipeline: backfill conditions: %w", err)
	}
	return i.storeMarketMetadata(ctx, markets)
}

func maxFillTimestamp(fills []domain.RawFill) int64 {
	var max int64
	for _, f := range fills {
		if f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max
}

// RefreshMetadata pages through the Gamma markets listing, upserting token
// mappings and any derivable resolutions. It returns the number of markets
// processed.
func (i *Ingestor) RefreshMetadata(ctx context.Context) (int, error) {
	processed := 0
	for offset := 0; ; offset += i.cfg.MetadataPageSize {
		markets, err := i.gamma.GetMarkets(ctx, i.cfg.MetadataPageSize, offset)
		if err != nil {
			return processed, fmt.Errorf("pipeline: fetch markets: %w", err)
		}
		if len(markets) == 0 {
			break
		}

		if err := i.storeMarketMetadata(ctx, markets); err != nil {
			return processed, err
		}

		processed += len(markets)
		if len(markets) < i.cfg.MetadataPageSize {
			break
		}
	}

	i.logger.Info("pipeline: metadata refreshed", slog.Int("markets", processed))
	return processed, nil
}

// storeMarketMetadata upserts the token mappings and any derivable
// resolutions carried by the given markets.
func (i *Ingestor) storeMarketMetadata(ctx context.Context, markets []polymarket.APIMarket) error {
	var mappings []domain.TokenMapping
	for _, m := range markets {
		mappings = append(mappings, m.TokenMappings()...)
	}
	if len(mappings) > 0 {
		if err := i.mappings.UpsertBatch(ctx, mappings); err != nil {
			return fmt.Errorf("pipeline: store mappings: %w", err)
		}
	}

	for _, m := range markets {
		cond, ok := m.Condition()
		if !ok {
			continue
		}
		if err := i.resolutions.Upsert(ctx, cond); err != nil {
			return fmt.Errorf("pipeline: store resolution %s: %w", cond.ConditionID, err)
		}
	}
	return nil
}
