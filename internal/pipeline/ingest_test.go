package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/platform/polymarket"
)

type fakeActivitySource struct {
	fills      []domain.RawFill
	collateral []domain.RawCollateralEvent
	fillSince  []time.Time

	walletFills      map[string][]domain.RawFill
	walletCollateral map[string][]domain.RawCollateralEvent
	walletQueried    []string
}

func (s *fakeActivitySource) FetchOrderFills(_ context.Context, since time.Time, _ int) ([]domain.RawFill, error) {
	s.fillSince = append(s.fillSince, since)
	// Single page; callers see an empty follow-up implicitly via the
	// short-page break.
	if len(s.fillSince) > 1 {
		return nil, nil
	}
	return s.fills, nil
}

func (s *fakeActivitySource) FetchCollateral(context.Context, time.Time, int) ([]domain.RawCollateralEvent, error) {
	return s.collateral, nil
}

func (s *fakeActivitySource) FetchWalletFills(_ context.Context, wallet string, since int64, _ int) ([]domain.RawFill, error) {
	s.walletQueried = append(s.walletQueried, wallet)
	if since > 0 {
		return nil, nil
	}
	return s.walletFills[wallet], nil
}

func (s *fakeActivitySource) FetchWalletCollateral(_ context.Context, wallet string, since int64, _ int) ([]domain.RawCollateralEvent, error) {
	if since > 0 {
		return nil, nil
	}
	return s.walletCollateral[wallet], nil
}

type fakeActivityStore struct {
	fills      []domain.RawFill
	collateral []domain.RawCollateralEvent
	last       time.Time
}

func (s *fakeActivityStore) InsertFills(_ context.Context, fills []domain.RawFill) (int, error) {
	s.fills = append(s.fills, fills...)
	return len(fills), nil
}

func (s *fakeActivityStore) InsertCollateralEvents(_ context.Context, events []domain.RawCollateralEvent) (int, error) {
	s.collateral = append(s.collateral, events...)
	return len(events), nil
}

func (s *fakeActivityStore) ListFillsByWallet(context.Context, string) ([]domain.RawFill, error) {
	return nil, nil
}

func (s *fakeActivityStore) ListCollateralByWallet(context.Context, string) ([]domain.RawCollateralEvent, error) {
	return nil, nil
}

func (s *fakeActivityStore) LastActivityTimestamp(context.Context) (time.Time, error) {
	return s.last, nil
}

type fakeMappingStore struct {
	mappings []domain.TokenMapping
}

func (s *fakeMappingStore) GetBatch(context.Context, []string) ([]domain.TokenMapping, error) {
	return nil, nil
}

func (s *fakeMappingStore) ListByCondition(context.Context, string) ([]domain.TokenMapping, error) {
	return nil, nil
}

func (s *fakeMappingStore) UpsertBatch(_ context.Context, mappings []domain.TokenMapping) error {
	s.mappings = append(s.mappings, mappings...)
	return nil
}

type fakeResolutionStore struct {
	conds []domain.Condition
}

func (s *fakeResolutionStore) GetBatch(context.Context, []string) ([]domain.Condition, error) {
	return nil, nil
}

func (s *fakeResolutionStore) Upsert(_ context.Context, cond domain.Condition) error {
	s.conds = append(s.conds, cond)
	return nil
}

type fakeMarketSource struct {
	markets     []polymarket.APIMarket
	byCondition map[string][]polymarket.APIMarket
	condQueries [][]string
}

func (s *fakeMarketSource) GetMarkets(_ context.Context, limit, offset int) ([]polymarket.APIMarket, error) {
	if offset >= len(s.markets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.markets) {
		end = len(s.markets)
	}
	return s.markets[offset:end], nil
}

func (s *fakeMarketSource) GetMarketsByCondition(_ context.Context, conditionIDs []string) ([]polymarket.APIMarket, error) {
	s.condQueries = append(s.condQueries, conditionIDs)
	var out []polymarket.APIMarket
	for _, id := range conditionIDs {
		out = append(out, s.byCondition[id]...)
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestIngestor(source *fakeActivitySource, markets *fakeMarketSource, activity *fakeActivityStore, mappings *fakeMappingStore, resolutions *fakeResolutionStore, cfg Config) *Ingestor {
	return NewIngestor(source, markets, activity, mappings, resolutions, cfg, discardLogger())
}

func TestScrapeOnceInsertsFillsAndCollateral(t *testing.T) {
	source := &fakeActivitySource{
		fills: []domain.RawFill{
			{EventID: "f1-m", Wallet: "0xaaa", Timestamp: 1000},
			{EventID: "f1-t", Wallet: "0xbbb", Timestamp: 1000},
		},
		collateral: []domain.RawCollateralEvent{
			{EventID: "c1", Wallet: "0xaaa", Type: domain.CollateralSplit, Timestamp: 1001},
		},
	}
	activity := &fakeActivityStore{}
	ing := newTestIngestor(source, &fakeMarketSource{}, activity, &fakeMappingStore{}, &fakeResolutionStore{}, Config{})

	n, err := ing.ScrapeOnce(context.Background())
	if err != nil {
		t.Fatalf("ScrapeOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3", n)
	}
	if len(activity.fills) != 2 || len(activity.collateral) != 1 {
		t.Errorf("stored %d fills / %d collateral, want 2/1", len(activity.fills), len(activity.collateral))
	}
}

func TestScrapeCursorOverlapsStoredTail(t *testing.T) {
	last := time.Unix(5000, 0).UTC()
	source := &fakeActivitySource{}
	activity := &fakeActivityStore{last: last}
	ing := newTestIngestor(source, &fakeMarketSource{}, activity, &fakeMappingStore{}, &fakeResolutionStore{}, Config{})

	if _, err := ing.ScrapeOnce(context.Background()); err != nil {
		t.Fatalf("ScrapeOnce: %v", err)
	}
	if len(source.fillSince) == 0 {
		t.Fatal("source was never queried")
	}
	if got, want := source.fillSince[0], last.Add(-scrapeOverlap); !got.Equal(want) {
		t.Errorf("scrape since = %v, want %v", got, want)
	}
}

func TestScrapeBackfillStartsFromZero(t *testing.T) {
	source := &fakeActivitySource{}
	activity := &fakeActivityStore{last: time.Unix(5000, 0)}
	ing := newTestIngestor(source, &fakeMarketSource{}, activity, &fakeMappingStore{}, &fakeResolutionStore{}, Config{Backfill: true})

	if _, err := ing.ScrapeOnce(context.Background()); err != nil {
		t.Fatalf("ScrapeOnce: %v", err)
	}
	if !source.fillSince[0].IsZero() {
		t.Errorf("backfill since = %v, want zero time", source.fillSince[0])
	}
}

func TestRefreshMetadataUpsertsMappingsAndResolutions(t *testing.T) {
	markets := &fakeMarketSource{markets: []polymarket.APIMarket{
		{
			ConditionID:  "cond-1",
			ClobTokenIDs: `["111","222"]`,
		},
		{
			ConditionID: "cond-2",
			Closed:      true,
			Tokens: []polymarket.Token{
				{TokenID: "333", Outcome: "Yes", Winner: true},
				{TokenID: "444", Outcome: "No"},
			},
		},
	}}
	mappings := &fakeMappingStore{}
	resolutions := &fakeResolutionStore{}
	ing := newTestIngestor(&fakeActivitySource{}, markets, &fakeActivityStore{}, mappings, resolutions, Config{})

	n, err := ing.RefreshMetadata(context.Background())
	if err != nil {
		t.Fatalf("RefreshMetadata: %v", err)
	}
	if n != 2 {
		t.Errorf("processed = %d, want 2", n)
	}
	if len(mappings.mappings) != 4 {
		t.Errorf("stored %d mappings, want 4", len(mappings.mappings))
	}

	// Only the closed market with a winner yields a resolved condition; the
	// open market is stored unresolved.
	var resolved int
	for _, c := range resolutions.conds {
		if c.Resolved {
			resolved++
		}
	}
	if resolved != 1 {
		t.Errorf("resolved conditions = %d, want 1", resolved)
	}
}

func TestRefreshMetadataPages(t *testing.T) {
	var all []polymarket.APIMarket
	for i := 0; i < 5; i++ {
		all = append(all, polymarket.APIMarket{
			ConditionID:  "cond",
			ClobTokenIDs: `["1","2"]`,
		})
	}
	markets := &fakeMarketSource{markets: all}
	ing := newTestIngestor(&fakeActivitySource{}, markets, &fakeActivityStore{}, &fakeMappingStore{}, &fakeResolutionStore{}, Config{MetadataPageSize: 2})

	n, err := ing.RefreshMetadata(context.Background())
	if err != nil {
		t.Fatalf("RefreshMetadata: %v", err)
	}
	if n != 5 {
		t.Errorf("processed = %d, want 5 across pages", n)
	}
}

func TestBackfillWalletPullsHistoryAndConditionMetadata(t *testing.T) {
	source := &fakeActivitySource{
		walletFills: map[string][]domain.RawFill{
			"0xaaa": {
				{EventID: "f1-t", Wallet: "0xaaa", Timestamp: 1000},
				{EventID: "f2-t", Wallet: "0xaaa", Timestamp: 1100},
			},
		},
		walletCollateral: map[string][]domain.RawCollateralEvent{
			"0xaaa": {
				{EventID: "c1", Wallet: "0xaaa", Type: domain.CollateralSplit, ConditionID: "cond-9", Timestamp: 1050},
			},
		},
	}
	markets := &fakeMarketSource{byCondition: map[string][]polymarket.APIMarket{
		"cond-9": {{ConditionID: "cond-9", ClobTokenIDs: `["901","902"]`}},
	}}
	activity := &fakeActivityStore{}
	mappings := &fakeMappingStore{}
	ing := newTestIngestor(source, markets, activity, mappings, &fakeResolutionStore{}, Config{})

	n, err := ing.BackfillWallet(context.Background(), "0xaaa")
	if err != nil {
		t.Fatalf("BackfillWallet: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3", n)
	}
	if len(activity.fills) != 2 || len(activity.collateral) != 1 {
		t.Errorf("stored %d fills / %d collateral, want 2/1", len(activity.fills), len(activity.collateral))
	}
	if len(markets.condQueries) != 1 || len(markets.condQueries[0]) != 1 || markets.condQueries[0][0] != "cond-9" {
		t.Errorf("condition queries = %v, want one for cond-9", markets.condQueries)
	}
	if len(mappings.mappings) != 2 {
		t.Errorf("stored %d mappings, want 2 for the backfilled condition", len(mappings.mappings))
	}
}

func TestBackfillWalletNoActivity(t *testing.T) {
	source := &fakeActivitySource{}
	markets := &fakeMarketSource{}
	ing := newTestIngestor(source, markets, &fakeActivityStore{}, &fakeMappingStore{}, &fakeResolutionStore{}, Config{})

	n, err := ing.BackfillWallet(context.Background(), "0xbbb")
	if err != nil {
		t.Fatalf("BackfillWallet: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
	if len(markets.condQueries) != 0 {
		t.Errorf("condition queries = %v, want none without collateral", markets.condQueries)
	}
}

func TestFeedActiveTokenIDsSkipsClosedMarkets(t *testing.T) {
	markets := &fakeMarketSource{markets: []polymarket.APIMarket{
		{ConditionID: "cond-1", Active: true, ClobTokenIDs: `["111","222"]`},
		{ConditionID: "cond-2", Active: true, Closed: true, ClobTokenIDs: `["333","444"]`},
		{ConditionID: "cond-3", Active: false, ClobTokenIDs: `["555","666"]`},
	}}
	feed := NewFeed(nil, markets, nil, discardLogger())

	ids, err := feed.activeTokenIDs(context.Background())
	if err != nil {
		t.Fatalf("activeTokenIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "111" || ids[1] != "222" {
		t.Errorf("token IDs = %v, want [111 222]", ids)
	}
}
