// Package engine reconstructs realized and unrealized PnL for one wallet
// from raw, possibly incomplete activity: it normalizes raw records into
// ordered canonical events, folds them through a sequential position
// ledger with split inference, settles resolved remainders, and marks
// unresolved remainders to market.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/oracle"
	"github.com/alanyoungcy/polyledger/internal/token"
)

// PriceSource fetches current reference prices for outcome tokens, used to
// fill mark-price cache misses.
type PriceSource interface {
	Midpoints(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// Config tunes the per-wallet engine.
type Config struct {
	Classifier      Classifier
	Thresholds      ConfidenceThresholds
	PrefetchTimeout time.Duration
}

// Engine computes one wallet's result per call. The fold itself is strictly
// sequential; all external lookups happen in a batched prefetch phase
// before it starts. An Engine is safe for concurrent use across wallets:
// per-wallet state lives in the ledger created inside ComputeWallet.
type Engine struct {
	resolver *token.Resolver
	oracle   *oracle.Oracle
	marks    domain.MarkPriceCache // optional
	prices   PriceSource           // optional
	cfg      Config
	logger   *slog.Logger
}

// New creates an Engine. marks and prices may be nil; mark-to-market then
// degrades to the zero-value default with warnings.
func New(resolver *token.Resolver, orc *oracle.Oracle, marks domain.MarkPriceCache, prices PriceSource, cfg Config, logger *slog.Logger) *Engine {
	if cfg.PrefetchTimeout <= 0 {
		cfg.PrefetchTimeout = 30 * time.Second
	}
	if cfg.Classifier == (Classifier{}) {
		cfg.Classifier = DefaultClassifier()
	}
	if cfg.Thresholds == (ConfidenceThresholds{}) {
		cfg.Thresholds = DefaultConfidenceThresholds()
	}
	return &Engine{
		resolver: resolver,
		oracle:   orc,
		marks:    marks,
		prices:   prices,
		cfg:      cfg,
		logger:   logger,
	}
}

// ComputeWallet reconciles one wallet's raw activity into a WalletResult.
// Recoverable gaps (unmapped tokens, missing prices) degrade confidence and
// continue; a failed prefetch returns an error so the caller can report the
// wallet as failed rather than silently zero-filled.
func (e *Engine) ComputeWallet(ctx context.Context, wallet string, fills []domain.RawFill, collateral []domain.RawCollateralEvent) (domain.WalletResult, error) {
	if len(fills) == 0 && len(collateral) == 0 {
		return domain.WalletResult{
			Wallet:     wallet,
			Confidence: domain.ConfidenceLow,
			Reason:     domain.ErrNoEvents.Error(),
			ComputedAt: time.Now().UTC(),
		}, nil
	}

	if err := e.prefetch(ctx, fills, collateral); err != nil {
		return domain.WalletResult{}, fmt.Errorf("engine: wallet %s: %w", wallet, err)
	}

	norm := e.normalizer().Normalize(wallet, fills, collateral)

	profile := WalletProfile{
		MakerFills:     norm.MakerFills,
		TakerFills:     norm.TakerFills,
		ConditionCount: len(norm.ConditionIDs),
	}
	sizer := e.cfg.Classifier.Select(profile)

	ledger := NewLedger(wallet, e.resolver, sizer, e.logger)
	if err := ledger.Fold(norm.Events); err != nil {
		return domain.WalletResult{}, fmt.Errorf("engine: wallet %s: %w", wallet, err)
	}

	settleResolved(ledger.Positions(), e.oracle)

	prices, priceWarnings := e.fetchMarks(ctx, ledger.Positions())
	unrealized, marks, mtmWarnings := markToMarket(ledger.Positions(), prices)

	warnings := append(norm.Warnings, ledger.Warnings...)
	warnings = append(warnings, priceWarnings...)
	warnings = append(warnings, mtmWarnings...)

	result := aggregate(wallet, ledger, norm, unrealized, marks, warnings, e.cfg.Thresholds)

	e.logger.Info("engine: wallet computed",
		slog.String("wallet", wallet),
		slog.Float64("realized_pnl", result.RealizedPnL),
		slog.Float64("unrealized_pnl", result.UnrealizedPnL),
		slog.String("confidence", string(result.Confidence)),
		slog.String("strategy", result.Strategy),
		slog.Int("dropped", result.DroppedRecords),
	)
	return result, nil
}

func (e *Engine) normalizer() *Normalizer {
	return NewNormalizer(e.resolver, e.oracle, e.logger)
}

// prefetch batch-loads token mappings and resolutions so the sequential
// fold never blocks on I/O. Mapping and collateral-condition lookups run in
// parallel; fill-derived conditions need their mappings first.
func (e *Engine) prefetch(ctx context.Context, fills []domain.RawFill, collateral []domain.RawCollateralEvent) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PrefetchTimeout)
	defer cancel()

	tokenIDs := make([]string, 0, len(fills))
	for _, f := range fills {
		tokenIDs = append(tokenIDs, f.TokenID)
	}
	collateralConds := make([]string, 0, len(collateral))
	for _, c := range collateral {
		collateralConds = append(collateralConds, c.ConditionID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.resolver.Preload(gctx, tokenIDs) })
	g.Go(func() error { return e.oracle.Preload(gctx, collateralConds) })
	if err := g.Wait(); err != nil {
		return prefetchErr(err)
	}

	// Conditions reached through fill tokens are only known post-mapping.
	condSet := make(map[string]struct{})
	for _, id := range tokenIDs {
		if m, err := e.resolver.Resolve(id); err == nil {
			condSet[m.ConditionID] = struct{}{}
		}
	}
	conds := make([]string, 0, len(condSet))
	for id := range condSet {
		conds = append(conds, id)
	}
	if err := e.oracle.Preload(ctx, conds); err != nil {
		return prefetchErr(err)
	}
	return nil
}

// fetchMarks resolves reference prices for open positions in unresolved
// conditions: cache first, then the price source for misses, writing fresh
// prices back. Failures degrade to the missing-price default.
func (e *Engine) fetchMarks(ctx context.Context, positions map[string]*domain.Position) (map[string]float64, []string) {
	var need []string
	for _, pos := range sortedPositions(positions) {
		if pos.Settled || pos.Quantity <= qtyEpsilon {
			continue
		}
		if e.oracle.IsResolved(pos.ConditionID) {
			continue
		}
		need = append(need, pos.TokenID)
	}
	if len(need) == 0 {
		return nil, nil
	}

	var warnings []string
	prices := make(map[string]float64, len(need))

	if e.marks != nil {
		cached, err := e.marks.GetPrices(ctx, need)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mark price cache read failed: %v", err))
		} else {
			for id, p := range cached {
				prices[id] = p
			}
		}
	}

	var misses []string
	for _, id := range need {
		if _, ok := prices[id]; !ok {
			misses = append(misses, id)
		}
	}
	if len(misses) > 0 && e.prices != nil {
		fetched, err := e.prices.Midpoints(ctx, misses)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mark price fetch failed: %v", err))
		} else {
			now := time.Now().UTC()
			for id, p := range fetched {
				prices[id] = p
				if e.marks != nil {
					// Last-writer-wins refresh; a failed write only costs
					// the next reader a fetch.
					_ = e.marks.SetPrice(ctx, id, p, now)
				}
			}
		}
	}
	return prices, warnings
}

func prefetchErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("prefetch: %w", domain.ErrFetchTimeout)
	}
	return fmt.Errorf("prefetch: %w", err)
}
