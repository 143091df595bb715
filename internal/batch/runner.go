// Package batch computes wallet results in bulk. A run fans out over a
// bounded worker pool, isolates per-wallet failures, and ends with a summary
// of the distribution of results.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/engine"
	"github.com/alanyoungcy/polyledger/internal/numeric"
)

// runLockKey guards against two instances starting a batch run concurrently.
const runLockKey = "batch:run"

// RunArchiver uploads a completed run to durable storage.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, runID string, at time.Time) (int64, error)
}

// Config tunes a batch run.
type Config struct {
	// Workers is the number of wallets computed concurrently.
	Workers int
	// WalletTimeout bounds the computation of a single wallet.
	WalletTimeout time.Duration
	// LockTTL bounds the run lock; it should exceed the expected run length.
	LockTTL time.Duration
}

// WalletFailure records one wallet that could not be computed.
type WalletFailure struct {
	Wallet string
	Err    error
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Wallets   int
	Succeeded int
	Skipped   int
	Failures  []WalletFailure

	// Distribution of total PnL across succeeded wallets.
	MeanPnL float64
	P50PnL  float64
	P95PnL  float64

	// Confidence counts across succeeded wallets, keyed by grade.
	Confidence map[domain.Confidence]int
}

// Runner executes batch runs over a set of wallets.
type Runner struct {
	engine   *engine.Engine
	activity domain.ActivityStore
	results  domain.ResultStore
	locks    domain.LockManager // optional
	archiver RunArchiver        // optional
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates a Runner. locks and archiver may be nil; the run then
// proceeds without single-flight protection or archival.
func NewRunner(
	eng *engine.Engine,
	activity domain.ActivityStore,
	results domain.ResultStore,
	locks domain.LockManager,
	archiver RunArchiver,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.WalletTimeout <= 0 {
		cfg.WalletTimeout = 2 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Runner{
		engine:   eng,
		activity: activity,
		results:  results,
		locks:    locks,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run computes every wallet in the list under a fresh run ID and persists
// each result as it completes. Invalid addresses are skipped, failed wallets
// are recorded in the summary, and neither stops the rest of the run. The
// returned error covers run-level problems only (lock contention, cancelled
// context).
func (r *Runner) Run(ctx context.Context, wallets []string) (Summary, error) {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, runLockKey, r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return Summary{}, fmt.Errorf("batch: run already in progress: %w", err)
			}
			return Summary{}, fmt.Errorf("batch: acquire run lock: %w", err)
		}
		defer unlock()
	}

	summary := Summary{
		RunID:      uuid.New().String(),
		StartedAt:  time.Now().UTC(),
		Confidence: make(map[domain.Confidence]int),
	}

	// Stored activity keys wallets by lowercase address; normalize the same
	// way so differently cased duplicates collapse.
	seen := make(map[string]struct{}, len(wallets))
	valid := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if !common.IsHexAddress(w) {
			summary.Skipped++
			r.logger.Warn("batch: skipping invalid wallet address", slog.String("wallet", w))
			continue
		}
		addr := strings.ToLower(common.HexToAddress(w).Hex())
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		valid = append(valid, addr)
	}
	summary.Wallets = len(valid)

	r.logger.Info("batch: run starting",
		slog.String("run_id", summary.RunID),
		slog.Int("wallets", summary.Wallets),
		slog.Int("workers", r.cfg.Workers),
	)

	var (
		mu      sync.Mutex
		pnls    []float64
		grades  = summary.Confidence
		failers []WalletFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, wallet := range valid {
		g.Go(func() error {
			result, err := r.computeOne(gctx, summary.RunID, wallet)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failers = append(failers, WalletFailure{Wallet: wallet, Err: err})
				r.logger.Error("batch: wallet failed",
					slog.String("run_id", summary.RunID),
					slog.String("wallet", wallet),
					slog.String("error", err.Error()),
				)
				// Per-wallet failures never abort the run; only a dead
				// context does, via gctx inside computeOne.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}
			pnls = append(pnls, result.TotalPnL)
			grades[result.Confidence]++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("batch: run %s aborted: %w", summary.RunID, err)
	}

	summary.Succeeded = len(pnls)
	summary.Failures = failers
	summary.MeanPnL = numeric.Mean(pnls)
	summary.P50PnL = numeric.Percentile(pnls, 50)
	summary.P95PnL = numeric.Percentile(pnls, 95)
	summary.Duration = time.Since(summary.StartedAt)

	r.logger.Info("batch: run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", len(summary.Failures)),
		slog.Int("skipped", summary.Skipped),
		slog.Float64("mean_pnl", summary.MeanPnL),
		slog.Float64("p50_pnl", summary.P50PnL),
		slog.Float64("p95_pnl", summary.P95PnL),
		slog.Duration("duration", summary.Duration),
	)

	if r.archiver != nil && summary.Succeeded > 0 {
		n, err := r.archiver.ArchiveRun(ctx, summary.RunID, summary.StartedAt)
		if err != nil {
			// Archival is best-effort; results are already persisted.
			r.logger.Error("batch: run archive failed",
				slog.String("run_id", summary.RunID),
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			r.logger.Info("batch: run archived",
				slog.String("run_id", summary.RunID),
				slog.Int64("records", n),
			)
		}
	}

	return summary, nil
}

// computeOne loads one wallet's activity, computes its result, and persists
// it, all within the per-wallet timeout.
func (r *Runner) computeOne(ctx context.Context, runID, wallet string) (domain.WalletResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WalletTimeout)
	defer cancel()

	fills, err := r.activity.ListFillsByWallet(ctx, wallet)
	if err != nil {
		return domain.WalletResult{}, fmt.Errorf("load fills: %w", err)
	}
	collateral, err := r.activity.ListCollateralByWallet(ctx, wallet)
	if err != nil {
		return domain.WalletResult{}, fmt.Errorf("load collateral: %w", err)
	}

	result, err := r.engine.ComputeWallet(ctx, wallet, fills, collateral)
	if err != nil {
		return domain.WalletResult{}, err
	}
	result.RunID = runID

	if err := r.results.Upsert(ctx, result); err != nil {
		return domain.WalletResult{}, fmt.Errorf("persist result: %w", err)
	}
	return result, nil
}
