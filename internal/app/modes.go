package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyledger/internal/batch"
)

// BatchMode executes one batch run over the configured wallet list and
// exits.
func (a *App) BatchMode(ctx context.Context, deps *Dependencies) error {
	wallets, err := a.walletList()
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return fmt.Errorf("app: no wallets configured (set batch.wallets or batch.wallets_file)")
	}

	runner := a.newRunner(deps)
	summary, err := runner.Run(ctx, wallets)
	if err != nil {
		return err
	}
	if len(summary.Failures) > 0 {
		return fmt.Errorf("app: batch run %s finished with %d failed wallets", summary.RunID, len(summary.Failures))
	}
	return nil
}

// IngestMode runs the scrape and metadata refresh loops until cancelled.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	return deps.Ingestor.Run(ctx)
}

// FeedMode streams live quotes into the mark price cache until cancelled.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	return deps.Feed.Run(ctx)
}

// FullMode runs ingestion, the quote feed, and recurring batch runs
// concurrently until cancelled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	wallets, err := a.walletList()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Ingestor.Run(gctx) })
	g.Go(func() error { return deps.Feed.Run(gctx) })

	if len(wallets) > 0 {
		runner := a.newRunner(deps)
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Batch.Interval.Duration)
			defer ticker.Stop()
			for {
				if _, err := runner.Run(gctx, wallets); err != nil {
					// Recurring runs tolerate failures; the next tick
					// retries.
					a.logger.Error("recurring batch run failed", slog.String("error", err.Error()))
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
				}
			}
		})
	} else {
		a.logger.Warn("no wallets configured; full mode runs without recurring batches")
	}

	return g.Wait()
}

// newRunner builds the batch runner from the wired dependencies. Archival is
// attached only when enabled and backed by a live S3 client.
func (a *App) newRunner(deps *Dependencies) *batch.Runner {
	var archiver batch.RunArchiver
	if a.cfg.Batch.Archive && deps.Archiver != nil {
		archiver = deps.Archiver
	}
	return batch.NewRunner(
		deps.Engine,
		deps.ActivityStore,
		deps.ResultStore,
		deps.LockManager,
		archiver,
		batch.Config{
			Workers:       a.cfg.Batch.Workers,
			WalletTimeout: a.cfg.Batch.WalletTimeout.Duration,
			LockTTL:       a.cfg.Batch.LockTTL.Duration,
		},
		a.logger,
	)
}

// walletList merges the configured wallet list with the optional wallets
// file, one address per line, '#' comments allowed.
func (a *App) walletList() ([]string, error) {
	wallets := append([]string(nil), a.cfg.Batch.Wallets...)

	if path := a.cfg.Batch.WalletsFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("app: read wallets file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			wallets = append(wallets, line)
		}
	}
	return wallets, nil
}
