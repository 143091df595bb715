package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL. The per-token
// breakdown and warnings are stored as JSONB documents.
type ResultStore struct {
	pool *pgxpool.Pool
}

var _ domain.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a new ResultStore backed by the given connection
// pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Upsert writes one wallet result, replacing an earlier result for the same
// wallet and run.
func (s *ResultStore) Upsert(ctx context.Context, result domain.WalletResult) error {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("postgres: marshal breakdown for %s: %w", result.Wallet, err)
	}
	warnings, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("postgres: marshal warnings for %s: %w", result.Wallet, err)
	}

	const query = `
		INSERT INTO wallet_results (
			wallet, run_id, realized_pnl, unrealized_pnl, total_pnl,
			breakdown, confidence, reason,
			raw_records, dropped_records, synthesized_volume, traded_volume,
			strategy, warnings, computed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15
		)
		ON CONFLICT (wallet, run_id) DO UPDATE SET
			realized_pnl       = EXCLUDED.realized_pnl,
			unrealized_pnl     = EXCLUDED.unrealized_pnl,
			total_pnl          = EXCLUDED.total_pnl,
			breakdown          = EXCLUDED.breakdown,
			confidence         = EXCLUDED.confidence,
			reason             = EXCLUDED.reason,
			raw_records        = EXCLUDED.raw_records,
			dropped_records    = EXCLUDED.dropped_records,
			synthesized_volume = EXCLUDED.synthesized_volume,
			traded_volume      = EXCLUDED.traded_volume,
			strategy           = EXCLUDED.strategy,
			warnings           = EXCLUDED.warnings,
			computed_at        = EXCLUDED.computed_at`

	if _, err := s.pool.Exec(ctx, query,
		result.Wallet, result.RunID, result.RealizedPnL, result.UnrealizedPnL, result.TotalPnL,
		breakdown, string(result.Confidence), result.Reason,
		result.RawRecords, result.DroppedRecords, result.SynthesizedVolume, result.TradedVolume,
		result.Strategy, warnings, result.ComputedAt,
	); err != nil {
		return fmt.Errorf("postgres: upsert result for %s: %w", result.Wallet, err)
	}
	return nil
}

const resultSelectCols = `wallet, run_id, realized_pnl, unrealized_pnl, total_pnl,
	breakdown, confidence, reason,
	raw_records, dropped_records, synthesized_volume, traded_volume,
	strategy, warnings, computed_at`

func scanResultRow(row pgx.Row) (domain.WalletResult, error) {
	var r domain.WalletResult
	var breakdown, warnings []byte
	var confidence string

	err := row.Scan(
		&r.Wallet, &r.RunID, &r.RealizedPnL, &r.UnrealizedPnL, &r.TotalPnL,
		&breakdown, &confidence, &r.Reason,
		&r.RawRecords, &r.DroppedRecords, &r.SynthesizedVolume, &r.TradedVolume,
		&r.Strategy, &warnings, &r.ComputedAt,
	)
	if err != nil {
		return domain.WalletResult{}, err
	}
	r.Confidence = domain.Confidence(confidence)
	if err := json.Unmarshal(breakdown, &r.Breakdown); err != nil {
		return domain.WalletResult{}, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(warnings, &r.Warnings); err != nil {
		return domain.WalletResult{}, fmt.Errorf("unmarshal warnings: %w", err)
	}
	return r, nil
}

// GetByWallet returns the most recently computed result for one wallet.
func (s *ResultStore) GetByWallet(ctx context.Context, wallet string) (domain.WalletResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultSelectCols+` FROM wallet_results
		 WHERE wallet = $1
		 ORDER BY computed_at DESC
		 LIMIT 1`, wallet)

	r, err := scanResultRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WalletResult{}, domain.ErrNotFound
		}
		return domain.WalletResult{}, fmt.Errorf("postgres: get result for %s: %w", wallet, err)
	}
	return r, nil
}

// ListByRun returns all wallet results of one batch run.
func (s *ResultStore) ListByRun(ctx context.Context, runID string) ([]domain.WalletResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultSelectCols+` FROM wallet_results
		 WHERE run_id = $1
		 ORDER BY wallet`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []domain.WalletResult
	for rows.Next() {
		r, err := scanResultRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
