package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. Inserts
// are idempotent on the subgraph event ID so re-scraping an interval never
// duplicates activity.
type ActivityStore struct {
	pool *pgxpool.Pool
}

var _ domain.ActivityStore = (*ActivityStore)(nil)

// NewActivityStore creates a new ActivityStore backed by the given
// connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// InsertFills inserts fill records, skipping event IDs already present, and
// returns the number actually inserted.
func (s *ActivityStore) InsertFills(ctx context.Context, fills []domain.RawFill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(`
			INSERT INTO fills (
				event_id, wallet, side, role, token_id,
				usdc_amount, token_amount, ts, block_number, log_index, tx_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (event_id) DO NOTHING`,
			f.EventID, f.Wallet, string(f.Side), string(f.Role), f.TokenID,
			f.USDCAmount, f.TokenAmount, f.Timestamp, f.BlockNumber, f.LogIndex, f.TxHash)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range fills {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert fills: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// InsertCollateralEvents inserts collateral records, skipping event IDs
// already present, and returns the number actually inserted.
func (s *ActivityStore) InsertCollateralEvents(ctx context.Context, events []domain.RawCollateralEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO collateral_events (
				event_id, wallet, event_type, condition_id, amount,
				ts, block_number, log_index, tx_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (event_id) DO NOTHING`,
			e.EventID, e.Wallet, string(e.Type), e.ConditionID, e.Amount,
			e.Timestamp, e.BlockNumber, e.LogIndex, e.TxHash)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert collateral events: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListFillsByWallet returns all fills for one wallet in ascending sequence
// order.
func (s *ActivityStore) ListFillsByWallet(ctx context.Context, wallet string) ([]domain.RawFill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, wallet, side, role, token_id,
		       usdc_amount, token_amount, ts, block_number, log_index, tx_hash
		FROM fills
		WHERE wallet = $1
		ORDER BY ts, block_number, log_index`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for %s: %w", wallet, err)
	}
	defer rows.Close()

	var fills []domain.RawFill
	for rows.Next() {
		var f domain.RawFill
		var side, role string
		if err := rows.Scan(
			&f.EventID, &f.Wallet, &side, &role, &f.TokenID,
			&f.USDCAmount, &f.TokenAmount, &f.Timestamp, &f.BlockNumber, &f.LogIndex, &f.TxHash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.FillSide(side)
		f.Role = domain.FillRole(role)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListCollateralByWallet returns all collateral records for one wallet in
// ascending sequence order.
func (s *ActivityStore) ListCollateralByWallet(ctx context.Context, wallet string) ([]domain.RawCollateralEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, wallet, event_type, condition_id, amount,
		       ts, block_number, log_index, tx_hash
		FROM collateral_events
		WHERE wallet = $1
		ORDER BY ts, block_number, log_index`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collateral for %s: %w", wallet, err)
	}
	defer rows.Close()

	var events []domain.RawCollateralEvent
	for rows.Next() {
		var e domain.RawCollateralEvent
		var typ string
		if err := rows.Scan(
			&e.EventID, &e.Wallet, &typ, &e.ConditionID, &e.Amount,
			&e.Timestamp, &e.BlockNumber, &e.LogIndex, &e.TxHash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan collateral event: %w", err)
		}
		e.Type = domain.CollateralEventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastActivityTimestamp returns the newest activity timestamp across fills
// and collateral events, used as the scrape cursor. A zero time means the
// tables are empty.
func (s *ActivityStore) LastActivityTimestamp(ctx context.Context) (time.Time, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT MAX(ts) FROM fills),
			(SELECT MAX(ts) FROM collateral_events)
		)`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last activity timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return time.Unix(*ts, 0).UTC(), nil
}
