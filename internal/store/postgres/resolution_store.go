package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)

// NewResolutionStore creates a new ResolutionStore backed by the given
// connection pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// GetBatch returns resolution rows for the given condition IDs. Conditions
// without a row are absent from the result and read as unresolved upstream.
func (s *ResolutionStore) GetBatch(ctx context.Context, conditionIDs []string) ([]domain.Condition, error) {
	if len(conditionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT condition_id, outcome_count, resolved, payouts FROM conditions
		 WHERE condition_id = ANY($1)`, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: get conditions: %w", err)
	}
	defer rows.Close()

	var conds []domain.Condition
	for rows.Next() {
		var c domain.Condition
		if err := rows.Scan(&c.ConditionID, &c.OutcomeCount, &c.Resolved, &c.Payouts); err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		conds = append(conds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan conditions: %w", err)
	}
	return conds, nil
}

// Upsert inserts or refreshes one condition's resolution state.
func (s *ResolutionStore) Upsert(ctx context.Context, cond domain.Condition) error {
	const query = `
		INSERT INTO conditions (condition_id, outcome_count, resolved, payouts, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (condition_id) DO UPDATE SET
			outcome_count = EXCLUDED.outcome_count,
			resolved      = EXCLUDED.resolved,
			payouts       = EXCLUDED.payouts,
			updated_at    = NOW()`

	if _, err := s.pool.Exec(ctx, query,
		cond.ConditionID, cond.OutcomeCount, cond.Resolved, cond.Payouts,
	); err != nil {
		return fmt.Errorf("postgres: upsert condition %s: %w", cond.ConditionID, err)
	}
	return nil
}
