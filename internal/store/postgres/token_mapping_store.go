package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// TokenMappingStore implements domain.TokenMappingStore using PostgreSQL.
type TokenMappingStore struct {
	pool *pgxpool.Pool
}

var _ domain.TokenMappingStore = (*TokenMappingStore)(nil)

// NewTokenMappingStore creates a new TokenMappingStore backed by the given
// connection pool.
func NewTokenMappingStore(pool *pgxpool.Pool) *TokenMappingStore {
	return &TokenMappingStore{pool: pool}
}

func scanMappingRows(rows pgx.Rows) ([]domain.TokenMapping, error) {
	var mappings []domain.TokenMapping
	for rows.Next() {
		var m domain.TokenMapping
		if err := rows.Scan(&m.TokenID, &m.ConditionID, &m.OutcomeIndex); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// GetBatch returns the mappings for the given token IDs. Unknown tokens are
// simply absent from the result.
func (s *TokenMappingStore) GetBatch(ctx context.Context, tokenIDs []string) ([]domain.TokenMapping, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT token_id, condition_id, outcome_index FROM token_mappings
		 WHERE token_id = ANY($1)`, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: get token mappings: %w", err)
	}
	defer rows.Close()

	mappings, err := scanMappingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan token mappings: %w", err)
	}
	return mappings, nil
}

// ListByCondition returns all mappings of one condition in outcome order.
func (s *TokenMappingStore) ListByCondition(ctx context.Context, conditionID string) ([]domain.TokenMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token_id, condition_id, outcome_index FROM token_mappings
		 WHERE condition_id = $1
		 ORDER BY outcome_index`, conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mappings for condition %s: %w", conditionID, err)
	}
	defer rows.Close()

	mappings, err := scanMappingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan condition mappings: %w", err)
	}
	return mappings, nil
}

// UpsertBatch inserts or refreshes mappings in one round trip.
func (s *TokenMappingStore) UpsertBatch(ctx context.Context, mappings []domain.TokenMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(`
			INSERT INTO token_mappings (token_id, condition_id, outcome_index, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (token_id) DO UPDATE SET
				condition_id  = EXCLUDED.condition_id,
				outcome_index = EXCLUDED.outcome_index,
				updated_at    = NOW()`,
			m.TokenID, m.ConditionID, m.OutcomeIndex)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range mappings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert token mappings: %w", err)
		}
	}
	return nil
}
