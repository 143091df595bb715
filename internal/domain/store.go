package domain

import (
	"context"
	"time"
)

// TokenMappingStore persists the token -> (condition, outcome index) table.
type TokenMappingStore interface {
	GetBatch(ctx context.Context, tokenIDs []string) ([]TokenMapping, error)
	ListByCondition(ctx context.Context, conditionID string) ([]TokenMapping, error)
	UpsertBatch(ctx context.Context, mappings []TokenMapping) error
}

// ResolutionStore persists condition resolution state. Absent rows mean
// unresolved, never a zero payout.
type ResolutionStore interface {
	GetBatch(ctx context.Context, conditionIDs []string) ([]Condition, error)
	Upsert(ctx context.Context, cond Condition) error
}

// ActivityStore persists raw wallet activity: CLOB fills and collateral
// split/merge/redemption records.
type ActivityStore interface {
	InsertFills(ctx context.Context, fills []RawFill) (int, error)
	InsertCollateralEvents(ctx context.Context, events []RawCollateralEvent) (int, error)
	ListFillsByWallet(ctx context.Context, wallet string) ([]RawFill, error)
	ListCollateralByWallet(ctx context.Context, wallet string) ([]RawCollateralEvent, error)
	LastActivityTimestamp(ctx context.Context) (time.Time, error)
}

// ResultStore persists computed wallet results.
type ResultStore interface {
	Upsert(ctx context.Context, result WalletResult) error
	GetByWallet(ctx context.Context, wallet string) (WalletResult, error)
	ListByRun(ctx context.Context, runID string) ([]WalletResult, error)
}
