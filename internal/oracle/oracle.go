// Package oracle reports condition resolution state: whether a condition is
// settled and, if so, the payout fraction per outcome.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// Oracle caches resolution rows preloaded from a ResolutionStore. A missing
// or malformed row reads as unresolved — never as a zero payout.
type Oracle struct {
	store  domain.ResolutionStore
	logger *slog.Logger

	mu     sync.RWMutex
	conds  map[string]domain.Condition
	loaded map[string]struct{}
}

// NewOracle creates an Oracle backed by the given resolution store.
func NewOracle(store domain.ResolutionStore, logger *slog.Logger) *Oracle {
	return &Oracle{
		store:  store,
		logger: logger,
		conds:  make(map[string]domain.Condition),
		loaded: make(map[string]struct{}),
	}
}

// Preload batch-fetches resolution rows for the given conditions so later
// lookups are pure map reads.
func (o *Oracle) Preload(ctx context.Context, conditionIDs []string) error {
	var unknown []string
	o.mu.RLock()
	for _, id := range conditionIDs {
		if _, ok := o.loaded[id]; !ok && id != "" {
			unknown = append(unknown, id)
		}
	}
	o.mu.RUnlock()
	if len(unknown) == 0 {
		return nil
	}

	conds, err := o.store.GetBatch(ctx, unknown)
	if err != nil {
		return fmt.Errorf("oracle: preload resolutions: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range unknown {
		o.loaded[id] = struct{}{}
	}
	for _, c := range conds {
		if c.Resolved && !c.PayoutValid() {
			// Malformed payout vector: degrade to unresolved.
			o.logger.Warn("oracle: ambiguous resolution treated as unresolved",
				slog.String("condition_id", c.ConditionID),
				slog.Int("payouts", len(c.Payouts)),
			)
			c.Resolved = false
			c.Payouts = nil
		}
		o.conds[c.ConditionID] = c
	}
	return nil
}

// Lookup returns the resolution state for a condition. Unknown conditions
// report as unresolved.
func (o *Oracle) Lookup(conditionID string) domain.Condition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if c, ok := o.conds[conditionID]; ok {
		return c
	}
	return domain.Condition{ConditionID: conditionID}
}

// IsResolved reports whether a condition has a usable payout vector.
func (o *Oracle) IsResolved(conditionID string) bool {
	return o.Lookup(conditionID).PayoutValid()
}
