// Package token maps opaque outcome-token identifiers to their condition
// and outcome index. The resolver is a preloaded in-memory index so the
// sequential ledger fold never blocks on I/O.
package token

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// Resolver answers token -> (condition, outcome index) lookups and
// enumerates the outcome tokens of a condition. Coverage may be partial:
// unmapped tokens return domain.ErrTokenUnmapped and are reported by the
// caller, never fatal.
type Resolver struct {
	store domain.TokenMappingStore

	mu      sync.RWMutex
	byToken map[string]domain.TokenMapping
	byCond  map[string][]domain.TokenMapping
	missing map[string]struct{}
}

// NewResolver creates a Resolver backed by the given mapping store.
func NewResolver(store domain.TokenMappingStore) *Resolver {
	return &Resolver{
		store:   store,
		byToken: make(map[string]domain.TokenMapping),
		byCond:  make(map[string][]domain.TokenMapping),
		missing: make(map[string]struct{}),
	}
}

// Preload batch-fetches mappings for the given token IDs and, for every
// condition seen, the full outcome set of that condition. It is the batched
// prefetch phase run before a wallet's fold begins.
func (r *Resolver) Preload(ctx context.Context, tokenIDs []string) error {
	unknown := r.unknownTokens(tokenIDs)
	if len(unknown) == 0 {
		return nil
	}

	mappings, err := r.store.GetBatch(ctx, unknown)
	if err != nil {
		return fmt.Errorf("token: preload mappings: %w", err)
	}

	conditionIDs := make(map[string]struct{})
	r.mu.Lock()
	for _, m := range mappings {
		r.byToken[m.TokenID] = m
		conditionIDs[m.ConditionID] = struct{}{}
	}
	// Anything the store did not return stays unmapped.
	found := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		found[m.TokenID] = struct{}{}
	}
	for _, id := range unknown {
		if _, ok := found[id]; !ok {
			r.missing[id] = struct{}{}
		}
	}
	r.mu.Unlock()

	// Pull the complete outcome set for each condition so synthesized
	// splits can credit every sibling token.
	for condID := range conditionIDs {
		if err := r.preloadCondition(ctx, condID); err != nil {
			return err
		}
	}
	return nil
}

// Resolve maps a token to its condition and outcome index.
func (r *Resolver) Resolve(tokenID string) (domain.TokenMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byToken[tokenID]
	if !ok {
		return domain.TokenMapping{}, fmt.Errorf("token: resolve %q: %w", tokenID, domain.ErrTokenUnmapped)
	}
	return m, nil
}

// OutcomesOf returns every outcome token of a condition, ordered by outcome
// index.
func (r *Resolver) OutcomesOf(conditionID string) ([]domain.TokenMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byCond[conditionID]
	if !ok || len(ms) == 0 {
		return nil, fmt.Errorf("token: outcomes of %q: %w", conditionID, domain.ErrNotFound)
	}
	out := make([]domain.TokenMapping, len(ms))
	copy(out, ms)
	return out, nil
}

// OutcomeCount returns the number of outcome tokens of a condition, or 0
// when the condition is unknown.
func (r *Resolver) OutcomeCount(conditionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCond[conditionID])
}

func (r *Resolver) preloadCondition(ctx context.Context, conditionID string) error {
	r.mu.RLock()
	_, loaded := r.byCond[conditionID]
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	ms, err := r.store.ListByCondition(ctx, conditionID)
	if err != nil {
		return fmt.Errorf("token: preload condition %q: %w", conditionID, err)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].OutcomeIndex < ms[j].OutcomeIndex })

	r.mu.Lock()
	r.byCond[conditionID] = ms
	for _, m := range ms {
		r.byToken[m.TokenID] = m
		delete(r.missing, m.TokenID)
	}
	r.mu.Unlock()
	return nil
}

// unknownTokens filters out tokens already indexed or already known missing.
func (r *Resolver) unknownTokens(tokenIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(tokenIDs))
	var unknown []string
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := r.byToken[id]; ok {
			continue
		}
		if _, ok := r.missing[id]; ok {
			continue
		}
		unknown = append(unknown, id)
	}
	return unknown
}
