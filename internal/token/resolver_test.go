package token

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// fakeMappingStore serves a fixed mapping table and counts batch queries.
type fakeMappingStore struct {
	mappings []domain.TokenMapping
	batches  int
}

func (f *fakeMappingStore) GetBatch(_ context.Context, tokenIDs []string) ([]domain.TokenMapping, error) {
	f.batches++
	want := make(map[string]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		want[id] = struct{}{}
	}
	var out []domain.TokenMapping
	for _, m := range f.mappings {
		if _, ok := want[m.TokenID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMappingStore) ListByCondition(_ context.Context, conditionID string) ([]domain.TokenMapping, error) {
	var out []domain.TokenMapping
	for _, m := range f.mappings {
		if m.ConditionID == conditionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMappingStore) UpsertBatch(context.Context, []domain.TokenMapping) error { return nil }

func binaryMarketStore() *fakeMappingStore {
	return &fakeMappingStore{mappings: []domain.TokenMapping{
		{TokenID: "yes-1", ConditionID: "cond-1", OutcomeIndex: 0},
		{TokenID: "no-1", ConditionID: "cond-1", OutcomeIndex: 1},
		{TokenID: "yes-2", ConditionID: "cond-2", OutcomeIndex: 0},
		{TokenID: "no-2", ConditionID: "cond-2", OutcomeIndex: 1},
	}}
}

func TestResolverPreloadAndResolve(t *testing.T) {
	store := binaryMarketStore()
	r := NewResolver(store)

	if err := r.Preload(context.Background(), []string{"yes-1"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	m, err := r.Resolve("yes-1")
	if err != nil {
		t.Fatalf("Resolve(yes-1): %v", err)
	}
	if m.ConditionID != "cond-1" || m.OutcomeIndex != 0 {
		t.Errorf("Resolve(yes-1) = %+v, want cond-1/0", m)
	}

	// Preloading one outcome pulls in the siblings of its condition.
	if _, err := r.Resolve("no-1"); err != nil {
		t.Errorf("Resolve(no-1) after sibling preload: %v", err)
	}
}

func TestResolverOutcomesOfOrdered(t *testing.T) {
	r := NewResolver(binaryMarketStore())
	if err := r.Preload(context.Background(), []string{"no-1"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	outcomes, err := r.OutcomesOf("cond-1")
	if err != nil {
		t.Fatalf("OutcomesOf: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	for i, m := range outcomes {
		if m.OutcomeIndex != i {
			t.Errorf("outcome %d has index %d", i, m.OutcomeIndex)
		}
	}
}

func TestResolverUnmappedToken(t *testing.T) {
	r := NewResolver(binaryMarketStore())
	if err := r.Preload(context.Background(), []string{"mystery"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	_, err := r.Resolve("mystery")
	if !errors.Is(err, domain.ErrTokenUnmapped) {
		t.Errorf("Resolve(mystery) err = %v, want ErrTokenUnmapped", err)
	}
}

func TestResolverPreloadSkipsKnownTokens(t *testing.T) {
	store := binaryMarketStore()
	r := NewResolver(store)
	ctx := context.Background()

	if err := r.Preload(ctx, []string{"yes-1", "no-1"}); err != nil {
		t.Fatalf("first Preload: %v", err)
	}
	before := store.batches

	// Everything already indexed: no second batch query.
	if err := r.Preload(ctx, []string{"yes-1", "no-1"}); err != nil {
		t.Fatalf("second Preload: %v", err)
	}
	if store.batches != before {
		t.Errorf("expected no extra batch queries, got %d -> %d", before, store.batches)
	}
}
