package oracle

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

type fakeResolutionStore struct {
	conds []domain.Condition
}

func (f *fakeResolutionStore) GetBatch(_ context.Context, ids []string) ([]domain.Condition, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Condition
	for _, c := range f.conds {
		if _, ok := want[c.ConditionID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeResolutionStore) Upsert(context.Context, domain.Condition) error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestOracleResolvedCondition(t *testing.T) {
	store := &fakeResolutionStore{conds: []domain.Condition{
		{ConditionID: "cond-1", OutcomeCount: 2, Resolved: true, Payouts: []float64{1, 0}},
	}}
	o := NewOracle(store, discard())

	if err := o.Preload(context.Background(), []string{"cond-1"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	if !o.IsResolved("cond-1") {
		t.Fatal("cond-1 should be resolved")
	}
	payout, ok := o.Lookup("cond-1").PayoutFor(0)
	if !ok || payout != 1.0 {
		t.Errorf("PayoutFor(0) = %v, %v; want 1.0, true", payout, ok)
	}
}

func TestOracleUnknownConditionIsUnresolved(t *testing.T) {
	o := NewOracle(&fakeResolutionStore{}, discard())
	if err := o.Preload(context.Background(), []string{"cond-x"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if o.IsResolved("cond-x") {
		t.Error("missing resolution row must read as unresolved")
	}
}

func TestOracleMalformedPayoutsTreatedAsUnresolved(t *testing.T) {
	store := &fakeResolutionStore{conds: []domain.Condition{
		// Sum is 1.5: ambiguous.
		{ConditionID: "cond-bad", OutcomeCount: 2, Resolved: true, Payouts: []float64{1, 0.5}},
		// Wrong arity.
		{ConditionID: "cond-short", OutcomeCount: 3, Resolved: true, Payouts: []float64{1, 0}},
	}}
	o := NewOracle(store, discard())
	if err := o.Preload(context.Background(), []string{"cond-bad", "cond-short"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	for _, id := range []string{"cond-bad", "cond-short"} {
		if o.IsResolved(id) {
			t.Errorf("%s: malformed payouts must degrade to unresolved", id)
		}
	}
}
