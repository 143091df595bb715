package engine

import (
	"strings"
	"testing"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

func collateralEvent(id string, typ domain.CollateralEventType, amount float64, ts int64) domain.RawCollateralEvent {
	return domain.RawCollateralEvent{
		EventID: id, Wallet: "0xwallet", Type: typ, ConditionID: "cond-1",
		Amount: amount, Timestamp: ts, BlockNumber: ts, TxHash: id,
	}
}

func TestNormalizeCollapsesDuplicateFillPerspectives(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	maker := buyFill("f1", "yes-1", 50, 100, 100)
	maker.Role = domain.RoleMaker
	taker := buyFill("f1", "yes-1", 50, 100, 100)

	res := n.Normalize("0xwallet", []domain.RawFill{maker, taker}, nil)
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if res.RawRecords != 2 || res.DroppedRecords != 0 {
		t.Errorf("raw/dropped = %d/%d, want 2/0", res.RawRecords, res.DroppedRecords)
	}
	e := res.Events[0]
	if e.Kind != domain.EventBuy || !almostEqual(e.UnitPrice, 0.5) {
		t.Errorf("event = %+v, want buy at 0.5", e)
	}
}

func TestNormalizeDropsUnmappedToken(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "mystery")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	res := n.Normalize("0xwallet", []domain.RawFill{buyFill("f1", "mystery", 50, 100, 100)}, nil)
	if len(res.Events) != 0 || res.DroppedRecords != 1 {
		t.Fatalf("events/dropped = %d/%d, want 0/1", len(res.Events), res.DroppedRecords)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "unmapped") {
		t.Errorf("warnings = %v, want one unmapped warning", res.Warnings)
	}
}

func TestNormalizeSplitExpandsPerOutcome(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	res := n.Normalize("0xwallet", nil, []domain.RawCollateralEvent{
		collateralEvent("s1", domain.CollateralSplit, 100, 100),
	})
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want one per outcome", len(res.Events))
	}
	for _, e := range res.Events {
		if e.Kind != domain.EventSplit {
			t.Errorf("kind = %q, want split", e.Kind)
		}
		if !almostEqual(e.Quantity, 100) || !almostEqual(e.UnitPrice, 0.5) {
			t.Errorf("event = %v @ %v, want 100 @ 0.5", e.Quantity, e.UnitPrice)
		}
	}
	if res.Events[0].Seq.Compare(res.Events[1].Seq) != 0 {
		t.Error("expanded events must share one sequence key")
	}
}

func TestNormalizeRedemptionUsesPayouts(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, []domain.Condition{resolvedYes()}, "cond-1"), discardLogger())

	res := n.Normalize("0xwallet", nil, []domain.RawCollateralEvent{
		collateralEvent("r1", domain.CollateralRedemption, 80, 100),
	})
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1 (losing outcome carries no payout)", len(res.Events))
	}
	e := res.Events[0]
	if e.TokenID != "yes-1" || e.Kind != domain.EventRedemption {
		t.Errorf("event = %+v, want yes-1 redemption", e)
	}
	if !almostEqual(e.Quantity, 80) || !almostEqual(e.UnitPrice, 1) || !almostEqual(e.CashAmount, 80) {
		t.Errorf("event = qty %v price %v cash %v, want 80/1/80", e.Quantity, e.UnitPrice, e.CashAmount)
	}
}

func TestNormalizeRedemptionWithoutResolutionDegradesToSell(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	res := n.Normalize("0xwallet", nil, []domain.RawCollateralEvent{
		collateralEvent("r1", domain.CollateralRedemption, 80, 100),
	})
	if len(res.Events) != 1 || res.DroppedRecords != 0 {
		t.Fatalf("events/dropped = %d/%d, want 1/0", len(res.Events), res.DroppedRecords)
	}
	e := res.Events[0]
	if e.Kind != domain.EventSell || e.TokenID != "yes-1" {
		t.Errorf("event = %+v, want sell on the lowest outcome", e)
	}
	if !almostEqual(e.Quantity, 80) || !almostEqual(e.UnitPrice, 1) || !almostEqual(e.CashAmount, 80) {
		t.Errorf("event = qty %v price %v cash %v, want 80/1/80", e.Quantity, e.UnitPrice, e.CashAmount)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "treated as sell") {
		t.Errorf("warnings = %v, want one degraded-redemption warning", res.Warnings)
	}
}

func TestNormalizeSortsBySequence(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	fills := []domain.RawFill{
		sellFill("f2", "yes-1", 40, 100, 300),
		buyFill("f1", "yes-1", 50, 100, 100),
	}
	collateral := []domain.RawCollateralEvent{
		collateralEvent("s1", domain.CollateralSplit, 10, 200),
	}
	res := n.Normalize("0xwallet", fills, collateral)
	if len(res.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(res.Events))
	}
	for i := 1; i < len(res.Events); i++ {
		if res.Events[i-1].Seq.Compare(res.Events[i].Seq) > 0 {
			t.Fatalf("events out of order at %d: %+v then %+v", i, res.Events[i-1].Seq, res.Events[i].Seq)
		}
	}
	if res.Events[0].Kind != domain.EventBuy || res.Events[len(res.Events)-1].Kind != domain.EventSell {
		t.Errorf("expected buy first and sell last, got %q .. %q",
			res.Events[0].Kind, res.Events[len(res.Events)-1].Kind)
	}
}

func TestNormalizeTracksMakerTakerAndConditions(t *testing.T) {
	r := newTestResolver(t, binaryMappings(), "yes-1")
	n := NewNormalizer(r, newTestOracle(t, nil), discardLogger())

	maker := buyFill("f1", "yes-1", 50, 100, 100)
	maker.Role = domain.RoleMaker
	taker := sellFill("f2", "no-1", 40, 100, 200)

	res := n.Normalize("0xwallet", []domain.RawFill{maker, taker}, nil)
	if res.MakerFills != 1 || res.TakerFills != 1 {
		t.Errorf("maker/taker = %d/%d, want 1/1", res.MakerFills, res.TakerFills)
	}
	if len(res.ConditionIDs) != 1 {
		t.Errorf("conditions = %d, want 1", len(res.ConditionIDs))
	}
}
