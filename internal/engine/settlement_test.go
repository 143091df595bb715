package engine

import (
	"strings"
	"testing"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

func TestSettleResolvedRealizesPayouts(t *testing.T) {
	orc := newTestOracle(t, []domain.Condition{resolvedYes()}, "cond-1")
	positions := map[string]*domain.Position{
		"yes-1": {TokenID: "yes-1", ConditionID: "cond-1", OutcomeIndex: 0, Quantity: 100, AvgCost: 0.6},
		"no-1":  {TokenID: "no-1", ConditionID: "cond-1", OutcomeIndex: 1, Quantity: 50, AvgCost: 0.4},
	}

	settleResolved(positions, orc)

	yes := positions["yes-1"]
	if !almostEqual(yes.RealizedPnL, 40) || !yes.Settled || yes.Quantity != 0 {
		t.Errorf("yes after settle = %+v, want realized 40, settled, qty 0", yes)
	}
	// The losing side settles at zero payout, realizing the full basis.
	no := positions["no-1"]
	if !almostEqual(no.RealizedPnL, -20) || !no.Settled {
		t.Errorf("no after settle = %+v, want realized -20, settled", no)
	}
}

func TestSettleResolvedRunsOnce(t *testing.T) {
	orc := newTestOracle(t, []domain.Condition{resolvedYes()}, "cond-1")
	positions := map[string]*domain.Position{
		"yes-1": {TokenID: "yes-1", ConditionID: "cond-1", OutcomeIndex: 0, Quantity: 100, AvgCost: 0.6},
	}

	settleResolved(positions, orc)
	settleResolved(positions, orc)

	if got := positions["yes-1"].RealizedPnL; !almostEqual(got, 40) {
		t.Errorf("realized after double settle = %v, want 40", got)
	}
}

func TestSettleSkipsUnresolved(t *testing.T) {
	orc := newTestOracle(t, nil, "cond-1")
	positions := map[string]*domain.Position{
		"yes-1": {TokenID: "yes-1", ConditionID: "cond-1", OutcomeIndex: 0, Quantity: 100, AvgCost: 0.6},
	}

	settleResolved(positions, orc)

	pos := positions["yes-1"]
	if pos.Settled || pos.Quantity != 100 || pos.RealizedPnL != 0 {
		t.Errorf("unresolved position changed: %+v", pos)
	}
}

func TestMarkToMarket(t *testing.T) {
	positions := map[string]*domain.Position{
		"yes-1": {TokenID: "yes-1", ConditionID: "cond-1", OutcomeIndex: 0, Quantity: 100, AvgCost: 0.6},
		"no-1":  {TokenID: "no-1", ConditionID: "cond-1", OutcomeIndex: 1, Quantity: 50, AvgCost: 0.4},
	}
	prices := map[string]float64{"yes-1": 0.7}

	unrealized, marks, warnings := markToMarket(positions, prices)

	if got := unrealized["yes-1"]; !almostEqual(got, 10) {
		t.Errorf("yes unrealized = %v, want 10", got)
	}
	if got := marks["yes-1"]; got != 0.7 {
		t.Errorf("yes mark = %v, want 0.7", got)
	}
	// No price values the position at zero and flags it.
	if got := unrealized["no-1"]; !almostEqual(got, -20) {
		t.Errorf("no unrealized = %v, want -20", got)
	}
	if _, ok := marks["no-1"]; ok {
		t.Error("no-1 must not carry a mark without a price")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "no-1") {
		t.Errorf("warnings = %v, want one naming no-1", warnings)
	}
}

func TestMarkToMarketSkipsSettled(t *testing.T) {
	positions := map[string]*domain.Position{
		"yes-1": {TokenID: "yes-1", Quantity: 0, AvgCost: 0.6, Settled: true},
	}
	unrealized, _, warnings := markToMarket(positions, nil)
	if len(unrealized) != 0 || len(warnings) != 0 {
		t.Errorf("settled position valued: %v %v", unrealized, warnings)
	}
}
