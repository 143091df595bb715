package engine

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/oracle"
)

// settleResolved realizes the value of remaining holdings in resolved
// conditions at their payout fraction and zeroes the quantity. It is the
// only place post-trade inventory in resolved markets contributes to PnL
// and runs exactly once per position: settled positions are skipped.
func settleResolved(positions map[string]*domain.Position, orc *oracle.Oracle) {
	for _, pos := range sortedPositions(positions) {
		if pos.Settled || pos.Quantity <= qtyEpsilon {
			continue
		}
		cond := orc.Lookup(pos.ConditionID)
		payout, ok := cond.PayoutFor(pos.OutcomeIndex)
		if !ok {
			continue
		}
		pos.RealizedPnL += pos.Quantity * (payout - pos.AvgCost)
		pos.Quantity = 0
		pos.Settled = true
	}
}

// markToMarket values remaining holdings in unresolved conditions at the
// current reference price. Tokens without a price are valued at zero and
// reported via a warning, never an error.
func markToMarket(positions map[string]*domain.Position, prices map[string]float64) (unrealized map[string]float64, marks map[string]float64, warnings []string) {
	unrealized = make(map[string]float64)
	marks = make(map[string]float64)

	for _, pos := range sortedPositions(positions) {
		if pos.Settled || pos.Quantity <= qtyEpsilon {
			continue
		}
		price, ok := prices[pos.TokenID]
		if !ok {
			// Conservative default: no reference price values the open
			// position at zero.
			unrealized[pos.TokenID] = pos.Quantity * (0 - pos.AvgCost)
			warnings = append(warnings,
				fmt.Sprintf("token %s: %s, valued at 0", pos.TokenID, domain.ErrPriceUnavailable))
			continue
		}
		unrealized[pos.TokenID] = pos.Quantity * (price - pos.AvgCost)
		marks[pos.TokenID] = price
	}
	return unrealized, marks, warnings
}

// sortedPositions returns positions in token-ID order so settlement and
// valuation are deterministic run to run.
func sortedPositions(positions map[string]*domain.Position) []*domain.Position {
	out := make([]*domain.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}
