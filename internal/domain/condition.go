package domain

import "math"

// payoutTolerance is the allowed deviation of a payout vector's sum from 1.0.
const payoutTolerance = 1e-6

// Condition describes one prediction-market question and, once resolved,
// the payout fraction per outcome.
type Condition struct {
	ConditionID  string
	OutcomeCount int
	Resolved     bool
	Payouts      []float64 // per outcome index; sums to 1.0 when resolved
}

// PayoutValid reports whether the resolution data is well formed: resolved,
// one payout per outcome, each within [0,1], summing to 1.0. Malformed
// vectors must be treated as unresolved, never as a zero payout.
func (c Condition) PayoutValid() bool {
	if !c.Resolved || len(c.Payouts) == 0 || len(c.Payouts) != c.OutcomeCount {
		return false
	}
	sum := 0.0
	for _, p := range c.Payouts {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return false
		}
		sum += p
	}
	return math.Abs(sum-1.0) <= payoutTolerance
}

// PayoutFor returns the payout fraction for the given outcome index and
// whether it is usable (valid resolution and in-range index).
func (c Condition) PayoutFor(outcomeIndex int) (float64, bool) {
	if !c.PayoutValid() || outcomeIndex < 0 || outcomeIndex >= len(c.Payouts) {
		return 0, false
	}
	return c.Payouts[outcomeIndex], true
}
