package domain

// Position is the running accounting state for one wallet x outcome token.
// Created lazily on first reference, mutated only by the ledger fold in
// sequence order, never deleted: quantity may fall to zero and rise again.
type Position struct {
	Wallet       string
	TokenID      string
	ConditionID  string
	OutcomeIndex int

	// Quantity never goes negative; deficits are resolved by synthesizing
	// an implicit split before the offending event.
	Quantity    float64
	AvgCost     float64
	RealizedPnL float64

	// SynthesizedQty is the quantity credited by inferred splits, tracked
	// for confidence scoring.
	SynthesizedQty float64

	// Settled marks that the settlement pass already realized this
	// position's remaining holdings; it must run at most once.
	Settled bool
}
