package domain

import "time"

// Confidence grades how trustworthy a wallet's PnL reconstruction is. It is
// advisory output for downstream consumers and never gates correctness.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TokenPnL is the per-token breakdown inside a WalletResult.
type TokenPnL struct {
	TokenID       string
	ConditionID   string
	OutcomeIndex  int
	RealizedPnL   float64
	UnrealizedPnL float64
	QuantityHeld  float64
	AvgCost       float64
	MarkPrice     *float64 // nil when no reference price was available
}

// WalletResult is the engine output for one wallet in one run.
type WalletResult struct {
	Wallet        string
	RunID         string
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	Breakdown     []TokenPnL
	Confidence    Confidence
	// Reason explains a Low confidence or an empty result (e.g. "no events").
	Reason string

	// Inputs to confidence scoring, surfaced for diagnostics.
	RawRecords        int
	DroppedRecords    int
	SynthesizedVolume float64
	TradedVolume      float64
	Strategy          string

	Warnings   []string
	ComputedAt time.Time
}
