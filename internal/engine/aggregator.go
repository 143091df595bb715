package engine

import (
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/numeric"
)

// ConfidenceThresholds controls the advisory confidence classification.
type ConfidenceThresholds struct {
	// HighMaxDroppedFrac and HighMaxSynthFrac bound High confidence.
	HighMaxDroppedFrac float64
	HighMaxSynthFrac   float64
	// LowMinDroppedFrac and LowMinSynthFrac force Low confidence.
	LowMinDroppedFrac float64
	LowMinSynthFrac   float64
}

// DefaultConfidenceThresholds matches the documented grading: High below
// 5% dropped and 10% synthesized, Low at 50% of either.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{
		HighMaxDroppedFrac: 0.05,
		HighMaxSynthFrac:   0.10,
		LowMinDroppedFrac:  0.50,
		LowMinSynthFrac:    0.50,
	}
}

// aggregate sums per-token results into the wallet-level result and grades
// confidence from the dropped-record and synthesized-volume fractions.
func aggregate(
	wallet string,
	ledger *Ledger,
	norm NormalizeResult,
	unrealized map[string]float64,
	marks map[string]float64,
	warnings []string,
	thresholds ConfidenceThresholds,
) domain.WalletResult {
	result := domain.WalletResult{
		Wallet:            wallet,
		RawRecords:        norm.RawRecords,
		DroppedRecords:    norm.DroppedRecords,
		SynthesizedVolume: ledger.SynthesizedVolume,
		TradedVolume:      ledger.TradedVolume,
		Strategy:          ledger.sizer.Name(),
		Warnings:          warnings,
		ComputedAt:        time.Now().UTC(),
	}

	for _, pos := range sortedPositions(ledger.Positions()) {
		entry := domain.TokenPnL{
			TokenID:       pos.TokenID,
			ConditionID:   pos.ConditionID,
			OutcomeIndex:  pos.OutcomeIndex,
			RealizedPnL:   pos.RealizedPnL,
			UnrealizedPnL: unrealized[pos.TokenID],
			QuantityHeld:  pos.Quantity,
			AvgCost:       pos.AvgCost,
		}
		if mark, ok := marks[pos.TokenID]; ok {
			m := mark
			entry.MarkPrice = &m
		}
		result.RealizedPnL += entry.RealizedPnL
		result.UnrealizedPnL += entry.UnrealizedPnL
		result.Breakdown = append(result.Breakdown, entry)
	}
	result.TotalPnL = result.RealizedPnL + result.UnrealizedPnL

	droppedFrac := numeric.SafeDiv(float64(norm.DroppedRecords), float64(norm.RawRecords))
	synthFrac := numeric.SafeDiv(ledger.SynthesizedVolume, ledger.SynthesizedVolume+ledger.TradedVolume)

	switch {
	case droppedFrac >= thresholds.LowMinDroppedFrac || synthFrac >= thresholds.LowMinSynthFrac:
		result.Confidence = domain.ConfidenceLow
		result.Reason = "majority of activity unmapped or inferred"
	case droppedFrac <= thresholds.HighMaxDroppedFrac && synthFrac <= thresholds.HighMaxSynthFrac:
		result.Confidence = domain.ConfidenceHigh
	default:
		result.Confidence = domain.ConfidenceMedium
	}

	return result
}
