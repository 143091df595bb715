package engine

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/token"
)

// qtyEpsilon absorbs float64 noise when comparing quantities.
const qtyEpsilon = 1e-9

// Ledger folds one wallet's canonical events, in ascending sequence order,
// into per-token positions. It owns no state beyond the position map and is
// created fresh per wallet.
type Ledger struct {
	wallet   string
	resolver *token.Resolver
	sizer    SplitSizer
	logger   *slog.Logger

	positions map[string]*domain.Position // keyed by token ID

	// SynthesizedVolume is collateral credited via inferred splits;
	// TradedVolume is token quantity moved by buy/sell fills. Both feed
	// confidence scoring.
	SynthesizedVolume float64
	TradedVolume      float64
	Warnings          []string
}

// NewLedger creates a Ledger for one wallet using the given split-inference
// strategy.
func NewLedger(wallet string, resolver *token.Resolver, sizer SplitSizer, logger *slog.Logger) *Ledger {
	return &Ledger{
		wallet:    wallet,
		resolver:  resolver,
		sizer:     sizer,
		logger:    logger,
		positions: make(map[string]*domain.Position),
	}
}

// Positions exposes the folded position map for settlement and aggregation.
func (l *Ledger) Positions() map[string]*domain.Position {
	return l.positions
}

// Fold applies all events. The input must already be sorted; events sharing
// a sequence key form one bundled transaction and have their deficits
// inferred together.
func (l *Ledger) Fold(events []domain.Event) error {
	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && events[end].Seq.Compare(events[start].Seq) == 0 {
			end++
		}
		if err := l.applyGroup(events[start:end]); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// applyGroup handles one bundled transaction: infer splits for any
// conditions left in deficit by the group's net flows, then apply the
// incoming events before the outgoing ones so an observed split in the
// bundle covers its paired sell regardless of intra-group ordering.
func (l *Ledger) applyGroup(group []domain.Event) error {
	l.inferSplits(group)
	for i := range group {
		if !group[i].Kind.Outgoing() {
			if err := l.apply(&group[i]); err != nil {
				return err
			}
		}
	}
	for i := range group {
		if group[i].Kind.Outgoing() {
			if err := l.apply(&group[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// inferSplits nets each token's flows within the group against current
// holdings, aggregates the resulting per-outcome deficits by condition, and
// synthesizes the strategy-sized split. Splits or buys observed inside the
// bundle count toward coverage and are never re-inferred.
func (l *Ledger) inferSplits(group []domain.Event) {
	netOut := make(map[string]float64)
	for i := range group {
		e := &group[i]
		if e.Kind.Outgoing() {
			netOut[e.TokenID] += e.Quantity
		} else {
			netOut[e.TokenID] -= e.Quantity
		}
	}

	type condDeficit struct {
		deficits []float64
	}
	var order []string
	byCond := make(map[string]*condDeficit)
	warned := make(map[string]struct{})

	for i := range group {
		e := &group[i]
		out, pending := netOut[e.TokenID]
		if !pending {
			continue
		}
		delete(netOut, e.TokenID)

		deficit := out - l.position(e).Quantity
		if deficit <= qtyEpsilon {
			continue
		}

		cd, ok := byCond[e.ConditionID]
		if !ok {
			n := l.resolver.OutcomeCount(e.ConditionID)
			if n == 0 {
				// Outcome set unknown: a split cannot credit the siblings
				// atomically, so the event will be clamped instead.
				if _, dup := warned[e.ConditionID]; !dup {
					warned[e.ConditionID] = struct{}{}
					l.Warnings = append(l.Warnings,
						fmt.Sprintf("condition %s: cannot infer split, outcome set unknown", e.ConditionID))
				}
				continue
			}
			cd = &condDeficit{deficits: make([]float64, n)}
			byCond[e.ConditionID] = cd
			order = append(order, e.ConditionID)
		}
		if e.OutcomeIndex >= 0 && e.OutcomeIndex < len(cd.deficits) {
			cd.deficits[e.OutcomeIndex] += deficit
		}
	}

	for _, condID := range order {
		cd := byCond[condID]
		size := l.sizer.SplitSize(cd.deficits)
		if size <= qtyEpsilon {
			continue
		}
		l.synthesizeSplit(condID, size)
	}
}

// synthesizeSplit credits size quantity to every outcome token of the
// condition at the neutral basis, exactly as an observed split would.
func (l *Ledger) synthesizeSplit(conditionID string, size float64) {
	outcomes, err := l.resolver.OutcomesOf(conditionID)
	if err != nil || len(outcomes) == 0 {
		return
	}
	neutral := 1.0 / float64(len(outcomes))
	for _, m := range outcomes {
		pos := l.position(&domain.Event{
			TokenID:      m.TokenID,
			ConditionID:  m.ConditionID,
			OutcomeIndex: m.OutcomeIndex,
		})
		l.credit(pos, size, neutral)
		pos.SynthesizedQty += size
	}
	l.SynthesizedVolume += size

	l.logger.Debug("ledger: synthesized split",
		slog.String("wallet", l.wallet),
		slog.String("condition_id", conditionID),
		slog.Float64("size", size),
		slog.String("strategy", l.sizer.Name()),
	)
}

// apply folds a single event into its position. The switch is exhaustive
// over event kinds: a new kind must be handled here before it can exist.
func (l *Ledger) apply(e *domain.Event) error {
	pos := l.position(e)

	switch e.Kind {
	case domain.EventBuy:
		l.credit(pos, e.Quantity, e.UnitPrice)
		l.TradedVolume += e.Quantity

	case domain.EventSplit:
		// A split is a buy at the neutral unit price: splitting one unit
		// of collateral always yields one share of every outcome.
		l.credit(pos, e.Quantity, e.UnitPrice)

	case domain.EventSell:
		l.debit(pos, e)
		l.TradedVolume += e.Quantity

	case domain.EventMerge, domain.EventRedemption:
		l.debit(pos, e)

	default:
		return fmt.Errorf("ledger: unknown event kind %q", e.Kind)
	}
	return nil
}

// credit adds quantity at the given price, rolling the weighted-average
// cost basis forward.
func (l *Ledger) credit(pos *domain.Position, qty, price float64) {
	if qty <= 0 {
		return
	}
	newQty := pos.Quantity + qty
	pos.AvgCost = (pos.AvgCost*pos.Quantity + price*qty) / newQty
	pos.Quantity = newQty
}

// debit applies an outgoing event: quantity is clamped to holdings (split
// inference has already replenished whatever the active strategy charges
// for) and the realized PnL delta is quantity x (price - basis).
func (l *Ledger) debit(pos *domain.Position, e *domain.Event) {
	adjusted := e.Quantity
	if adjusted > pos.Quantity {
		short := adjusted - pos.Quantity
		if short > qtyEpsilon {
			l.Warnings = append(l.Warnings,
				fmt.Sprintf("token %s: %s of %.6f clamped to holdings %.6f", pos.TokenID, e.Kind, e.Quantity, pos.Quantity))
		}
		adjusted = pos.Quantity
	}
	if adjusted <= 0 {
		return
	}
	pos.RealizedPnL += adjusted * (e.UnitPrice - pos.AvgCost)
	pos.Quantity -= adjusted
	if pos.Quantity < qtyEpsilon {
		pos.Quantity = 0
	}
}

// position returns the position for the event's token, creating it lazily.
func (l *Ledger) position(e *domain.Event) *domain.Position {
	pos, ok := l.positions[e.TokenID]
	if !ok {
		pos = &domain.Position{
			Wallet:       l.wallet,
			TokenID:      e.TokenID,
			ConditionID:  e.ConditionID,
			OutcomeIndex: e.OutcomeIndex,
		}
		l.positions[e.TokenID] = pos
	}
	return pos
}
