package engine

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/numeric"
	"github.com/alanyoungcy/polyledger/internal/oracle"
	"github.com/alanyoungcy/polyledger/internal/token"
)

// NormalizeResult is the normalizer output for one wallet: the canonical
// event list plus the bookkeeping that feeds confidence scoring and the
// strategy classifier.
type NormalizeResult struct {
	Events []domain.Event

	RawRecords     int
	DroppedRecords int
	MakerFills     int
	TakerFills     int
	ConditionIDs   map[string]struct{}
	Warnings       []string
}

// Normalizer converts heterogeneous raw records into canonical events with
// a strict total order. Duplicate fill perspectives are collapsed by fill
// identifier; split and merge records expand symmetrically into one event
// per outcome token of their condition.
type Normalizer struct {
	resolver *token.Resolver
	oracle   *oracle.Oracle
	logger   *slog.Logger
}

// NewNormalizer creates a Normalizer using the given resolver and oracle.
func NewNormalizer(resolver *token.Resolver, orc *oracle.Oracle, logger *slog.Logger) *Normalizer {
	return &Normalizer{resolver: resolver, oracle: orc, logger: logger}
}

// Normalize maps one wallet's raw fills and collateral records to canonical
// events. Records on unmapped tokens or unknown conditions are dropped and
// counted, never fatal. The returned events are sorted in ascending
// sequence order.
func (n *Normalizer) Normalize(wallet string, fills []domain.RawFill, collateral []domain.RawCollateralEvent) NormalizeResult {
	res := NormalizeResult{ConditionIDs: make(map[string]struct{})}

	seenFills := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		res.RawRecords++

		// The same fill shows up under both maker and taker perspectives;
		// keeping both would double volume and cost basis.
		if f.EventID != "" {
			if _, dup := seenFills[f.EventID]; dup {
				continue
			}
			seenFills[f.EventID] = struct{}{}
		}

		switch f.Role {
		case domain.RoleMaker:
			res.MakerFills++
		case domain.RoleTaker:
			res.TakerFills++
		}

		mapping, err := n.resolver.Resolve(f.TokenID)
		if err != nil {
			res.DroppedRecords++
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("fill %s: token %s unmapped", f.EventID, f.TokenID))
			continue
		}
		res.ConditionIDs[mapping.ConditionID] = struct{}{}

		kind := domain.EventBuy
		if f.Side == domain.FillSell {
			kind = domain.EventSell
		}

		res.Events = append(res.Events, domain.Event{
			Wallet:       wallet,
			TokenID:      f.TokenID,
			ConditionID:  mapping.ConditionID,
			OutcomeIndex: mapping.OutcomeIndex,
			Kind:         kind,
			Quantity:     f.TokenAmount,
			CashAmount:   f.USDCAmount,
			UnitPrice:    numeric.SafeDiv(f.USDCAmount, f.TokenAmount),
			Seq: domain.SequenceKey{
				Timestamp: f.Timestamp,
				Block:     f.BlockNumber,
				LogIndex:  f.LogIndex,
				TxHash:    f.TxHash,
			},
		})
	}

	for _, c := range collateral {
		res.RawRecords++
		events, warn := n.expandCollateral(wallet, c)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		if len(events) == 0 {
			res.DroppedRecords++
			continue
		}
		res.ConditionIDs[c.ConditionID] = struct{}{}
		res.Events = append(res.Events, events...)
	}

	domain.SortEvents(res.Events)

	if res.DroppedRecords > 0 {
		n.logger.Debug("normalizer: dropped unmappable records",
			slog.String("wallet", wallet),
			slog.Int("dropped", res.DroppedRecords),
			slog.Int("raw", res.RawRecords),
		)
	}
	return res
}

// expandCollateral turns one raw collateral record into its canonical
// events. A warning with no events means the record was dropped; a warning
// alongside events flags a degraded expansion that is still folded.
func (n *Normalizer) expandCollateral(wallet string, c domain.RawCollateralEvent) ([]domain.Event, string) {
	outcomes, err := n.resolver.OutcomesOf(c.ConditionID)
	if err != nil {
		return nil, fmt.Sprintf("%s %s: condition %s has no known outcome tokens", c.Type, c.EventID, c.ConditionID)
	}
	seq := domain.SequenceKey{
		Timestamp: c.Timestamp,
		Block:     c.BlockNumber,
		LogIndex:  c.LogIndex,
		TxHash:    c.TxHash,
	}
	neutral := 1.0 / float64(len(outcomes))

	switch c.Type {
	case domain.CollateralSplit, domain.CollateralMerge:
		// One raw record, N canonical events: splitting or merging a unit
		// of collateral touches every outcome token of the condition at
		// the neutral unit price.
		kind := domain.EventSplit
		if c.Type == domain.CollateralMerge {
			kind = domain.EventMerge
		}
		events := make([]domain.Event, 0, len(outcomes))
		for _, m := range outcomes {
			events = append(events, domain.Event{
				Wallet:       wallet,
				TokenID:      m.TokenID,
				ConditionID:  m.ConditionID,
				OutcomeIndex: m.OutcomeIndex,
				Kind:         kind,
				Quantity:     c.Amount,
				CashAmount:   c.Amount,
				UnitPrice:    neutral,
				Seq:          seq,
			})
		}
		return events, ""

	case domain.CollateralRedemption:
		cond := n.oracle.Lookup(c.ConditionID)
		if !cond.PayoutValid() {
			// A redemption on chain implies the condition resolved, so a
			// missing or malformed payout vector means our resolution data
			// is behind. The cash flow is still real: degrade to an
			// ordinary sell at the stated cash over quantity. A
			// condition-level record cannot name the redeemed outcome, so
			// the lowest outcome index is the deterministic attribution;
			// deficit inference keeps the sibling holdings consistent.
			m := outcomes[0]
			return []domain.Event{{
				Wallet:       wallet,
				TokenID:      m.TokenID,
				ConditionID:  m.ConditionID,
				OutcomeIndex: m.OutcomeIndex,
				Kind:         domain.EventSell,
				Quantity:     c.Amount,
				CashAmount:   c.Amount,
				UnitPrice:    numeric.SafeDiv(c.Amount, c.Amount),
				Seq:          seq,
			}}, fmt.Sprintf("redemption %s: condition %s unresolved in local data, treated as sell", c.EventID, c.ConditionID)
		}
		// Redeeming a full set of q winning tokens claims q collateral, so
		// the claimed amount maps to Amount tokens of every positive-payout
		// outcome, each priced at its payout fraction.
		var events []domain.Event
		for _, m := range outcomes {
			payout, ok := cond.PayoutFor(m.OutcomeIndex)
			if !ok || payout <= 0 {
				continue
			}
			events = append(events, domain.Event{
				Wallet:       wallet,
				TokenID:      m.TokenID,
				ConditionID:  m.ConditionID,
				OutcomeIndex: m.OutcomeIndex,
				Kind:         domain.EventRedemption,
				Quantity:     c.Amount,
				CashAmount:   c.Amount * payout,
				UnitPrice:    payout,
				Seq:          seq,
			})
		}
		if len(events) == 0 {
			return nil, fmt.Sprintf("redemption %s: no positive-payout outcome on %s", c.EventID, c.ConditionID)
		}
		return events, ""

	default:
		return nil, fmt.Sprintf("collateral record %s: unknown type %q", c.EventID, c.Type)
	}
}
