package domain

import "sort"

// EventKind is the closed set of canonical event kinds the ledger folds.
// The ledger switches exhaustively over these; an unknown kind is a bug,
// not a silently ignored record.
type EventKind string

const (
	EventBuy        EventKind = "buy"
	EventSell       EventKind = "sell"
	EventSplit      EventKind = "split"
	EventMerge      EventKind = "merge"
	EventRedemption EventKind = "redemption"
)

// Outgoing reports whether the kind removes tokens from the wallet at a
// price (sell, merge, and redemption all realize PnL against cost basis).
func (k EventKind) Outgoing() bool {
	return k == EventSell || k == EventMerge || k == EventRedemption
}

// SequenceKey totally orders events: timestamp, then block number, then log
// index, then transaction hash. Ties on all four fields mean the events came
// from the same underlying record expansion and may be applied in any
// deterministic order.
type SequenceKey struct {
	Timestamp int64 // unix seconds
	Block     int64
	LogIndex  int64
	TxHash    string
}

// Compare returns -1, 0, or 1 ordering k against o.
func (k SequenceKey) Compare(o SequenceKey) int {
	switch {
	case k.Timestamp != o.Timestamp:
		if k.Timestamp < o.Timestamp {
			return -1
		}
		return 1
	case k.Block != o.Block:
		if k.Block < o.Block {
			return -1
		}
		return 1
	case k.LogIndex != o.LogIndex:
		if k.LogIndex < o.LogIndex {
			return -1
		}
		return 1
	case k.TxHash != o.TxHash:
		if k.TxHash < o.TxHash {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Event is one canonical, immutable ledger event produced by the normalizer.
// A raw split or merge record on a condition with N outcomes expands into N
// events sharing the same SequenceKey, one per outcome token.
type Event struct {
	Wallet       string
	TokenID      string
	ConditionID  string
	OutcomeIndex int
	Kind         EventKind
	Quantity     float64 // always >= 0
	CashAmount   float64 // collateral units moved by the raw record
	UnitPrice    float64
	Seq          SequenceKey
}

// SortEvents stable-sorts events into ascending sequence order. Events with
// identical sequence keys are further ordered by outcome index then token ID
// so repeated runs over the same input fold identically.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if c := events[i].Seq.Compare(events[j].Seq); c != 0 {
			return c < 0
		}
		if events[i].OutcomeIndex != events[j].OutcomeIndex {
			return events[i].OutcomeIndex < events[j].OutcomeIndex
		}
		return events[i].TokenID < events[j].TokenID
	})
}
