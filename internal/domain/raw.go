package domain

// FillSide is the direction of a trade fill from the wallet's perspective.
type FillSide string

const (
	FillBuy  FillSide = "buy"
	FillSell FillSide = "sell"
)

// FillRole is the wallet's role in the fill: the passive (order-book
// resting) maker or the active (order-crossing) taker.
type FillRole string

const (
	RoleMaker FillRole = "maker"
	RoleTaker FillRole = "taker"
)

// RawFill is one CLOB order-fill record as ingested from the subgraph.
// The same underlying fill can appear twice (maker and taker perspectives)
// under one EventID; the normalizer collapses duplicates.
type RawFill struct {
	EventID     string
	Wallet      string
	Side        FillSide
	Role        FillRole
	TokenID     string
	USDCAmount  float64
	TokenAmount float64
	Timestamp   int64
	BlockNumber int64
	LogIndex    int64
	TxHash      string
}

// CollateralEventType classifies raw collateral records.
type CollateralEventType string

const (
	CollateralSplit      CollateralEventType = "split"
	CollateralMerge      CollateralEventType = "merge"
	CollateralRedemption CollateralEventType = "redemption"
)

// RawCollateralEvent is a raw split, merge, or redemption record. Amount is
// in collateral units; the token-level quantities are derived during
// normalization.
type RawCollateralEvent struct {
	EventID     string
	Wallet      string
	Type        CollateralEventType
	ConditionID string
	Amount      float64
	Timestamp   int64
	BlockNumber int64
	LogIndex    int64
	TxHash      string
}

// TokenMapping links an outcome token to its condition and outcome index.
type TokenMapping struct {
	TokenID      string
	ConditionID  string
	OutcomeIndex int
}
