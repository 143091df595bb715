package engine

// SplitSizer decides how much collateral to split when outgoing events
// exceed tracked holdings. The deficits slice is indexed by outcome and
// holds the outstanding per-outcome deficit of one condition at a single
// sequence point. Whatever size is returned, the synthesized split credits
// every outcome of the condition equally at the neutral basis; the sizer
// only controls how much split cost the wallet is charged.
type SplitSizer interface {
	Name() string
	SplitSize(deficits []float64) float64
}

// MaxDeficit is the wallet-level netting rule: split exactly the largest
// single-outcome deficit. A deficit mirrored by the paired outcome is
// covered by the same split and never double-counted. After a MaxDeficit
// split no outgoing event at that sequence point is left short.
type MaxDeficit struct{}

func (MaxDeficit) Name() string { return "wallet_netting" }

func (MaxDeficit) SplitSize(deficits []float64) float64 {
	max := 0.0
	for _, d := range deficits {
		if d > max {
			max = d
		}
	}
	return max
}

// ProportionalDeficit is the single-market proportional rule: split the
// total deficit divided by the outcome count, charging the wallet only the
// averaged share of split cost. Outgoing quantity still uncovered after
// the split is clamped to holdings rather than topped up, so the two rules
// genuinely diverge on asymmetric deficits.
type ProportionalDeficit struct{}

func (ProportionalDeficit) Name() string { return "market_proportional" }

func (ProportionalDeficit) SplitSize(deficits []float64) float64 {
	if len(deficits) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range deficits {
		if d > 0 {
			sum += d
		}
	}
	return sum / float64(len(deficits))
}

// WalletProfile summarizes a wallet's trading pattern for strategy
// selection.
type WalletProfile struct {
	MakerFills     int
	TakerFills     int
	ConditionCount int
}

// MakerRatio returns the maker share of classified fills, or 0 when none
// were classified.
func (p WalletProfile) MakerRatio() float64 {
	total := p.MakerFills + p.TakerFills
	if total == 0 {
		return 0
	}
	return float64(p.MakerFills) / float64(total)
}

// Classifier selects a split-inference strategy per wallet. Netting is the
// default: for an ordinary wallet a deficit means exactly one unobserved
// split of that size. Maker-heavy wallets spread across many conditions
// carry inventory on both sides of many books at once, where attributing
// the full deficit per market overstates split cost; those get the
// proportional rule.
type Classifier struct {
	// MakerRatioMin is the maker ratio at or above which a wallet counts
	// as maker-heavy.
	MakerRatioMin float64
	// ConditionCountMin is the distinct-condition count at or above which
	// a wallet counts as multi-market.
	ConditionCountMin int
	// Override pins a strategy by name ("wallet_netting",
	// "market_proportional"); empty or "auto" classifies per wallet.
	Override string
}

// DefaultClassifier requires a clear maker-heavy, multi-market pattern
// before switching off netting.
func DefaultClassifier() Classifier {
	return Classifier{
		MakerRatioMin:     0.6,
		ConditionCountMin: 25,
	}
}

// Select returns the strategy for the given wallet profile.
func (c Classifier) Select(p WalletProfile) SplitSizer {
	switch c.Override {
	case MaxDeficit{}.Name():
		return MaxDeficit{}
	case ProportionalDeficit{}.Name():
		return ProportionalDeficit{}
	}
	if p.MakerRatio() >= c.MakerRatioMin && p.ConditionCount >= c.ConditionCountMin {
		return ProportionalDeficit{}
	}
	return MaxDeficit{}
}
