package polymarket

import "testing"

func TestAPIMarketTokenMappings(t *testing.T) {
	m := APIMarket{
		ConditionID:  "cond-1",
		ClobTokenIDs: `["111","222"]`,
	}
	mappings := m.TokenMappings()
	if len(mappings) != 2 {
		t.Fatalf("got %d mappings, want 2", len(mappings))
	}
	for i, mp := range mappings {
		if mp.ConditionID != "cond-1" || mp.OutcomeIndex != i {
			t.Errorf("mapping[%d] = %+v", i, mp)
		}
	}
	if mappings[0].TokenID != "111" || mappings[1].TokenID != "222" {
		t.Errorf("token IDs = %q/%q, want 111/222", mappings[0].TokenID, mappings[1].TokenID)
	}
}

func TestAPIMarketConditionFromWinner(t *testing.T) {
	m := APIMarket{
		ConditionID: "cond-1",
		Closed:      true,
		Tokens: []Token{
			{TokenID: "111", Outcome: "Yes", Winner: true},
			{TokenID: "222", Outcome: "No"},
		},
	}
	cond, ok := m.Condition()
	if !ok {
		t.Fatal("expected a condition")
	}
	if !cond.Resolved || !cond.PayoutValid() {
		t.Fatalf("condition = %+v, want resolved with valid payouts", cond)
	}
	if cond.Payouts[0] != 1 || cond.Payouts[1] != 0 {
		t.Errorf("payouts = %v, want [1 0]", cond.Payouts)
	}
}

func TestAPIMarketConditionFromPrices(t *testing.T) {
	m := APIMarket{
		ConditionID:   "cond-1",
		Closed:        true,
		ClobTokenIDs:  `["111","222"]`,
		OutcomePrices: `["0","1"]`,
	}
	cond, ok := m.Condition()
	if !ok || !cond.Resolved {
		t.Fatalf("condition = %+v, want resolved", cond)
	}
	if cond.Payouts[1] != 1 {
		t.Errorf("payouts = %v, want [0 1]", cond.Payouts)
	}
}

func TestAPIMarketConditionOpenOrMalformed(t *testing.T) {
	open := APIMarket{ConditionID: "cond-1", ClobTokenIDs: `["111","222"]`}
	if cond, ok := open.Condition(); !ok || cond.Resolved {
		t.Errorf("open market condition = %+v, want unresolved", cond)
	}

	// Two winners cannot produce a usable payout vector.
	bad := APIMarket{
		ConditionID: "cond-1",
		Closed:      true,
		Tokens: []Token{
			{TokenID: "111", Winner: true},
			{TokenID: "222", Winner: true},
		},
	}
	if cond, _ := bad.Condition(); cond.Resolved {
		t.Errorf("malformed market condition = %+v, want unresolved", cond)
	}
}

func TestBookMidpoint(t *testing.T) {
	b := &BookMessage{
		AssetID: "111",
		Bids: []WSPriceLevel{
			{Price: "0.40", Size: "100"},
			{Price: "0.42", Size: "50"},
		},
		Asks: []WSPriceLevel{
			{Price: "0.48", Size: "80"},
			{Price: "0.50", Size: "10"},
		},
		Timestamp: "1700000000",
	}
	quote, ok := BookMidpoint(b)
	if !ok {
		t.Fatal("expected a quote")
	}
	if quote.TokenID != "111" || quote.Price != 0.45 {
		t.Errorf("quote = %+v, want 111 at 0.45", quote)
	}

	empty := &BookMessage{AssetID: "111", Asks: b.Asks}
	if _, ok := BookMidpoint(empty); ok {
		t.Error("one-sided book must not produce a quote")
	}
}
