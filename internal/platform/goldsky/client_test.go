package goldsky

import (
	"testing"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

func TestExpandFillPerspectives(t *testing.T) {
	// Maker pays 60 USDC for the taker's 100 outcome tokens.
	e := orderFilledEvent{
		ID:                "0xabc-5",
		TransactionHash:   "0xabc",
		Timestamp:         "1700000000",
		Maker:             "0xMAKER",
		MakerAssetID:      "0",
		MakerAmountFilled: "60000000",
		Taker:             "0xTAKER",
		TakerAssetID:      "token-1",
		TakerAmountFilled: "100000000",
	}

	fills := expandFillPerspectives(e)
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}

	maker, taker := fills[0], fills[1]
	if maker.Side != domain.FillBuy || maker.Role != domain.RoleMaker {
		t.Errorf("maker = %s/%s, want buy/maker", maker.Side, maker.Role)
	}
	if taker.Side != domain.FillSell || taker.Role != domain.RoleTaker {
		t.Errorf("taker = %s/%s, want sell/taker", taker.Side, taker.Role)
	}
	for _, f := range fills {
		if f.TokenID != "token-1" {
			t.Errorf("token = %q, want token-1", f.TokenID)
		}
		if f.USDCAmount != 60 || f.TokenAmount != 100 {
			t.Errorf("amounts = %v/%v, want 60/100", f.USDCAmount, f.TokenAmount)
		}
		if f.Timestamp != 1700000000 || f.TxHash != "0xabc" {
			t.Errorf("seq fields = %d/%q", f.Timestamp, f.TxHash)
		}
	}
	if maker.Wallet != "0xmaker" || taker.Wallet != "0xtaker" {
		t.Errorf("wallets = %q/%q, want lowercased addresses", maker.Wallet, taker.Wallet)
	}
	if maker.EventID == taker.EventID {
		t.Error("perspectives must carry distinct event IDs")
	}
}

func TestExpandFillPerspectivesSellDirection(t *testing.T) {
	// Maker offers outcome tokens, taker pays USDC.
	e := orderFilledEvent{
		ID:                "0xdef-2",
		MakerAssetID:      "token-9",
		MakerAmountFilled: "50000000",
		TakerAssetID:      "0",
		TakerAmountFilled: "20000000",
	}

	fills := expandFillPerspectives(e)
	if fills[0].Side != domain.FillSell || fills[1].Side != domain.FillBuy {
		t.Errorf("sides = %s/%s, want sell/buy", fills[0].Side, fills[1].Side)
	}
	if fills[0].TokenID != "token-9" {
		t.Errorf("token = %q, want token-9", fills[0].TokenID)
	}
	if fills[0].USDCAmount != 20 || fills[0].TokenAmount != 50 {
		t.Errorf("amounts = %v/%v, want 20/50", fills[0].USDCAmount, fills[0].TokenAmount)
	}
}

func TestTxHashOf(t *testing.T) {
	if got := txHashOf("0xabc-12"); got != "0xabc" {
		t.Errorf("txHashOf = %q, want 0xabc", got)
	}
	if got := txHashOf("0xabc"); got != "0xabc" {
		t.Errorf("txHashOf = %q, want 0xabc", got)
	}
}
