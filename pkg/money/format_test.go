package money

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDisplay(t *testing.T) {
	price, _ := new(big.Int).SetString("2500000000000000000", 10)
	if got := Display(price, 18); got != "2.5" {
		t.Fatalf("expected 2.5, got %s", got)
	}
	if got := WithSymbol(price, 18, "cUSD"); got != "2.5 cUSD" {
		t.Fatalf("unexpected symbol rendering %q", got)
	}
	if got := Display(big.NewInt(7), 0); got != "7" {
		t.Fatalf("expected 7, got %s", got)
	}
	if got := Display(nil, 18); got != "0" {
		t.Fatalf("expected 0 for nil, got %s", got)
	}
}

func TestRawDecimalConversion(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	stored := ToDecimal(amount)
	if !stored.Equal(decimal.RequireFromString("123456789012345678901234567890")) {
		t.Fatalf("unexpected stored value %s", stored)
	}
	if ToUnits(stored).Cmp(amount) != 0 {
		t.Fatalf("expected units to survive conversion")
	}
}
