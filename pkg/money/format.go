package money

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromUnits scales an amount in the token's smallest unit into whole tokens.
func FromUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// Display renders an amount in whole tokens, trimming trailing zeros.
func Display(amount *big.Int, decimals int32) string {
	return FromUnits(amount, decimals).String()
}

// WithSymbol renders the display amount followed by the token symbol.
func WithSymbol(amount *big.Int, decimals int32, symbol string) string {
	if symbol == "" {
		return Display(amount, decimals)
	}
	return Display(amount, decimals) + " " + symbol
}

// ToDecimal keeps the raw smallest-unit value for numeric columns.
func ToDecimal(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, 0)
}

// ToUnits converts a stored raw decimal back to the smallest unit.
func ToUnits(value decimal.Decimal) *big.Int {
	return value.Truncate(0).BigInt()
}
