package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of smallest units per display coin, as a power of ten.
const Decimals = 18

// ToSmallestUnit converts a display amount to wei. The conversion is exact:
// amounts with more than 18 fractional digits are rejected instead of rounded.
func ToSmallestUnit(amount decimal.Decimal) (*big.Int, error) {
	shifted := amount.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, Decimals)
	}
	return shifted.BigInt(), nil
}

// FromSmallestUnit converts wei to a display amount.
func FromSmallestUnit(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

// ParseAmount parses a decimal display amount such as "1.5" into wei.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return ToSmallestUnit(d)
}
