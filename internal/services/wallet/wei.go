package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ToWeiHex converts an ether amount to a 0x-prefixed hex quantity in wei.
// Digits below one wei are truncated.
func ToWeiHex(amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("negative amount %s", amount)
	}
	wei := amount.Shift(etherDecimals).Truncate(0).BigInt()
	return "0x" + wei.Text(16), nil
}

// FromWeiHex parses a 0x-prefixed hex quantity in wei into ether.
func FromWeiHex(quantity string) (decimal.Decimal, error) {
	digits, ok := strings.CutPrefix(strings.ToLower(quantity), "0x")
	if !ok || digits == "" {
		return decimal.Zero, fmt.Errorf("invalid quantity %q", quantity)
	}
	wei, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid quantity %q", quantity)
	}
	return decimal.NewFromBigInt(wei, -etherDecimals), nil
}
