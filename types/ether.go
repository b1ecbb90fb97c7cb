package types

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var (
	errNegativeAmount = errors.New("amount must be greater than or equal to zero")
	errTooPrecise     = errors.New("amount has more than 18 decimal places")
)

// ParseEther converts a decimal ETH string such as "0.5" into wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, errNegativeAmount
	}
	if d.Exponent() < -etherDecimals {
		return nil, errTooPrecise
	}
	return d.Shift(etherDecimals).BigInt(), nil
}

// FormatEther renders wei as a decimal ETH string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
