package fassets

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrAmountBelowMinimum = errors.New("amount is below one lot")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// CalculateLots computes ceil(amount / lotSize) with pure integer
// arithmetic. Floating point division would systematically under-round and
// either reject valid deposits or shortchange a mint.
func CalculateLots(amount *big.Int, lotSize *big.Int) (int64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if lotSize == nil || lotSize.Sign() <= 0 {
		return 0, fmt.Errorf("%w: lot size must be positive", ErrInvalidAmount)
	}
	// an amount under one lot cannot be rounded up; rejecting it beats
	// silently minting more than the depositor paid for
	if amount.Cmp(lotSize) < 0 {
		return 0, ErrAmountBelowMinimum
	}

	lots := new(big.Int)
	remainder := new(big.Int)
	lots.QuoRem(amount, lotSize, remainder)
	if remainder.Sign() > 0 {
		lots.Add(lots, big.NewInt(1))
	}

	if !lots.IsInt64() {
		return 0, fmt.Errorf("%w: lot count overflows", ErrInvalidAmount)
	}
	return lots.Int64(), nil
}

// CalculateLotsFromString parses a base-unit decimal string amount.
func CalculateLotsFromString(amount string, lotSize *big.Int) (int64, error) {
	parsed, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return CalculateLots(parsed, lotSize)
}

// RoundedAmount is the base-unit amount actually minted for a lot count.
func RoundedAmount(lots int64, lotSize *big.Int) *big.Int {
	return new(big.Int).Mul(big.NewInt(lots), lotSize)
}
