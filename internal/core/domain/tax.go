package domain

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// TaxDenominator is the fixed denominator of every tax rate: a numerator
// equal to TaxDenominator means 100% of the valuation per tax period.
const TaxDenominator = 1_000_000_000_000

var (
	denominator = uint256.NewInt(TaxDenominator)

	// MaxValuation bounds self-assessed valuations so that the products in
	// TaxDue never exceed 256 bits.
	MaxValuation = new(uint256.Int).Sub(
		new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1),
	)
)

// TaxDue returns the tax accrued on valuation between from and to. Every
// division truncates, in this order:
//
//	((valuation * (to - from)) / period) * numerator / TaxDenominator
//
// It panics if to precedes from or if period is not positive.
func TaxDue(
	valuation *uint256.Int, numerator uint64, period, from, to int64,
) *uint256.Int {
	if to < from {
		panic(fmt.Sprintf("tax interval end %d precedes start %d", to, from))
	}
	if period <= 0 {
		panic(fmt.Sprintf("invalid tax period %d", period))
	}

	due := new(uint256.Int).Mul(valuation, uint256.NewInt(uint64(to-from)))
	due.Div(due, uint256.NewInt(uint64(period)))
	due.Mul(due, uint256.NewInt(numerator))
	return due.Div(due, denominator)
}

// ExhaustionDelay returns the smallest number of seconds after which the tax
// accrued on valuation reaches deposit, computed with the same truncations as
// TaxDue. The boolean is false when the deposit is never exhausted.
func ExhaustionDelay(
	valuation *uint256.Int, numerator uint64, period int64, deposit *uint256.Int,
) (int64, bool) {
	if valuation.IsZero() || numerator == 0 {
		return 0, false
	}
	if deposit.IsZero() {
		return 0, true
	}

	// TaxDue(t) >= deposit  <=>  floor(v*t/P) >= ceil(deposit*D/n)
	minAccrued, overflow := new(uint256.Int).MulOverflow(deposit, denominator)
	if overflow {
		return math.MaxInt64, true
	}
	ceilDiv(minAccrued, uint256.NewInt(numerator))

	//                      <=>  t >= ceil(ceil(deposit*D/n)*P/v)
	elapsed, overflow := new(uint256.Int).MulOverflow(
		minAccrued, uint256.NewInt(uint64(period)),
	)
	if overflow {
		return math.MaxInt64, true
	}
	ceilDiv(elapsed, valuation)

	if !elapsed.IsUint64() || elapsed.Uint64() > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(elapsed.Uint64()), true
}

// ceilDiv sets z to ceil(z/y).
func ceilDiv(z, y *uint256.Int) *uint256.Int {
	rem := new(uint256.Int).Mod(z, y)
	z.Div(z, y)
	if !rem.IsZero() {
		z.AddUint64(z, 1)
	}
	return z
}

func addTimestamp(ts, delay int64) int64 {
	if delay > math.MaxInt64-ts {
		return math.MaxInt64
	}
	return ts + delay
}
