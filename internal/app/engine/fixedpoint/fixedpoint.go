// Package fixedpoint carries the two numeric scales of the engine and
// the truncating arithmetic both the ledger and the payout calculator
// settle with. Fractions (weights, fees, accumulators) live at
// 10^18 = 1.0; currency amounts live at the stable asset's native
// 10^6 precision. The scales never mix inside one value.
//
// Every division truncates toward zero. The system keeps the
// remainder, so rounding always favors pool solvency over precision.
package fixedpoint

import (
	"errors"
	"math/big"
)

// Unit is 1.0 in the fraction scale.
const Unit uint64 = 1_000_000_000_000_000_000

// CurrencyDecimals is the decimal precision of pool currency amounts.
const CurrencyDecimals = 6

var (
	// ErrDivideByZero is returned when a conversion denominator is zero.
	ErrDivideByZero = errors.New("fixedpoint: divide by zero")
	// ErrOverflow is returned when a result does not fit an amount.
	ErrOverflow = errors.New("fixedpoint: result exceeds uint64")
)

// UnitBig returns 1.0 in the fraction scale as a fresh big integer.
func UnitBig() *big.Int {
	return big.NewInt(0).SetUint64(Unit)
}

// MulDiv returns a*b/den truncated toward zero, narrowed to uint64.
func MulDiv(a uint64, b, den *big.Int) (uint64, error) {
	if den.Sign() == 0 {
		return 0, ErrDivideByZero
	}
	x := big.NewInt(0).SetUint64(a)
	x.Mul(x, b)
	x.Quo(x, den)
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// MulDivBig returns a*b/den truncated toward zero as a big integer.
func MulDivBig(a *big.Int, b, den uint64) (*big.Int, error) {
	if den == 0 {
		return nil, ErrDivideByZero
	}
	x := big.NewInt(0).Set(a)
	x.Mul(x, big.NewInt(0).SetUint64(b))
	x.Quo(x, big.NewInt(0).SetUint64(den))
	return x, nil
}

// MulU64 returns a*b as a big integer, free of intermediate overflow.
func MulU64(a, b uint64) *big.Int {
	x := big.NewInt(0).SetUint64(a)
	return x.Mul(x, big.NewInt(0).SetUint64(b))
}

// ToUint64 narrows a non-negative big integer to uint64.
func ToUint64(x *big.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}
