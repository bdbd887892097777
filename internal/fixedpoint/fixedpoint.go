// Package fixedpoint provides the integer fixed-point primitives shared by the
// tick, price, and fee arithmetic. All operations are exact: any result that
// would exceed its representable range returns an error instead of wrapping.
package fixedpoint

import (
	"errors"
	"math/big"
)

var (
	// Q96 is the UQ64.96 fixed-point number representing 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q128 is the UQ128.128 fixed-point number representing 1, used for
	// fee-growth accumulators.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	// MaxUint128 bounds liquidity values.
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	// MaxUint256 bounds every intermediate product.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")

	one = big.NewInt(1)
)

// MulDiv returns floor(a * b / denominator).
func MulDiv(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	result := new(big.Int).Mul(a, b)
	result.Div(result, denominator)
	if result.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a * b / denominator).
func MulDivRoundingUp(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	result, rem := new(big.Int).DivMod(product, denominator, new(big.Int))
	if rem.Sign() > 0 {
		result.Add(result, one)
	}
	if result.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}

// DivRoundingUp returns ceil(a / b).
func DivRoundingUp(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	result, rem := new(big.Int).DivMod(a, b, new(big.Int))
	if rem.Sign() > 0 {
		result.Add(result, one)
	}
	return result, nil
}

// AddDelta applies a signed liquidity delta to an unsigned 128-bit liquidity
// value, failing on under- or overflow.
func AddDelta(liquidity, delta *big.Int) (*big.Int, error) {
	result := new(big.Int).Add(liquidity, delta)
	if result.Sign() < 0 {
		return nil, ErrUnderflow
	}
	if result.Cmp(MaxUint128) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}

// CheckedAddU256 adds two unsigned 256-bit values, failing instead of wrapping.
func CheckedAddU256(a, b *big.Int) (*big.Int, error) {
	result := new(big.Int).Add(a, b)
	if result.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}

// WrappingSubU256 subtracts b from a modulo 2^256. Fee-growth "outside"
// checkpoints rely on modular subtraction so that growth deltas stay correct
// even when an individual checkpoint is larger than the global accumulator.
func WrappingSubU256(a, b *big.Int) *big.Int {
	result := new(big.Int).Sub(a, b)
	if result.Sign() < 0 {
		result.Add(result, MaxUint256)
		result.Add(result, one)
	}
	return result
}
