// Package swapmath computes price movements and token deltas for a single
// step of a swap against concentrated liquidity.
package swapmath

import (
	"errors"
	"math/big"

	"clpool/internal/fixedpoint"
)

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
)

// NextSqrtPriceFromInput returns the price after consuming amountIn of the
// input token, rounding so the pool never undercharges.
func NextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after paying out amountOut of the
// output token, rounding so the pool never overpays.
func NextSqrtPriceFromOutput(sqrtPriceX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountOut, false)
}

func nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPriceX96), nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPriceX96)

	if add {
		if new(big.Int).Div(product, amount).Cmp(sqrtPriceX96) == 0 {
			denominator := new(big.Int).Add(numerator1, product)
			if denominator.Cmp(numerator1) >= 0 {
				return fixedpoint.MulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
			}
		}
		denominator := new(big.Int).Div(numerator1, sqrtPriceX96)
		denominator.Add(denominator, amount)
		return fixedpoint.DivRoundingUp(numerator1, denominator)
	}

	if new(big.Int).Div(product, amount).Cmp(sqrtPriceX96) != 0 || numerator1.Cmp(product) <= 0 {
		return nil, fixedpoint.ErrUnderflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return fixedpoint.MulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
}

func nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient, err := fixedpoint.MulDiv(amount, fixedpoint.Q96, liquidity)
		if err != nil {
			return nil, err
		}
		return fixedpoint.CheckedAddU256(sqrtPriceX96, quotient)
	}

	quotient, err := fixedpoint.MulDivRoundingUp(amount, fixedpoint.Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if sqrtPriceX96.Cmp(quotient) <= 0 {
		return nil, fixedpoint.ErrUnderflow
	}
	return new(big.Int).Sub(sqrtPriceX96, quotient), nil
}

// Amount0Delta returns the token0 amount between two sqrt prices for the
// given liquidity.
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		term, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivRoundingUp(term, sqrtRatioAX96)
	}

	term, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Div(term, sqrtRatioAX96), nil
}

// Amount1Delta returns the token1 amount between two sqrt prices for the
// given liquidity.
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q96)
	}
	return fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q96)
}
