package swapmath

import (
	"math/big"

	"clpool/internal/fixedpoint"
)

// FeeDenominator expresses swap fees in parts per million.
var FeeDenominator = big.NewInt(1_000_000)

// StepResult describes one bounded price advance.
type StepResult struct {
	SqrtPriceNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeSwapStep advances the price from sqrtPriceCurrentX96 toward
// sqrtPriceTargetX96, consuming at most amountRemaining (positive = exact
// input including fee, negative = exact output), and returns the amounts
// exchanged and the fee charged for the step.
func ComputeSwapStep(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, amountRemaining *big.Int, feePips uint32) (StepResult, error) {
	zeroForOne := sqrtPriceCurrentX96.Cmp(sqrtPriceTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := new(big.Int).SetUint64(uint64(feePips))
	feeComplement := new(big.Int).Sub(FeeDenominator, fee)

	var (
		result StepResult
		err    error
	)
	result.AmountIn = new(big.Int)
	result.AmountOut = new(big.Int)
	result.FeeAmount = new(big.Int)

	if exactIn {
		amountRemainingLessFee, err := fixedpoint.MulDiv(amountRemaining, feeComplement, FeeDenominator)
		if err != nil {
			return StepResult{}, err
		}
		if zeroForOne {
			result.AmountIn, err = Amount0Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, true)
		} else {
			result.AmountIn, err = Amount1Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, true)
		}
		if err != nil {
			return StepResult{}, err
		}
		if amountRemainingLessFee.Cmp(result.AmountIn) >= 0 {
			result.SqrtPriceNextX96 = new(big.Int).Set(sqrtPriceTargetX96)
		} else {
			result.SqrtPriceNextX96, err = NextSqrtPriceFromInput(sqrtPriceCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return StepResult{}, err
			}
		}
	} else {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if zeroForOne {
			result.AmountOut, err = Amount1Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, false)
		} else {
			result.AmountOut, err = Amount0Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, false)
		}
		if err != nil {
			return StepResult{}, err
		}
		if amountRemainingAbs.Cmp(result.AmountOut) >= 0 {
			result.SqrtPriceNextX96 = new(big.Int).Set(sqrtPriceTargetX96)
		} else {
			result.SqrtPriceNextX96, err = NextSqrtPriceFromOutput(sqrtPriceCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return StepResult{}, err
			}
		}
	}

	reachedTarget := sqrtPriceTargetX96.Cmp(result.SqrtPriceNextX96) == 0

	// Recompute amounts from the actual price movement.
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			result.AmountIn, err = Amount0Delta(result.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, true)
			if err != nil {
				return StepResult{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			result.AmountOut, err = Amount1Delta(result.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, false)
			if err != nil {
				return StepResult{}, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			result.AmountIn, err = Amount1Delta(sqrtPriceCurrentX96, result.SqrtPriceNextX96, liquidity, true)
			if err != nil {
				return StepResult{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			result.AmountOut, err = Amount0Delta(sqrtPriceCurrentX96, result.SqrtPriceNextX96, liquidity, false)
			if err != nil {
				return StepResult{}, err
			}
		}
	}

	if !exactIn {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if result.AmountOut.Cmp(amountRemainingAbs) > 0 {
			result.AmountOut = amountRemainingAbs
		}
	}

	if exactIn && !reachedTarget {
		// Did not reach the target: the whole leftover input is the fee.
		result.FeeAmount = new(big.Int).Sub(amountRemaining, result.AmountIn)
	} else {
		result.FeeAmount, err = fixedpoint.MulDivRoundingUp(result.AmountIn, fee, feeComplement)
		if err != nil {
			return StepResult{}, err
		}
	}

	return result, nil
}
