package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"clpool/internal/fixedpoint"
	"clpool/internal/model"
	"clpool/internal/swapmath"
	"clpool/internal/tickmath"
)

// SwapParams bundles the arguments of a swap request.
type SwapParams struct {
	Sender    common.Address
	Recipient common.Address
	// ZeroForOne is the swap direction: true swaps token0 in for token1 out.
	ZeroForOne bool
	// AmountSpecified is the signed swap size: positive = exact input,
	// negative = exact output.
	AmountSpecified *big.Int
	// SqrtPriceLimitX96 bounds how far the price may move. Nil means the
	// representable bound in the swap direction.
	SqrtPriceLimitX96 *big.Int
	// Referrer receives the referrer fee share when the sender is a trusted
	// router. The zero address means no referrer.
	Referrer common.Address
	// Callback, when set, runs after the deltas are computed and before any
	// state is committed; the caller funds the pool inside it. An error
	// aborts the swap. Data is passed through opaquely.
	Callback func(amount0, amount1 *big.Int, data []byte) error
	Data     []byte
}

// swapState is the staged working state of one swap. Nothing in it touches
// the pool until commit.
type swapState struct {
	amountRemaining  *big.Int
	amountCalculated *big.Int
	sqrtPrice        *big.Int
	tick             int
	liquidity        *big.Int
	feeGrowthGlobal  *big.Int
	protocolFee      *big.Int
	referrerFee      *big.Int
	crossings        []tickCrossing
}

type tickCrossing struct {
	tick        int
	newOutside0 *big.Int
	newOutside1 *big.Int
}

// Swap executes a swap against the pool and returns the signed token deltas
// (positive = pool receives, negative = pool pays out). State is updated only
// if the whole swap, including the funds callback, succeeds.
func (p *Pool) Swap(ctx context.Context, params SwapParams) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return nil, nil, ErrZeroAmount
	}

	sqrtPriceLimit, err := p.checkPriceLimit(params.ZeroForOne, params.SqrtPriceLimitX96)
	if err != nil {
		return nil, nil, err
	}

	referrerPermitted := p.referrerPermitted(ctx, params)

	protocolDenom, referrerDenom := p.feeConfig.ProtocolDenom0, p.feeConfig.ReferrerDenom0
	if !params.ZeroForOne {
		protocolDenom, referrerDenom = p.feeConfig.ProtocolDenom1, p.feeConfig.ReferrerDenom1
	}

	exactInput := params.AmountSpecified.Sign() > 0
	state := &swapState{
		amountRemaining:  new(big.Int).Set(params.AmountSpecified),
		amountCalculated: big.NewInt(0),
		sqrtPrice:        new(big.Int).Set(p.sqrtPriceX96),
		tick:             p.tick,
		liquidity:        new(big.Int).Set(p.liquidity),
		protocolFee:      big.NewInt(0),
		referrerFee:      big.NewInt(0),
	}
	if params.ZeroForOne {
		state.feeGrowthGlobal = new(big.Int).Set(p.feeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobal = new(big.Int).Set(p.feeGrowthGlobal1X128)
	}

	for state.amountRemaining.Sign() != 0 && state.sqrtPrice.Cmp(sqrtPriceLimit) != 0 {
		if err := p.swapStep(state, sqrtPriceLimit, params.ZeroForOne, exactInput, protocolDenom, referrerDenom, referrerPermitted); err != nil {
			return nil, nil, err
		}
	}

	var amount0, amount1 *big.Int
	if params.ZeroForOne == exactInput {
		amount0 = new(big.Int).Sub(params.AmountSpecified, state.amountRemaining)
		amount1 = state.amountCalculated
	} else {
		amount0 = state.amountCalculated
		amount1 = new(big.Int).Sub(params.AmountSpecified, state.amountRemaining)
	}

	// The counterparty funds the pool here. Nothing has been committed yet,
	// so a callback failure aborts the swap cleanly — and accrued referrer
	// fees are only ever credited, never transferred, inside a swap.
	if params.Callback != nil {
		if err := params.Callback(amount0, amount1, params.Data); err != nil {
			return nil, nil, err
		}
	}

	p.commitSwap(state, params, amount0, amount1)
	return amount0, amount1, nil
}

// swapStep advances the staged state across one bounded price step.
func (p *Pool) swapStep(state *swapState, sqrtPriceLimit *big.Int, zeroForOne, exactInput bool, protocolDenom, referrerDenom uint8, referrerPermitted bool) error {
	tickNext, tickInitialized := p.ticks.nextInitialized(state.tick, zeroForOne)
	if tickNext < tickmath.MinTick {
		tickNext = tickmath.MinTick
	} else if tickNext > tickmath.MaxTick {
		tickNext = tickmath.MaxTick
	}

	sqrtPriceNext, err := tickmath.SqrtRatioAtTick(tickNext)
	if err != nil {
		return err
	}

	target := sqrtPriceNext
	if zeroForOne {
		if sqrtPriceNext.Cmp(sqrtPriceLimit) < 0 {
			target = sqrtPriceLimit
		}
	} else {
		if sqrtPriceNext.Cmp(sqrtPriceLimit) > 0 {
			target = sqrtPriceLimit
		}
	}

	sqrtPriceStart := new(big.Int).Set(state.sqrtPrice)
	step, err := swapmath.ComputeSwapStep(state.sqrtPrice, target, state.liquidity, state.amountRemaining, p.cfg.FeePips)
	if err != nil {
		return err
	}
	state.sqrtPrice = step.SqrtPriceNextX96

	if exactInput {
		consumed := new(big.Int).Add(step.AmountIn, step.FeeAmount)
		state.amountRemaining.Sub(state.amountRemaining, consumed)
		state.amountCalculated.Sub(state.amountCalculated, step.AmountOut)
	} else {
		state.amountRemaining.Add(state.amountRemaining, step.AmountOut)
		paid := new(big.Int).Add(step.AmountIn, step.FeeAmount)
		state.amountCalculated.Add(state.amountCalculated, paid)
	}

	split := splitStepFee(step.FeeAmount, protocolDenom, referrerDenom, referrerPermitted)
	state.protocolFee.Add(state.protocolFee, split.protocol)
	state.referrerFee.Add(state.referrerFee, split.referrer)

	// LP share feeds the global per-liquidity accumulator. With no active
	// liquidity the share stays in the pool balance until liquidity returns.
	if state.liquidity.Sign() > 0 && split.lp.Sign() > 0 {
		growth, err := fixedpoint.MulDiv(split.lp, fixedpoint.Q128, state.liquidity)
		if err != nil {
			return err
		}
		state.feeGrowthGlobal, err = fixedpoint.CheckedAddU256(state.feeGrowthGlobal, growth)
		if err != nil {
			return err
		}
	}

	if state.sqrtPrice.Cmp(sqrtPriceNext) == 0 {
		if tickInitialized {
			if err := p.stageCrossing(state, tickNext, zeroForOne); err != nil {
				return err
			}
		}
		if zeroForOne {
			state.tick = tickNext - 1
		} else {
			state.tick = tickNext
		}
	} else if state.sqrtPrice.Cmp(sqrtPriceStart) != 0 {
		state.tick, err = tickmath.TickAtSqrtRatio(state.sqrtPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// stageCrossing records a tick crossing: the fee-growth-outside flip uses the
// accumulator values as of the crossing, and the tick's net liquidity is
// applied to the staged in-range liquidity.
func (p *Pool) stageCrossing(state *swapState, tick int, zeroForOne bool) error {
	t := p.ticks.get(tick)
	if t == nil {
		return nil
	}

	var global0, global1 *big.Int
	if zeroForOne {
		global0, global1 = state.feeGrowthGlobal, p.feeGrowthGlobal1X128
	} else {
		global0, global1 = p.feeGrowthGlobal0X128, state.feeGrowthGlobal
	}
	state.crossings = append(state.crossings, tickCrossing{
		tick:        tick,
		newOutside0: fixedpoint.WrappingSubU256(global0, t.FeeGrowthOutside0X128),
		newOutside1: fixedpoint.WrappingSubU256(global1, t.FeeGrowthOutside1X128),
	})

	net := new(big.Int).Set(t.LiquidityNet)
	if zeroForOne {
		net.Neg(net)
	}
	liquidityNext, err := fixedpoint.AddDelta(state.liquidity, net)
	if err != nil {
		return err
	}
	state.liquidity = liquidityNext
	return nil
}

// commitSwap applies the staged swap state to the pool and emits events.
func (p *Pool) commitSwap(state *swapState, params SwapParams, amount0, amount1 *big.Int) {
	p.sqrtPriceX96 = state.sqrtPrice
	p.tick = state.tick
	p.liquidity = state.liquidity
	if params.ZeroForOne {
		p.feeGrowthGlobal0X128 = state.feeGrowthGlobal
	} else {
		p.feeGrowthGlobal1X128 = state.feeGrowthGlobal
	}
	for _, crossing := range state.crossings {
		p.ticks.applyCross(crossing.tick, crossing.newOutside0, crossing.newOutside1)
	}

	p.protocolFees.credit(params.ZeroForOne, state.protocolFee)
	if state.protocolFee.Sign() > 0 {
		accrued := model.ProtocolFeeAccruedEvent{Amount0: "0", Amount1: "0"}
		if params.ZeroForOne {
			accrued.Amount0 = state.protocolFee.String()
		} else {
			accrued.Amount1 = state.protocolFee.String()
		}
		p.emit(model.EventProtocolFeeAccrued, accrued)
	}
	if state.referrerFee.Sign() > 0 {
		p.referrerFees.account(params.Referrer).credit(params.ZeroForOne, state.referrerFee)
		accrued := model.ReferrerFeeAccruedEvent{Referrer: params.Referrer.Hex(), Amount0: "0", Amount1: "0"}
		if params.ZeroForOne {
			accrued.Amount0 = state.referrerFee.String()
		} else {
			accrued.Amount1 = state.referrerFee.String()
		}
		p.emit(model.EventReferrerFeeAccrued, accrued)
	}

	p.balance0.Add(p.balance0, amount0)
	p.balance1.Add(p.balance1, amount1)

	p.emit(model.EventSwapExecuted, model.SwapExecutedEvent{
		Sender:       params.Sender.Hex(),
		Recipient:    params.Recipient.Hex(),
		Amount0:      amount0.String(),
		Amount1:      amount1.String(),
		SqrtPriceX96: p.sqrtPriceX96.String(),
		Liquidity:    p.liquidity.String(),
		Tick:         p.tick,
	})
}

// referrerPermitted consults the router trust oracle for the sender. Any
// oracle failure degrades to "not permitted" rather than failing the swap.
func (p *Pool) referrerPermitted(ctx context.Context, params SwapParams) bool {
	if params.Referrer == (common.Address{}) {
		return false
	}
	if p.oracle == nil {
		return false
	}
	trusted, err := p.oracle.IsTrustedRouter(ctx, params.Sender)
	if err != nil {
		p.logger.Warn("router trust oracle call failed, denying referrer fee",
			zap.String("sender", params.Sender.Hex()),
			zap.Error(err),
		)
		return false
	}
	return trusted
}

// checkPriceLimit validates the limit against the current price and the
// representable price bounds, supplying the directional default when absent.
func (p *Pool) checkPriceLimit(zeroForOne bool, limit *big.Int) (*big.Int, error) {
	if limit == nil {
		if zeroForOne {
			return new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1)), nil
		}
		return new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1)), nil
	}
	if zeroForOne {
		if limit.Cmp(p.sqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) <= 0 {
			return nil, ErrPriceLimitInvalid
		}
	} else {
		if limit.Cmp(p.sqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) >= 0 {
			return nil, ErrPriceLimitInvalid
		}
	}
	return new(big.Int).Set(limit), nil
}
