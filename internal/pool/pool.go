// Package pool implements a single concentrated-liquidity pool: tick-indexed
// liquidity, the tick-walking swap engine, the protocol/referrer/LP fee
// hierarchy, and per-position fee accounting. One Pool instance owns all of
// its state; every mutating entry point is guarded by a reentrancy gate and
// either commits completely or leaves the state untouched.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"clpool/internal/fixedpoint"
	"clpool/internal/model"
	"clpool/internal/swapmath"
	"clpool/internal/tickmath"
)

// RouterTrustOracle reports whether a caller is a trusted fee-routing
// intermediary. Implementations may fail; the pool treats any failure as
// "not trusted".
type RouterTrustOracle interface {
	IsTrustedRouter(ctx context.Context, caller common.Address) (bool, error)
}

// Config describes an immutable pool deployment.
type Config struct {
	Token0      common.Address
	Token1      common.Address
	FeePips     uint32
	TickSpacing int
	Owner       common.Address
}

// Pool is a single concentrated-liquidity pool instance.
type Pool struct {
	cfg    Config
	oracle RouterTrustOracle
	logger *zap.Logger
	gate   reentrancyGate

	initialized          bool
	sqrtPriceX96         *big.Int
	tick                 int
	liquidity            *big.Int
	feeGrowthGlobal0X128 *big.Int
	feeGrowthGlobal1X128 *big.Int
	feeConfig            FeeConfig
	balance0             *big.Int
	balance1             *big.Int

	maxLiquidityPerTick *big.Int
	ticks               *tickLedger
	positions           *positionLedger
	protocolFees        *accruedFees
	referrerFees        *referrerFeeStore

	events []model.Event
}

// New builds an uninitialized pool.
func New(cfg Config, trust RouterTrustOracle, logger *zap.Logger) (*Pool, error) {
	if cfg.Token0 == cfg.Token1 {
		return nil, fmt.Errorf("token0 and token1 must differ")
	}
	if cfg.TickSpacing <= 0 {
		return nil, fmt.Errorf("tick spacing must be positive")
	}
	if big.NewInt(int64(cfg.FeePips)).Cmp(swapmath.FeeDenominator) >= 0 {
		return nil, fmt.Errorf("fee pips out of range")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:                  cfg,
		oracle:               trust,
		logger:               logger,
		sqrtPriceX96:         big.NewInt(0),
		liquidity:            big.NewInt(0),
		feeGrowthGlobal0X128: big.NewInt(0),
		feeGrowthGlobal1X128: big.NewInt(0),
		balance0:             big.NewInt(0),
		balance1:             big.NewInt(0),
		maxLiquidityPerTick:  maxLiquidityPerTick(cfg.TickSpacing),
		ticks:                newTickLedger(),
		positions:            newPositionLedger(),
		protocolFees:         newAccruedFees(),
		referrerFees:         newReferrerFeeStore(),
	}, nil
}

// Initialize sets the starting price. It may be called once.
func (p *Pool) Initialize(sqrtPriceX96 *big.Int) error {
	if err := p.gate.acquire(); err != nil {
		return err
	}
	defer p.gate.release()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	tick, err := tickmath.TickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return err
	}

	p.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	p.tick = tick
	p.initialized = true
	p.emit(model.EventPoolInitialized, model.PoolInitializedEvent{
		SqrtPriceX96: p.sqrtPriceX96.String(),
		Tick:         tick,
	})
	return nil
}

// Mint adds liquidity to a position and returns the token amounts the pool
// takes in for it.
func (p *Pool) Mint(owner common.Address, tickLower, tickUpper int, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrZeroLiquidity
	}

	amount0, amount1, err := p.modifyPosition(owner, tickLower, tickUpper, amount)
	if err != nil {
		return nil, nil, err
	}

	p.balance0.Add(p.balance0, amount0)
	p.balance1.Add(p.balance1, amount1)
	p.emit(model.EventLiquidityMinted, model.LiquidityMintedEvent{
		Owner:     owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount.String(),
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	})
	return amount0, amount1, nil
}

// Burn removes liquidity from a position. The principal amounts are credited
// to the position's owed balance for later collection and returned.
func (p *Pool) Burn(owner common.Address, tickLower, tickUpper int, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrZeroLiquidity
	}

	amount0, amount1, err := p.modifyPosition(owner, tickLower, tickUpper, new(big.Int).Neg(amount))
	if err != nil {
		return nil, nil, err
	}

	amount0.Neg(amount0)
	amount1.Neg(amount1)

	position := p.positions.get(owner, tickLower, tickUpper)
	if amount0.Sign() > 0 {
		position.TokensOwed0.Add(position.TokensOwed0, amount0)
	}
	if amount1.Sign() > 0 {
		position.TokensOwed1.Add(position.TokensOwed1, amount1)
	}

	p.emit(model.EventLiquidityBurned, model.LiquidityBurnedEvent{
		Owner:     owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount.String(),
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	})
	return amount0, amount1, nil
}

// Collect pays out up to the requested amounts from a position's owed
// balance to the recipient and returns the amounts transferred.
func (p *Pool) Collect(owner common.Address, recipient common.Address, tickLower, tickUpper int, amount0Requested, amount1Requested *big.Int) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if err := checkTicks(tickLower, tickUpper, p.cfg.TickSpacing); err != nil {
		return nil, nil, err
	}

	position := p.positions.get(owner, tickLower, tickUpper)
	if position == nil {
		return nil, nil, ErrUnauthorized
	}

	amount0 := minBig(amount0Requested, position.TokensOwed0)
	amount1 := minBig(amount1Requested, position.TokensOwed1)

	position.TokensOwed0.Sub(position.TokensOwed0, amount0)
	position.TokensOwed1.Sub(position.TokensOwed1, amount1)
	p.balance0.Sub(p.balance0, amount0)
	p.balance1.Sub(p.balance1, amount1)

	p.emit(model.EventFeesCollected, model.FeesCollectedEvent{
		Owner:     owner.Hex(),
		Recipient: recipient.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	})
	return amount0, amount1, nil
}

// CollectReferrerFees pays out the caller's accrued referrer fees, zeroing
// the account and transferring in the same call. Repeat calls return zero.
func (p *Pool) CollectReferrerFees(caller common.Address) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	acct := p.referrerFees.account(caller)
	amount0, amount1 := acct.take()
	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return amount0, amount1, nil
	}

	p.balance0.Sub(p.balance0, amount0)
	p.balance1.Sub(p.balance1, amount1)
	p.emit(model.EventReferrerFeesCollected, model.ReferrerFeesCollectedEvent{
		Referrer: caller.Hex(),
		Amount0:  amount0.String(),
		Amount1:  amount1.String(),
	})
	return amount0, amount1, nil
}

// CollectProtocolFees pays out accrued protocol fees to the recipient.
// Only the pool owner may call it.
func (p *Pool) CollectProtocolFees(caller, recipient common.Address) (*big.Int, *big.Int, error) {
	if err := p.gate.acquire(); err != nil {
		return nil, nil, err
	}
	defer p.gate.release()

	if caller != p.cfg.Owner {
		return nil, nil, ErrUnauthorized
	}

	amount0, amount1 := p.protocolFees.take()
	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return amount0, amount1, nil
	}

	p.balance0.Sub(p.balance0, amount0)
	p.balance1.Sub(p.balance1, amount1)
	p.emit(model.EventProtocolFeesCollected, model.ProtocolFeesCollectedEvent{
		Recipient: recipient.Hex(),
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	})
	return amount0, amount1, nil
}

// SetReferrerFeeConfig sets the per-token referrer fee denominators.
// Only the pool owner may call it.
func (p *Pool) SetReferrerFeeConfig(caller common.Address, denom0, denom1 uint8) error {
	if err := p.gate.acquire(); err != nil {
		return err
	}
	defer p.gate.release()

	if caller != p.cfg.Owner {
		return ErrUnauthorized
	}
	if !validReferrerDenom(denom0) || !validReferrerDenom(denom1) {
		return ErrInvalidFeeConfig
	}

	before := p.feeConfig
	p.feeConfig.ReferrerDenom0 = denom0
	p.feeConfig.ReferrerDenom1 = denom1
	p.emit(model.EventFeeConfigChanged, model.FeeConfigChangedEvent{
		Kind:    "referrer",
		Before0: before.ReferrerDenom0,
		Before1: before.ReferrerDenom1,
		After0:  denom0,
		After1:  denom1,
	})
	return nil
}

// SetProtocolFeeConfig sets the per-token protocol fee denominators.
// Only the pool owner may call it.
func (p *Pool) SetProtocolFeeConfig(caller common.Address, denom0, denom1 uint8) error {
	if err := p.gate.acquire(); err != nil {
		return err
	}
	defer p.gate.release()

	if caller != p.cfg.Owner {
		return ErrUnauthorized
	}
	if !validProtocolDenom(denom0) || !validProtocolDenom(denom1) {
		return ErrInvalidFeeConfig
	}

	before := p.feeConfig
	p.feeConfig.ProtocolDenom0 = denom0
	p.feeConfig.ProtocolDenom1 = denom1
	p.emit(model.EventFeeConfigChanged, model.FeeConfigChangedEvent{
		Kind:    "protocol",
		Before0: before.ProtocolDenom0,
		Before1: before.ProtocolDenom1,
		After0:  denom0,
		After1:  denom1,
	})
	return nil
}

// FeeConfig returns the current fee denominators.
func (p *Pool) FeeConfig() FeeConfig {
	return p.feeConfig
}

// ReferrerBalance returns a referrer's accrued, uncollected fees.
func (p *Pool) ReferrerBalance(referrer common.Address) (*big.Int, *big.Int) {
	return p.referrerFees.balance(referrer)
}

// ProtocolBalance returns the accrued, uncollected protocol fees.
func (p *Pool) ProtocolBalance() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.protocolFees.amount0), new(big.Int).Set(p.protocolFees.amount1)
}

// Position returns a copy of the position state for the given key, or nil.
func (p *Pool) Position(owner common.Address, tickLower, tickUpper int) *Position {
	pos := p.positions.get(owner, tickLower, tickUpper)
	if pos == nil {
		return nil
	}
	return &Position{
		Liquidity:                new(big.Int).Set(pos.Liquidity),
		FeeGrowthInside0LastX128: new(big.Int).Set(pos.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(big.Int).Set(pos.FeeGrowthInside1LastX128),
		TokensOwed0:              new(big.Int).Set(pos.TokensOwed0),
		TokensOwed1:              new(big.Int).Set(pos.TokensOwed1),
	}
}

// Snapshot returns a serializable view of pool state.
func (p *Pool) Snapshot() model.PoolSnapshot {
	return model.PoolSnapshot{
		Token0:               p.cfg.Token0.Hex(),
		Token1:               p.cfg.Token1.Hex(),
		FeePips:              p.cfg.FeePips,
		TickSpacing:          p.cfg.TickSpacing,
		SqrtPriceX96:         p.sqrtPriceX96.String(),
		Tick:                 p.tick,
		Liquidity:            p.liquidity.String(),
		FeeGrowthGlobal0X128: p.feeGrowthGlobal0X128.String(),
		FeeGrowthGlobal1X128: p.feeGrowthGlobal1X128.String(),
		Balance0:             p.balance0.String(),
		Balance1:             p.balance1.String(),
		ProtocolFees0:        p.protocolFees.amount0.String(),
		ProtocolFees1:        p.protocolFees.amount1.String(),
		ProtocolFeeDenom0:    p.feeConfig.ProtocolDenom0,
		ProtocolFeeDenom1:    p.feeConfig.ProtocolDenom1,
		ReferrerFeeDenom0:    p.feeConfig.ReferrerDenom0,
		ReferrerFeeDenom1:    p.feeConfig.ReferrerDenom1,
		InitializedTicks:     p.ticks.initializedCount(),
		Positions:            p.positions.count(),
	}
}

// DrainEvents returns the events emitted since the last drain.
func (p *Pool) DrainEvents() []model.Event {
	events := p.events
	p.events = nil
	return events
}

// modifyPosition validates, computes, and then applies a liquidity change.
// All fallible computation happens before any state is touched so a failure
// leaves the pool unchanged.
func (p *Pool) modifyPosition(owner common.Address, tickLower, tickUpper int, liquidityDelta *big.Int) (*big.Int, *big.Int, error) {
	if err := checkTicks(tickLower, tickUpper, p.cfg.TickSpacing); err != nil {
		return nil, nil, err
	}

	position := p.positions.get(owner, tickLower, tickUpper)
	positionLiquidity := big.NewInt(0)
	if position != nil {
		positionLiquidity = position.Liquidity
	}
	liquidityNext, err := fixedpoint.AddDelta(positionLiquidity, liquidityDelta)
	if err != nil {
		if errors.Is(err, fixedpoint.ErrUnderflow) {
			return nil, nil, ErrInsufficientLiquidity
		}
		return nil, nil, err
	}

	if err := p.ticks.validateUpdate(tickLower, liquidityDelta, p.maxLiquidityPerTick); err != nil {
		return nil, nil, err
	}
	if err := p.ticks.validateUpdate(tickUpper, liquidityDelta, p.maxLiquidityPerTick); err != nil {
		return nil, nil, err
	}

	amount0, amount1, poolLiquidityNext, err := p.amountsForLiquidity(tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}

	// Tick updates must happen before the fee-growth-inside read so a fresh
	// boundary gets its outside snapshot first.
	flippedLower := p.ticks.applyUpdate(tickLower, p.tick, liquidityDelta, p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, false)
	flippedUpper := p.ticks.applyUpdate(tickUpper, p.tick, liquidityDelta, p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, true)

	inside0, inside1 := p.ticks.feeGrowthInside(tickLower, tickUpper, p.tick, p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128)

	if position == nil {
		position = p.positions.getOrCreate(owner, tickLower, tickUpper)
	}
	owed0, owed1 := position.owedDelta(inside0, inside1)
	position.apply(liquidityNext, owed0, owed1, inside0, inside1)

	if poolLiquidityNext != nil {
		p.liquidity = poolLiquidityNext
	}

	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			p.ticks.clear(tickLower)
		}
		if flippedUpper {
			p.ticks.clear(tickUpper)
		}
	}

	return amount0, amount1, nil
}

// amountsForLiquidity computes the token deltas for a liquidity change and,
// when the range is active, the pool's next in-range liquidity.
func (p *Pool) amountsForLiquidity(tickLower, tickUpper int, liquidityDelta *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)

	sqrtLower, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}

	roundUp := liquidityDelta.Sign() > 0
	magnitude := new(big.Int).Abs(liquidityDelta)

	switch {
	case p.tick < tickLower:
		amount0, err = swapmath.Amount0Delta(sqrtLower, sqrtUpper, magnitude, roundUp)
		if err != nil {
			return nil, nil, nil, err
		}
	case p.tick < tickUpper:
		amount0, err = swapmath.Amount0Delta(p.sqrtPriceX96, sqrtUpper, magnitude, roundUp)
		if err != nil {
			return nil, nil, nil, err
		}
		amount1, err = swapmath.Amount1Delta(sqrtLower, p.sqrtPriceX96, magnitude, roundUp)
		if err != nil {
			return nil, nil, nil, err
		}
		liquidityNext, err := fixedpoint.AddDelta(p.liquidity, liquidityDelta)
		if err != nil {
			return nil, nil, nil, err
		}
		if liquidityDelta.Sign() < 0 {
			amount0.Neg(amount0)
			amount1.Neg(amount1)
		}
		return amount0, amount1, liquidityNext, nil
	default:
		amount1, err = swapmath.Amount1Delta(sqrtLower, sqrtUpper, magnitude, roundUp)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if liquidityDelta.Sign() < 0 {
		amount0.Neg(amount0)
		amount1.Neg(amount1)
	}
	return amount0, amount1, nil, nil
}

func (p *Pool) emit(eventType string, data any) {
	p.events = append(p.events, model.Event{Type: eventType, Data: data})
}

func checkTicks(tickLower, tickUpper, tickSpacing int) error {
	if tickLower >= tickUpper {
		return ErrInvalidTickRange
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return ErrInvalidTickRange
	}
	if tickLower%tickSpacing != 0 || tickUpper%tickSpacing != 0 {
		return ErrInvalidTickRange
	}
	return nil
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil {
		return new(big.Int).Set(b)
	}
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
