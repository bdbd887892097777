package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"clpool/internal/fixedpoint"
)

// positionKey identifies a position by owner and tick range.
type positionKey struct {
	owner common.Address
	lower int
	upper int
}

// Position holds a range position's liquidity, its fee-growth-inside
// checkpoints, and fees owed but not yet collected. Entries persist after
// liquidity returns to zero so the range can be reused.
type Position struct {
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

type positionLedger struct {
	positions map[positionKey]*Position
}

func newPositionLedger() *positionLedger {
	return &positionLedger{positions: make(map[positionKey]*Position)}
}

func (l *positionLedger) count() int {
	return len(l.positions)
}

func (l *positionLedger) get(owner common.Address, lower, upper int) *Position {
	return l.positions[positionKey{owner, lower, upper}]
}

func (l *positionLedger) getOrCreate(owner common.Address, lower, upper int) *Position {
	key := positionKey{owner, lower, upper}
	if p := l.positions[key]; p != nil {
		return p
	}
	p := &Position{
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: big.NewInt(0),
		FeeGrowthInside1LastX128: big.NewInt(0),
		TokensOwed0:              big.NewInt(0),
		TokensOwed1:              big.NewInt(0),
	}
	l.positions[key] = p
	return p
}

// owedDelta computes the fees earned by a position since its last checkpoint,
// truncated to an unsigned 128-bit amount. The result only ever adds to
// tokensOwed; recomputation never reduces it.
func (p *Position) owedDelta(feeGrowthInside0, feeGrowthInside1 *big.Int) (*big.Int, *big.Int) {
	delta0 := fixedpoint.WrappingSubU256(feeGrowthInside0, p.FeeGrowthInside0LastX128)
	delta1 := fixedpoint.WrappingSubU256(feeGrowthInside1, p.FeeGrowthInside1LastX128)

	owed0 := new(big.Int).Mul(delta0, p.Liquidity)
	owed0.Div(owed0, fixedpoint.Q128)
	owed0.And(owed0, fixedpoint.MaxUint128)

	owed1 := new(big.Int).Mul(delta1, p.Liquidity)
	owed1.Div(owed1, fixedpoint.Q128)
	owed1.And(owed1, fixedpoint.MaxUint128)

	return owed0, owed1
}

// apply advances the checkpoints, credits owed fees, and applies the
// liquidity delta. Callers must have computed owed amounts and validated the
// new liquidity beforehand.
func (p *Position) apply(liquidityNext, owed0, owed1, feeGrowthInside0, feeGrowthInside1 *big.Int) {
	p.Liquidity = liquidityNext
	p.FeeGrowthInside0LastX128 = new(big.Int).Set(feeGrowthInside0)
	p.FeeGrowthInside1LastX128 = new(big.Int).Set(feeGrowthInside1)
	p.TokensOwed0.Add(p.TokensOwed0, owed0)
	p.TokensOwed1.Add(p.TokensOwed1, owed1)
}
