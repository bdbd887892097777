package pool

import (
	"math/big"
	"sort"

	"clpool/internal/fixedpoint"
	"clpool/internal/tickmath"
)

// Tick holds the aggregates for one boundary tick: gross liquidity for
// initialization bookkeeping, the signed net delta applied when the price
// crosses it, and the fee growth recorded on the far side of the tick at its
// last crossing.
type Tick struct {
	LiquidityGross        *big.Int
	LiquidityNet          *big.Int
	FeeGrowthOutside0X128 *big.Int
	FeeGrowthOutside1X128 *big.Int
}

// tickLedger stores tick state plus a sorted index of initialized ticks so
// the swap loop can answer "next initialized tick in direction D" without
// scanning.
type tickLedger struct {
	ticks map[int]*Tick
	index []int
}

func newTickLedger() *tickLedger {
	return &tickLedger{ticks: make(map[int]*Tick)}
}

func (l *tickLedger) get(tick int) *Tick {
	return l.ticks[tick]
}

func (l *tickLedger) initializedCount() int {
	return len(l.index)
}

// validateUpdate checks that applying delta at tick cannot fail, so that the
// caller can pre-validate both boundaries before mutating either.
func (l *tickLedger) validateUpdate(tick int, delta, maxLiquidityPerTick *big.Int) error {
	gross := big.NewInt(0)
	if t := l.ticks[tick]; t != nil {
		gross = t.LiquidityGross
	}
	next, err := fixedpoint.AddDelta(gross, delta)
	if err != nil {
		return err
	}
	if next.Cmp(maxLiquidityPerTick) > 0 {
		return fixedpoint.ErrOverflow
	}
	return nil
}

// applyUpdate applies a liquidity delta at a boundary tick and reports
// whether the tick flipped between initialized and uninitialized. Callers
// must have run validateUpdate first.
func (l *tickLedger) applyUpdate(tick, currentTick int, delta, feeGrowthGlobal0, feeGrowthGlobal1 *big.Int, upper bool) bool {
	t := l.ticks[tick]
	if t == nil {
		t = &Tick{
			LiquidityGross:        big.NewInt(0),
			LiquidityNet:          big.NewInt(0),
			FeeGrowthOutside0X128: big.NewInt(0),
			FeeGrowthOutside1X128: big.NewInt(0),
		}
		l.ticks[tick] = t
	}

	grossBefore := new(big.Int).Set(t.LiquidityGross)
	t.LiquidityGross.Add(t.LiquidityGross, delta)

	if grossBefore.Sign() == 0 {
		// First liquidity at this boundary: by convention all growth so far
		// happened below the tick.
		if tick <= currentTick {
			t.FeeGrowthOutside0X128 = new(big.Int).Set(feeGrowthGlobal0)
			t.FeeGrowthOutside1X128 = new(big.Int).Set(feeGrowthGlobal1)
		}
	}

	if upper {
		t.LiquidityNet.Sub(t.LiquidityNet, delta)
	} else {
		t.LiquidityNet.Add(t.LiquidityNet, delta)
	}

	flipped := (grossBefore.Sign() == 0) != (t.LiquidityGross.Sign() == 0)
	if flipped && t.LiquidityGross.Sign() != 0 {
		l.indexInsert(tick)
	}
	return flipped
}

// clear removes a tick whose gross liquidity dropped to zero.
func (l *tickLedger) clear(tick int) {
	delete(l.ticks, tick)
	l.indexRemove(tick)
}

// applyCross flips a tick's fee-growth-outside snapshots to the given values
// and returns its signed net liquidity delta. The new outside values are
// computed by the swap loop at crossing time.
func (l *tickLedger) applyCross(tick int, newOutside0, newOutside1 *big.Int) *big.Int {
	t := l.ticks[tick]
	if t == nil {
		return big.NewInt(0)
	}
	t.FeeGrowthOutside0X128 = newOutside0
	t.FeeGrowthOutside1X128 = newOutside1
	return t.LiquidityNet
}

// nextInitialized returns the next initialized tick from the given tick in
// the swap direction: the greatest initialized tick <= from when the price is
// falling (zeroForOne), the least initialized tick > from otherwise. When no
// initialized tick remains it returns the representable bound and false.
func (l *tickLedger) nextInitialized(from int, zeroForOne bool) (int, bool) {
	if zeroForOne {
		i := sort.SearchInts(l.index, from+1)
		if i == 0 {
			return tickmath.MinTick, false
		}
		return l.index[i-1], true
	}
	i := sort.SearchInts(l.index, from+1)
	if i == len(l.index) {
		return tickmath.MaxTick, false
	}
	return l.index[i], true
}

// feeGrowthInside computes the fee growth accumulated strictly inside
// [lower, upper), branching on where the current tick sits relative to the
// range. Subtraction is modular so checkpoints taken at different times stay
// comparable.
func (l *tickLedger) feeGrowthInside(lower, upper, currentTick int, feeGrowthGlobal0, feeGrowthGlobal1 *big.Int) (*big.Int, *big.Int) {
	lowerOutside0, lowerOutside1 := l.outside(lower)
	upperOutside0, upperOutside1 := l.outside(upper)

	var below0, below1 *big.Int
	if currentTick >= lower {
		below0, below1 = lowerOutside0, lowerOutside1
	} else {
		below0 = fixedpoint.WrappingSubU256(feeGrowthGlobal0, lowerOutside0)
		below1 = fixedpoint.WrappingSubU256(feeGrowthGlobal1, lowerOutside1)
	}

	var above0, above1 *big.Int
	if currentTick < upper {
		above0, above1 = upperOutside0, upperOutside1
	} else {
		above0 = fixedpoint.WrappingSubU256(feeGrowthGlobal0, upperOutside0)
		above1 = fixedpoint.WrappingSubU256(feeGrowthGlobal1, upperOutside1)
	}

	inside0 := fixedpoint.WrappingSubU256(fixedpoint.WrappingSubU256(feeGrowthGlobal0, below0), above0)
	inside1 := fixedpoint.WrappingSubU256(fixedpoint.WrappingSubU256(feeGrowthGlobal1, below1), above1)
	return inside0, inside1
}

func (l *tickLedger) outside(tick int) (*big.Int, *big.Int) {
	if t := l.ticks[tick]; t != nil {
		return t.FeeGrowthOutside0X128, t.FeeGrowthOutside1X128
	}
	return big.NewInt(0), big.NewInt(0)
}

func (l *tickLedger) indexInsert(tick int) {
	i := sort.SearchInts(l.index, tick)
	if i < len(l.index) && l.index[i] == tick {
		return
	}
	l.index = append(l.index, 0)
	copy(l.index[i+1:], l.index[i:])
	l.index[i] = tick
}

func (l *tickLedger) indexRemove(tick int) {
	i := sort.SearchInts(l.index, tick)
	if i == len(l.index) || l.index[i] != tick {
		return
	}
	l.index = append(l.index[:i], l.index[i+1:]...)
}

// maxLiquidityPerTick spreads the representable liquidity evenly over the
// usable ticks for a given spacing.
func maxLiquidityPerTick(tickSpacing int) *big.Int {
	minUsable := (tickmath.MinTick / tickSpacing) * tickSpacing
	maxUsable := (tickmath.MaxTick / tickSpacing) * tickSpacing
	numTicks := int64((maxUsable-minUsable)/tickSpacing + 1)
	return new(big.Int).Div(fixedpoint.MaxUint128, big.NewInt(numTicks))
}
