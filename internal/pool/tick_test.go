package pool

import (
	"math/big"
	"testing"

	"clpool/internal/fixedpoint"
	"clpool/internal/tickmath"
)

func TestNextInitialized(t *testing.T) {
	l := newTickLedger()
	for _, tick := range []int{-600, -60, 120} {
		l.applyUpdate(tick, 0, big.NewInt(1000), big.NewInt(0), big.NewInt(0), false)
	}

	cases := []struct {
		from       int
		zeroForOne bool
		want       int
		found      bool
	}{
		{0, true, -60, true},
		{-60, true, -60, true}, // a boundary at the current tick still counts going down
		{-61, true, -600, true},
		{-601, true, tickmath.MinTick, false},
		{0, false, 120, true},
		{119, false, 120, true},
		{120, false, tickmath.MaxTick, false},
		{-700, false, -600, true},
	}
	for _, tc := range cases {
		got, found := l.nextInitialized(tc.from, tc.zeroForOne)
		if got != tc.want || found != tc.found {
			t.Errorf("nextInitialized(%d, %v) = (%d, %v), want (%d, %v)", tc.from, tc.zeroForOne, got, found, tc.want, tc.found)
		}
	}
}

func TestApplyUpdateFlipAndClear(t *testing.T) {
	l := newTickLedger()
	delta := big.NewInt(500)

	if flipped := l.applyUpdate(-60, 0, delta, big.NewInt(0), big.NewInt(0), false); !flipped {
		t.Fatal("first liquidity should flip the tick on")
	}
	if flipped := l.applyUpdate(-60, 0, delta, big.NewInt(0), big.NewInt(0), false); flipped {
		t.Fatal("second add should not flip")
	}
	if l.initializedCount() != 1 {
		t.Fatalf("initialized count: %d", l.initializedCount())
	}

	neg := new(big.Int).Neg(delta)
	if flipped := l.applyUpdate(-60, 0, neg, big.NewInt(0), big.NewInt(0), false); flipped {
		t.Fatal("partial remove should not flip")
	}
	if flipped := l.applyUpdate(-60, 0, neg, big.NewInt(0), big.NewInt(0), false); !flipped {
		t.Fatal("removing the last liquidity should flip the tick off")
	}
	l.clear(-60)
	if l.get(-60) != nil || l.initializedCount() != 0 {
		t.Fatal("tick not cleared")
	}
}

func TestApplyUpdateNetSigns(t *testing.T) {
	l := newTickLedger()
	delta := big.NewInt(700)
	l.applyUpdate(-60, 0, delta, big.NewInt(0), big.NewInt(0), false)
	l.applyUpdate(60, 0, delta, big.NewInt(0), big.NewInt(0), true)

	if got := l.get(-60).LiquidityNet; got.Cmp(delta) != 0 {
		t.Fatalf("lower net: %s", got)
	}
	if got := l.get(60).LiquidityNet; got.Cmp(new(big.Int).Neg(delta)) != 0 {
		t.Fatalf("upper net: %s", got)
	}
}

func TestApplyUpdateOutsideConvention(t *testing.T) {
	l := newTickLedger()
	global0 := big.NewInt(1111)
	global1 := big.NewInt(2222)

	// Boundary at or below the current tick snapshots the globals.
	l.applyUpdate(-60, 0, big.NewInt(10), global0, global1, false)
	if o0, o1 := l.outside(-60); o0.Cmp(global0) != 0 || o1.Cmp(global1) != 0 {
		t.Fatalf("below-current outside: %s/%s", o0, o1)
	}
	// Boundary above the current tick starts at zero.
	l.applyUpdate(60, 0, big.NewInt(10), global0, global1, true)
	if o0, o1 := l.outside(60); o0.Sign() != 0 || o1.Sign() != 0 {
		t.Fatalf("above-current outside: %s/%s", o0, o1)
	}
}

func TestFeeGrowthInsideBranches(t *testing.T) {
	l := newTickLedger()
	l.applyUpdate(-100, 0, big.NewInt(10), big.NewInt(5), big.NewInt(0), false)
	l.applyUpdate(100, 0, big.NewInt(10), big.NewInt(5), big.NewInt(0), true)
	// Hand-set the upper snapshot as if it had been crossed before.
	l.get(100).FeeGrowthOutside0X128 = big.NewInt(2)

	global := big.NewInt(10)

	// Current tick inside the range: inside = global - below - above.
	inside0, _ := l.feeGrowthInside(-100, 100, 0, global, big.NewInt(0))
	if inside0.Int64() != 3 {
		t.Fatalf("inside (current in range): %s, want 3", inside0)
	}

	// Simulate crossing the lower boundary downward at the same global value:
	// the snapshot flips, and growth inside must be unchanged.
	l.applyCross(-100, fixedpoint.WrappingSubU256(global, big.NewInt(5)), big.NewInt(0))
	inside0, _ = l.feeGrowthInside(-100, 100, -101, global, big.NewInt(0))
	if inside0.Int64() != 3 {
		t.Fatalf("inside after crossing below: %s, want 3", inside0)
	}

	// Growth that happens while the price is below the range stays outside it.
	grownGlobal := big.NewInt(17)
	inside0, _ = l.feeGrowthInside(-100, 100, -101, grownGlobal, big.NewInt(0))
	if inside0.Int64() != 3 {
		t.Fatalf("inside after out-of-range growth: %s, want 3", inside0)
	}
}

func TestApplyCrossReturnsNet(t *testing.T) {
	l := newTickLedger()
	l.applyUpdate(-60, 0, big.NewInt(900), big.NewInt(0), big.NewInt(0), false)

	net := l.applyCross(-60, big.NewInt(41), big.NewInt(42))
	if net.Int64() != 900 {
		t.Fatalf("net: %s", net)
	}
	if o0, o1 := l.outside(-60); o0.Int64() != 41 || o1.Int64() != 42 {
		t.Fatalf("outside after cross: %s/%s", o0, o1)
	}
	// Crossing an unknown tick is a no-op.
	if net := l.applyCross(999, big.NewInt(1), big.NewInt(1)); net.Sign() != 0 {
		t.Fatalf("unknown tick net: %s", net)
	}
}

func TestMaxLiquidityPerTick(t *testing.T) {
	for _, spacing := range []int{1, 10, 60, 200} {
		max := maxLiquidityPerTick(spacing)
		if max.Sign() <= 0 {
			t.Fatalf("spacing %d: %s", spacing, max)
		}
		if max.Cmp(fixedpoint.MaxUint128) >= 0 {
			t.Fatalf("spacing %d: cap not below uint128 max", spacing)
		}
	}
	// Wider spacing means fewer ticks, so a higher per-tick cap.
	if maxLiquidityPerTick(200).Cmp(maxLiquidityPerTick(1)) <= 0 {
		t.Fatal("cap should grow with spacing")
	}
}
