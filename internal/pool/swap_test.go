package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"clpool/internal/fixedpoint"
	"clpool/internal/model"
	"clpool/internal/swapmath"
	"clpool/internal/tickmath"
)

var testLiquidity = big.NewInt(1_000_000_000_000_000_000)

// setupSwapPool builds an initialized pool with one in-range position over
// [-600, 600] and both fee tiers enabled (protocol 1/4, referrer 1/10).
func setupSwapPool(t *testing.T, oracle RouterTrustOracle) *Pool {
	t.Helper()
	p := newTestPool(t, oracle)
	if _, _, err := p.Mint(testLP, -600, 600, testLiquidity); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := p.SetProtocolFeeConfig(testOwner, 4, 4); err != nil {
		t.Fatalf("SetProtocolFeeConfig: %v", err)
	}
	if err := p.SetReferrerFeeConfig(testOwner, 10, 10); err != nil {
		t.Fatalf("SetReferrerFeeConfig: %v", err)
	}
	p.DrainEvents()
	return p
}

func TestSwapExactInSingleStep(t *testing.T) {
	p := setupSwapPool(t, trustingOracle(testTrader))
	specified := big.NewInt(1_000_000_000_000_000)

	// The swap stays inside [-600, 600], so it is a single step against the
	// lower boundary's price. Recompute that step independently.
	target, err := tickmath.SqrtRatioAtTick(-600)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}
	step, err := swapmath.ComputeSwapStep(new(big.Int).Set(fixedpoint.Q96), target, testLiquidity, specified, 3000)
	if err != nil {
		t.Fatalf("ComputeSwapStep: %v", err)
	}
	split := splitStepFee(step.FeeAmount, 4, 10, true)

	amount0, amount1, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: specified,
		Referrer:        testReferrer,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}

	if amount0.Cmp(specified) != 0 {
		t.Fatalf("amount0: %s, want full input %s", amount0, specified)
	}
	wantOut := new(big.Int).Neg(step.AmountOut)
	if amount1.Cmp(wantOut) != 0 {
		t.Fatalf("amount1: %s, want %s", amount1, wantOut)
	}
	if p.sqrtPriceX96.Cmp(step.SqrtPriceNextX96) != 0 {
		t.Fatalf("price: %s, want %s", p.sqrtPriceX96, step.SqrtPriceNextX96)
	}
	if p.sqrtPriceX96.Cmp(fixedpoint.Q96) >= 0 {
		t.Fatal("zero-for-one swap should lower the price")
	}

	proto0, proto1 := p.ProtocolBalance()
	if proto0.Cmp(split.protocol) != 0 || proto1.Sign() != 0 {
		t.Fatalf("protocol fees: %s/%s, want %s/0", proto0, proto1, split.protocol)
	}
	ref0, ref1 := p.ReferrerBalance(testReferrer)
	if ref0.Cmp(split.referrer) != 0 || ref1.Sign() != 0 {
		t.Fatalf("referrer fees: %s/%s, want %s/0", ref0, ref1, split.referrer)
	}

	wantGrowth, err := fixedpoint.MulDiv(split.lp, fixedpoint.Q128, testLiquidity)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if p.feeGrowthGlobal0X128.Cmp(wantGrowth) != 0 {
		t.Fatalf("fee growth 0: %s, want %s", p.feeGrowthGlobal0X128, wantGrowth)
	}
	if p.feeGrowthGlobal1X128.Sign() != 0 {
		t.Fatalf("fee growth 1 should stay zero, got %s", p.feeGrowthGlobal1X128)
	}

	events := p.DrainEvents()
	var sawSwap, sawAccrual, sawProtocol bool
	for _, ev := range events {
		switch ev.Type {
		case model.EventSwapExecuted:
			sawSwap = true
		case model.EventReferrerFeeAccrued:
			sawAccrual = true
		case model.EventProtocolFeeAccrued:
			sawProtocol = true
		}
	}
	if !sawSwap || !sawAccrual || !sawProtocol {
		t.Fatalf("events: swap=%v referrer=%v protocol=%v", sawSwap, sawAccrual, sawProtocol)
	}
}

func TestSwapExactOut(t *testing.T) {
	p := setupSwapPool(t, nil)
	specified := big.NewInt(-1_000_000_000_000_000)

	amount0, amount1, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: specified,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if amount1.Cmp(specified) != 0 {
		t.Fatalf("amount1: %s, want exact output %s", amount1, specified)
	}
	if amount0.Sign() <= 0 {
		t.Fatalf("amount0 should be a positive input, got %s", amount0)
	}
	// The input exceeds the raw conversion because it carries the fee.
	if amount0.Cmp(new(big.Int).Neg(specified)) <= 0 {
		t.Fatalf("input %s should exceed output magnitude at price ~1", amount0)
	}
}

func TestSwapOracleFailureFoldsToProtocol(t *testing.T) {
	trusted := setupSwapPool(t, trustingOracle(testTrader))
	failing := setupSwapPool(t, &staticOracle{err: errors.New("rpc timeout")})

	params := SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000_000),
		Referrer:        testReferrer,
	}
	if _, _, err := trusted.Swap(context.Background(), params); err != nil {
		t.Fatalf("trusted swap: %v", err)
	}
	// Oracle failure must not fail the swap, only the referrer attribution.
	if _, _, err := failing.Swap(context.Background(), params); err != nil {
		t.Fatalf("failing-oracle swap: %v", err)
	}

	ref0, _ := failing.ReferrerBalance(testReferrer)
	if ref0.Sign() != 0 {
		t.Fatalf("referrer credited despite oracle failure: %s", ref0)
	}

	trustedProto0, _ := trusted.ProtocolBalance()
	trustedRef0, _ := trusted.ReferrerBalance(testReferrer)
	failingProto0, _ := failing.ProtocolBalance()
	wantProto := new(big.Int).Add(trustedProto0, trustedRef0)
	if failingProto0.Cmp(wantProto) != 0 {
		t.Fatalf("folded protocol fees: %s, want %s", failingProto0, wantProto)
	}
	// The LP cut is computed before attribution, so it is identical.
	if trusted.feeGrowthGlobal0X128.Cmp(failing.feeGrowthGlobal0X128) != 0 {
		t.Fatalf("fee growth diverged: %s vs %s", trusted.feeGrowthGlobal0X128, failing.feeGrowthGlobal0X128)
	}
}

func TestSwapUntrustedSenderGetsNoReferrerFee(t *testing.T) {
	p := setupSwapPool(t, trustingOracle()) // nobody trusted
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000_000),
		Referrer:        testReferrer,
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	ref0, _ := p.ReferrerBalance(testReferrer)
	if ref0.Sign() != 0 {
		t.Fatalf("untrusted sender accrued referrer fees: %s", ref0)
	}
	proto0, _ := p.ProtocolBalance()
	if proto0.Sign() <= 0 {
		t.Fatal("protocol should absorb the referrer share")
	}
}

func TestSwapZeroReferrerAddress(t *testing.T) {
	p := setupSwapPool(t, trustingOracle(testTrader))
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000_000),
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	for _, ev := range p.DrainEvents() {
		if ev.Type == model.EventReferrerFeeAccrued {
			t.Fatal("accrual event without a referrer")
		}
	}
}

func TestSwapCrossesTickAndBack(t *testing.T) {
	p := newTestPool(t, nil)
	wide := new(big.Int).Set(testLiquidity)
	narrow := new(big.Int).Set(testLiquidity)
	if _, _, err := p.Mint(testLP, -1200, 1200, wide); err != nil {
		t.Fatalf("Mint wide: %v", err)
	}
	if _, _, err := p.Mint(testLP, -60, 60, narrow); err != nil {
		t.Fatalf("Mint narrow: %v", err)
	}
	both := new(big.Int).Add(wide, narrow)
	if p.liquidity.Cmp(both) != 0 {
		t.Fatalf("pool liquidity: %s, want %s", p.liquidity, both)
	}

	// Large enough to push the price below tick -60 but not out of the wide
	// range.
	in := big.NewInt(20_000_000_000_000_000)
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: in,
	}); err != nil {
		t.Fatalf("Swap down: %v", err)
	}
	if p.tick >= -60 {
		t.Fatalf("tick after swap: %d, expected below -60", p.tick)
	}
	if p.liquidity.Cmp(wide) != 0 {
		t.Fatalf("liquidity after crossing out of narrow range: %s, want %s", p.liquidity, wide)
	}
	// The crossed boundary's snapshot flipped to the growth at crossing time.
	if p.ticks.get(-60).FeeGrowthOutside0X128.Sign() == 0 {
		t.Fatal("fee growth outside not flipped at crossed tick")
	}

	// Swap back up across the same boundary: the narrow range reactivates.
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      false,
		AmountSpecified: in,
	}); err != nil {
		t.Fatalf("Swap up: %v", err)
	}
	if p.tick < -60 || p.tick >= 60 {
		t.Fatalf("tick after return swap: %d", p.tick)
	}
	if p.liquidity.Cmp(both) != 0 {
		t.Fatalf("liquidity after recrossing: %s, want %s", p.liquidity, both)
	}
}

func TestSwapThroughEmptyRegion(t *testing.T) {
	p := newTestPool(t, nil) // no positions at all
	limit, err := tickmath.SqrtRatioAtTick(-600)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}

	amount0, amount1, err := p.Swap(context.Background(), SwapParams{
		Sender:            testTrader,
		Recipient:         testTrader,
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1_000_000_000_000_000),
		SqrtPriceLimitX96: limit,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	// No liquidity means nothing trades and no fees accrue; the price just
	// moves to the limit.
	if amount0.Sign() != 0 || amount1.Sign() != 0 {
		t.Fatalf("amounts through empty region: %s/%s", amount0, amount1)
	}
	if p.sqrtPriceX96.Cmp(limit) != 0 {
		t.Fatalf("price: %s, want limit %s", p.sqrtPriceX96, limit)
	}
	if p.tick != -600 {
		t.Fatalf("tick: %d, want -600", p.tick)
	}
	if p.feeGrowthGlobal0X128.Sign() != 0 {
		t.Fatalf("fee growth without liquidity: %s", p.feeGrowthGlobal0X128)
	}
}

func TestSwapPriceLimitValidation(t *testing.T) {
	p := setupSwapPool(t, nil)
	cases := []struct {
		name       string
		zeroForOne bool
		limit      *big.Int
	}{
		{"limit at current price down", true, new(big.Int).Set(fixedpoint.Q96)},
		{"limit above current down", true, new(big.Int).Add(fixedpoint.Q96, big.NewInt(1))},
		{"limit at min ratio", true, new(big.Int).Set(tickmath.MinSqrtRatio)},
		{"limit at current price up", false, new(big.Int).Set(fixedpoint.Q96)},
		{"limit below current up", false, new(big.Int).Sub(fixedpoint.Q96, big.NewInt(1))},
		{"limit at max ratio", false, new(big.Int).Set(tickmath.MaxSqrtRatio)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.Swap(context.Background(), SwapParams{
				Sender:            testTrader,
				Recipient:         testTrader,
				ZeroForOne:        tc.zeroForOne,
				AmountSpecified:   big.NewInt(1000),
				SqrtPriceLimitX96: tc.limit,
			})
			if !errors.Is(err, ErrPriceLimitInvalid) {
				t.Fatalf("got %v, want ErrPriceLimitInvalid", err)
			}
		})
	}
}

func TestSwapStopsAtPriceLimit(t *testing.T) {
	p := setupSwapPool(t, nil)
	limit, err := tickmath.SqrtRatioAtTick(-30)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}

	// Far more input than the limit allows; the swap must leave the rest
	// unconsumed.
	specified := big.NewInt(500_000_000_000_000_000)
	amount0, _, err := p.Swap(context.Background(), SwapParams{
		Sender:            testTrader,
		Recipient:         testTrader,
		ZeroForOne:        true,
		AmountSpecified:   specified,
		SqrtPriceLimitX96: limit,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if p.sqrtPriceX96.Cmp(limit) != 0 {
		t.Fatalf("price: %s, want limit %s", p.sqrtPriceX96, limit)
	}
	if amount0.Cmp(specified) >= 0 {
		t.Fatalf("consumed %s, expected partial fill below %s", amount0, specified)
	}
	if amount0.Sign() <= 0 {
		t.Fatal("expected some input consumed before the limit")
	}
}

func TestSwapZeroAmount(t *testing.T) {
	p := setupSwapPool(t, nil)
	if _, _, err := p.Swap(context.Background(), SwapParams{Sender: testTrader, ZeroForOne: true}); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
	if _, _, err := p.Swap(context.Background(), SwapParams{Sender: testTrader, ZeroForOne: true, AmountSpecified: big.NewInt(0)}); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
}

func TestSwapCallbackAbortLeavesStateUntouched(t *testing.T) {
	p := setupSwapPool(t, nil)
	before := p.Snapshot()

	abort := errors.New("payment withheld")
	_, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000_000),
		Callback: func(amount0, amount1 *big.Int, _ []byte) error {
			// Reentering the pool while the swap holds the gate must fail.
			if _, _, err := p.Mint(testLP, -600, 600, big.NewInt(1)); !errors.Is(err, ErrReentrant) {
				t.Errorf("reentrant Mint: got %v, want ErrReentrant", err)
			}
			return abort
		},
	})
	if !errors.Is(err, abort) {
		t.Fatalf("got %v, want callback error", err)
	}

	if after := p.Snapshot(); after != before {
		t.Fatalf("state changed by aborted swap:\nbefore %+v\nafter  %+v", before, after)
	}
	if events := p.DrainEvents(); len(events) != 0 {
		t.Fatalf("aborted swap emitted %d events", len(events))
	}
}

func TestSwapCallbackDataPassthrough(t *testing.T) {
	p := setupSwapPool(t, nil)
	payload := []byte("order-7")
	var got []byte
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000),
		Data:            payload,
		Callback: func(_, _ *big.Int, data []byte) error {
			got = data
			return nil
		},
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("callback data: %q", got)
	}
}

func TestCollectReferrerFeesIdempotent(t *testing.T) {
	p := setupSwapPool(t, trustingOracle(testTrader))
	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1_000_000_000_000_000),
		Referrer:        testReferrer,
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	balanceBefore := new(big.Int).Set(p.balance0)
	got0, got1, err := p.CollectReferrerFees(testReferrer)
	if err != nil {
		t.Fatalf("CollectReferrerFees: %v", err)
	}
	if got0.Sign() <= 0 || got1.Sign() != 0 {
		t.Fatalf("collected %s/%s", got0, got1)
	}
	if want := new(big.Int).Sub(balanceBefore, got0); p.balance0.Cmp(want) != 0 {
		t.Fatalf("pool balance0: %s, want %s", p.balance0, want)
	}

	got0, got1, err = p.CollectReferrerFees(testReferrer)
	if err != nil {
		t.Fatalf("second CollectReferrerFees: %v", err)
	}
	if got0.Sign() != 0 || got1.Sign() != 0 {
		t.Fatalf("second collect paid %s/%s", got0, got1)
	}
}

func TestIndependentReferrerAccounts(t *testing.T) {
	otherReferrer := testLP
	p := setupSwapPool(t, trustingOracle(testTrader))

	for _, referrer := range []common.Address{testReferrer, otherReferrer} {
		if _, _, err := p.Swap(context.Background(), SwapParams{
			Sender:          testTrader,
			Recipient:       testTrader,
			ZeroForOne:      true,
			AmountSpecified: big.NewInt(1_000_000_000_000_000),
			Referrer:        referrer,
		}); err != nil {
			t.Fatalf("Swap for %s: %v", referrer.Hex(), err)
		}
	}

	first0, _ := p.ReferrerBalance(testReferrer)
	second0, _ := p.ReferrerBalance(otherReferrer)
	if first0.Sign() <= 0 || second0.Sign() <= 0 {
		t.Fatalf("balances: %s / %s", first0, second0)
	}

	// Collecting one account leaves the other whole.
	if _, _, err := p.CollectReferrerFees(testReferrer); err != nil {
		t.Fatalf("CollectReferrerFees: %v", err)
	}
	if got0, _ := p.ReferrerBalance(testReferrer); got0.Sign() != 0 {
		t.Fatalf("collected account not zeroed: %s", got0)
	}
	if got0, _ := p.ReferrerBalance(otherReferrer); got0.Cmp(second0) != 0 {
		t.Fatalf("other account disturbed: %s, want %s", got0, second0)
	}
}

func TestSwapFeesReachPosition(t *testing.T) {
	p := setupSwapPool(t, nil)
	specified := big.NewInt(1_000_000_000_000_000)

	target, err := tickmath.SqrtRatioAtTick(-600)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}
	step, err := swapmath.ComputeSwapStep(new(big.Int).Set(fixedpoint.Q96), target, testLiquidity, specified, 3000)
	if err != nil {
		t.Fatalf("ComputeSwapStep: %v", err)
	}
	split := splitStepFee(step.FeeAmount, 4, 10, false)

	if _, _, err := p.Swap(context.Background(), SwapParams{
		Sender:          testTrader,
		Recipient:       testTrader,
		ZeroForOne:      true,
		AmountSpecified: specified,
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	principal0, _, err := p.Burn(testLP, -600, 600, testLiquidity)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	pos := p.Position(testLP, -600, 600)
	feePart := new(big.Int).Sub(pos.TokensOwed0, principal0)
	// Per-liquidity accounting truncates, so the position may come up a hair
	// short of the raw LP cut but never over.
	if feePart.Cmp(split.lp) > 0 {
		t.Fatalf("position fee %s exceeds LP cut %s", feePart, split.lp)
	}
	if diff := new(big.Int).Sub(split.lp, feePart); diff.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("position fee %s too far below LP cut %s", feePart, split.lp)
	}
}
