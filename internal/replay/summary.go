package replay

import (
	"fmt"
	"math/big"
	"time"

	"clpool/internal/model"
)

// summaryAccumulator aggregates a replay run: operation counts, swap volumes,
// and a gross fee estimate derived from the input-side amounts.
type summaryAccumulator struct {
	runName string
	feePips uint32

	operations uint64
	failed     uint64
	swapCount  uint64
	volume0    *big.Int
	volume1    *big.Int
	fees0      *big.Int
	fees1      *big.Int

	startedAt time.Time
}

func newSummaryAccumulator(runName string, feePips uint32) *summaryAccumulator {
	return &summaryAccumulator{
		runName:   runName,
		feePips:   feePips,
		volume0:   big.NewInt(0),
		volume1:   big.NewInt(0),
		fees0:     big.NewInt(0),
		fees1:     big.NewInt(0),
		startedAt: time.Now().UTC(),
	}
}

func (a *summaryAccumulator) addResult(op model.Operation, result model.ApplyResult) {
	a.operations++
	if !result.OK {
		a.failed++
		return
	}
	if op.Kind != model.OpSwap {
		return
	}

	amount0, err := parseBigInt(result.Amount0)
	if err != nil {
		return
	}
	amount1, err := parseBigInt(result.Amount1)
	if err != nil {
		return
	}

	absAdd(a.volume0, amount0)
	absAdd(a.volume1, amount1)

	// The positive delta is the input side, which is where the fee was taken.
	if amount0.Sign() > 0 {
		a.fees0.Add(a.fees0, feeFromAmount(amount0, a.feePips))
	} else if amount1.Sign() > 0 {
		a.fees1.Add(a.fees1, feeFromAmount(amount1, a.feePips))
	}

	a.swapCount++
}

func (a *summaryAccumulator) finish() model.RunSummary {
	return model.RunSummary{
		RunName:     a.runName,
		Operations:  a.operations,
		Failed:      a.failed,
		SwapCount:   a.swapCount,
		Volume0:     a.volume0.String(),
		Volume1:     a.volume1.String(),
		Fees0:       a.fees0.String(),
		Fees1:       a.fees1.String(),
		StartedAt:   a.startedAt.Format(time.RFC3339Nano),
		CompletedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	abs := new(big.Int).Abs(value)
	target.Add(target, abs)
}

func feeFromAmount(amountIn *big.Int, feePips uint32) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feePips)))
	fee.Div(fee, big.NewInt(1_000_000))
	return fee
}
