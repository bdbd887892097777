// Package replay drives a pool from a JSONL operation stream and journals the
// resulting events, per-operation outcomes, and a run summary.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"clpool/internal/model"
	"clpool/internal/pool"
	"clpool/internal/storage"
)

// scanBufferSize bounds a single ops line.
const scanBufferSize = 1 << 20

// RunConfig holds runtime settings for a replay run.
type RunConfig struct {
	OpsPath           string
	RunName           string
	BatchSize         int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner applies operations to a pool and writes the output stream to storage.
type Runner struct {
	cfg        RunConfig
	pool       *pool.Pool
	storage    storage.Storage
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, p *pool.Pool, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		pool:       p,
		storage:    storageSink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the replay loop and returns the run summary.
func (r *Runner) Run(ctx context.Context) (model.RunSummary, error) {
	if r.pool == nil {
		return model.RunSummary{}, fmt.Errorf("pool is nil")
	}
	if r.storage == nil {
		return model.RunSummary{}, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return model.RunSummary{}, fmt.Errorf("batch size must be greater than zero")
	}

	file, err := os.Open(r.cfg.OpsPath)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("open ops file: %w", err)
	}
	defer file.Close()

	var resumeAfter, seq uint64
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return model.RunSummary{}, err
		}
		if ok {
			resumeAfter = cp.LastAppliedIndex
			seq = cp.LastEventSeq
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_applied", cp.LastAppliedIndex),
				zap.Uint64("last_event_seq", cp.LastEventSeq),
			)
		}
	}

	summary := newSummaryAccumulator(r.cfg.RunName, r.pool.Snapshot().FeePips)

	var (
		pendingEvents  []model.Event
		pendingResults []model.ApplyResult
		index          uint64
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return model.RunSummary{}, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		index++

		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return model.RunSummary{}, fmt.Errorf("parse op %d: %w", index, err)
		}

		// Operations at or before the checkpoint were already journaled, but
		// the pool starts empty every run: reapply them to rebuild its state,
		// discarding their events and results. Replay is deterministic, so
		// this reproduces exactly the state the checkpointed run left behind.
		if index <= resumeAfter {
			result := r.apply(ctx, op, index)
			summary.addResult(op, result)
			r.pool.DrainEvents()
			continue
		}

		result := r.apply(ctx, op, index)
		if !result.OK {
			r.logger.Warn("operation failed",
				zap.Uint64("index", index),
				zap.String("kind", op.Kind),
				zap.String("error", result.Error),
			)
		}
		summary.addResult(op, result)
		pendingResults = append(pendingResults, result)

		for _, event := range r.pool.DrainEvents() {
			seq++
			event.Seq = seq
			pendingEvents = append(pendingEvents, event)
		}

		if len(pendingResults) >= r.cfg.BatchSize {
			if err := r.flush(ctx, pendingEvents, pendingResults); err != nil {
				return model.RunSummary{}, err
			}
			pendingEvents = nil
			pendingResults = nil
			if r.checkpoint != nil {
				if err := r.checkpoint.Save(index, seq); err != nil {
					return model.RunSummary{}, err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return model.RunSummary{}, fmt.Errorf("read ops: %w", err)
	}

	if err := r.flush(ctx, pendingEvents, pendingResults); err != nil {
		return model.RunSummary{}, err
	}
	if r.checkpoint != nil && index > resumeAfter {
		if err := r.checkpoint.Save(index, seq); err != nil {
			return model.RunSummary{}, err
		}
	}

	done := summary.finish()
	r.logger.Info("replay complete",
		zap.Uint64("operations", done.Operations),
		zap.Uint64("failed", done.Failed),
		zap.Uint64("swaps", done.SwapCount),
	)
	return done, nil
}

func (r *Runner) flush(ctx context.Context, events []model.Event, results []model.ApplyResult) error {
	if len(events) == 0 && len(results) == 0 {
		return nil
	}
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		if err := r.storage.PutEventBatch(ctx, events); err != nil {
			r.logger.Warn("store events failed", zap.Error(err), zap.Int("events", len(events)))
			return err
		}
		if err := r.storage.PutResultBatch(ctx, results); err != nil {
			r.logger.Warn("store results failed", zap.Error(err), zap.Int("results", len(results)))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	return nil
}

// apply runs one operation against the pool. Operation failures are recorded
// in the result, not returned; the pool guarantees a failed operation left no
// partial state behind.
func (r *Runner) apply(ctx context.Context, op model.Operation, index uint64) model.ApplyResult {
	result := model.ApplyResult{Index: index, Kind: op.Kind, OK: true}

	fail := func(err error) model.ApplyResult {
		result.OK = false
		result.Error = err.Error()
		return result
	}
	setAmounts := func(amount0, amount1 *big.Int) {
		result.Amount0 = amount0.String()
		result.Amount1 = amount1.String()
	}

	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fail(err)
	}
	recipient := caller
	if op.Recipient != "" {
		if recipient, err = parseAddress(op.Recipient); err != nil {
			return fail(err)
		}
	}

	switch op.Kind {
	case model.OpInitialize:
		sqrtPrice, err := parseRequiredBigInt(op.SqrtPriceX96, "sqrt_price_x96")
		if err != nil {
			return fail(err)
		}
		if err := r.pool.Initialize(sqrtPrice); err != nil {
			return fail(err)
		}

	case model.OpSwap:
		amountSpecified, err := parseRequiredBigInt(op.AmountSpecified, "amount_specified")
		if err != nil {
			return fail(err)
		}
		limit, err := parseOptionalBigInt(op.SqrtPriceLimitX96)
		if err != nil {
			return fail(err)
		}
		var referrer common.Address
		if op.Referrer != "" {
			if referrer, err = parseAddress(op.Referrer); err != nil {
				return fail(err)
			}
		}
		amount0, amount1, err := r.pool.Swap(ctx, pool.SwapParams{
			Sender:            caller,
			Recipient:         recipient,
			ZeroForOne:        op.ZeroForOne,
			AmountSpecified:   amountSpecified,
			SqrtPriceLimitX96: limit,
			Referrer:          referrer,
		})
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpMint:
		amount, err := parseRequiredBigInt(op.Amount, "amount")
		if err != nil {
			return fail(err)
		}
		amount0, amount1, err := r.pool.Mint(caller, op.TickLower, op.TickUpper, amount)
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpBurn:
		amount, err := parseRequiredBigInt(op.Amount, "amount")
		if err != nil {
			return fail(err)
		}
		amount0, amount1, err := r.pool.Burn(caller, op.TickLower, op.TickUpper, amount)
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpCollect:
		requested0, err := parseOptionalBigInt(op.Amount0Requested)
		if err != nil {
			return fail(err)
		}
		requested1, err := parseOptionalBigInt(op.Amount1Requested)
		if err != nil {
			return fail(err)
		}
		amount0, amount1, err := r.pool.Collect(caller, recipient, op.TickLower, op.TickUpper, requested0, requested1)
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpCollectReferrer:
		amount0, amount1, err := r.pool.CollectReferrerFees(caller)
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpCollectProtocol:
		amount0, amount1, err := r.pool.CollectProtocolFees(caller, recipient)
		if err != nil {
			return fail(err)
		}
		setAmounts(amount0, amount1)

	case model.OpSetReferrerFee:
		if err := r.pool.SetReferrerFeeConfig(caller, op.FeeDenom0, op.FeeDenom1); err != nil {
			return fail(err)
		}

	case model.OpSetProtocolFee:
		if err := r.pool.SetProtocolFeeConfig(caller, op.FeeDenom0, op.FeeDenom1); err != nil {
			return fail(err)
		}

	default:
		return fail(fmt.Errorf("unknown operation kind: %s", op.Kind))
	}

	return result
}

func parseAddress(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

func parseRequiredBigInt(value, field string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %s", field, value)
	}
	return parsed, nil
}

func parseOptionalBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
