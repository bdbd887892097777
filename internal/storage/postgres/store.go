// Package postgres persists replay output, snapshots, and run summaries.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clpool/internal/model"
)

// Store provides Postgres persistence keyed by run name.
type Store struct {
	pool    *pgxpool.Pool
	runName string
}

func NewStore(ctx context.Context, dsn, runName string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if runName == "" {
		return nil, fmt.Errorf("run name is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, runName: runName}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEventBatch inserts or updates journal events for this run.
func (s *Store) PutEventBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		batch.Queue(`
			INSERT INTO pool_events (run_name, seq, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (run_name, seq)
			DO UPDATE SET
				event_type = EXCLUDED.event_type,
				payload = EXCLUDED.payload
		`,
			s.runName,
			int64(event.Seq),
			event.Type,
			payload,
		)
	}
	return s.sendBatch(ctx, batch, len(events))
}

// PutResultBatch inserts or updates per-operation results for this run.
func (s *Store) PutResultBatch(ctx context.Context, results []model.ApplyResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, result := range results {
		batch.Queue(`
			INSERT INTO apply_results (run_name, op_index, kind, ok, error, amount0, amount1, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (run_name, op_index)
			DO UPDATE SET
				kind = EXCLUDED.kind,
				ok = EXCLUDED.ok,
				error = EXCLUDED.error,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1
		`,
			s.runName,
			int64(result.Index),
			result.Kind,
			result.OK,
			result.Error,
			result.Amount0,
			result.Amount1,
		)
	}
	return s.sendBatch(ctx, batch, len(results))
}

// UpsertSnapshot stores the final pool state for this run.
func (s *Store) UpsertSnapshot(ctx context.Context, snapshot model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			run_name, token0, token1, fee_pips, tick_spacing, sqrt_price_x96, tick,
			liquidity, fee_growth_global0_x128, fee_growth_global1_x128,
			balance0, balance1, protocol_fees0, protocol_fees1,
			protocol_fee_denom0, protocol_fee_denom1, referrer_fee_denom0, referrer_fee_denom1,
			initialized_ticks, positions, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,now(),now())
		ON CONFLICT (run_name)
		DO UPDATE SET
			sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
			tick = EXCLUDED.tick,
			liquidity = EXCLUDED.liquidity,
			fee_growth_global0_x128 = EXCLUDED.fee_growth_global0_x128,
			fee_growth_global1_x128 = EXCLUDED.fee_growth_global1_x128,
			balance0 = EXCLUDED.balance0,
			balance1 = EXCLUDED.balance1,
			protocol_fees0 = EXCLUDED.protocol_fees0,
			protocol_fees1 = EXCLUDED.protocol_fees1,
			protocol_fee_denom0 = EXCLUDED.protocol_fee_denom0,
			protocol_fee_denom1 = EXCLUDED.protocol_fee_denom1,
			referrer_fee_denom0 = EXCLUDED.referrer_fee_denom0,
			referrer_fee_denom1 = EXCLUDED.referrer_fee_denom1,
			initialized_ticks = EXCLUDED.initialized_ticks,
			positions = EXCLUDED.positions,
			updated_at = now()
	`,
		s.runName,
		snapshot.Token0,
		snapshot.Token1,
		int64(snapshot.FeePips),
		snapshot.TickSpacing,
		snapshot.SqrtPriceX96,
		snapshot.Tick,
		snapshot.Liquidity,
		snapshot.FeeGrowthGlobal0X128,
		snapshot.FeeGrowthGlobal1X128,
		snapshot.Balance0,
		snapshot.Balance1,
		snapshot.ProtocolFees0,
		snapshot.ProtocolFees1,
		int16(snapshot.ProtocolFeeDenom0),
		int16(snapshot.ProtocolFeeDenom1),
		int16(snapshot.ReferrerFeeDenom0),
		int16(snapshot.ReferrerFeeDenom1),
		snapshot.InitializedTicks,
		snapshot.Positions,
	)
	return err
}

// UpsertRunSummary stores the aggregate outcome of a replay run.
func (s *Store) UpsertRunSummary(ctx context.Context, summary model.RunSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_summaries (
			run_name, operations, failed, swap_count, volume0, volume1, fees0, fees1,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		ON CONFLICT (run_name)
		DO UPDATE SET
			operations = EXCLUDED.operations,
			failed = EXCLUDED.failed,
			swap_count = EXCLUDED.swap_count,
			volume0 = EXCLUDED.volume0,
			volume1 = EXCLUDED.volume1,
			fees0 = EXCLUDED.fees0,
			fees1 = EXCLUDED.fees1,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()
	`,
		summary.RunName,
		int64(summary.Operations),
		int64(summary.Failed),
		int64(summary.SwapCount),
		summary.Volume0,
		summary.Volume1,
		summary.Fees0,
		summary.Fees1,
		summary.StartedAt,
		summary.CompletedAt,
	)
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, size int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < size; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
