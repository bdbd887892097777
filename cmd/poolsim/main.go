package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clpool/internal/chain"
	"clpool/internal/config"
	"clpool/internal/oracle"
	"clpool/internal/pool"
	"clpool/internal/replay"
	"clpool/internal/storage"
	"clpool/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "Concentrated liquidity pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an operation stream against a pool",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("token0", "", "token0 address")
	replayCmd.Flags().String("token1", "", "token1 address")
	replayCmd.Flags().Uint32("fee-pips", 3000, "swap fee in hundredths of a bip")
	replayCmd.Flags().Int("tick-spacing", 60, "tick spacing")
	replayCmd.Flags().String("owner", "", "pool owner address")
	replayCmd.Flags().String("sqrt-price", "", "initial sqrt price Q64.96 (empty: first op must initialize)")
	replayCmd.Flags().String("ops", "./data/ops.jsonl", "input operations JSONL")
	replayCmd.Flags().String("events-out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("results-out", "./data/results.jsonl", "output results JSONL")
	replayCmd.Flags().String("snapshot-out", "./data/snapshot.json", "output snapshot path")
	replayCmd.Flags().String("run-name", "default", "run name for persistence")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("batch-size", 500, "operations per storage flush")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for storage writes")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	replayCmd.Flags().StringSlice("trusted-router", nil, "trusted router addresses (comma-separated)")
	replayCmd.Flags().String("rpc", "", "RPC URL for the on-chain router registry")
	replayCmd.Flags().String("router-registry", "", "router registry contract address")
	replayCmd.Flags().Duration("oracle-cache-ttl", 5*time.Minute, "router trust cache TTL")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return err
	}

	trustOracle, cleanup, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	simPool, err := pool.New(poolCfg, trustOracle, logger)
	if err != nil {
		return fmt.Errorf("build pool: %w", err)
	}
	if cfg.SqrtPrice != "" {
		sqrtPrice, ok := new(big.Int).SetString(cfg.SqrtPrice, 10)
		if !ok {
			return fmt.Errorf("invalid sqrt-price: %s", cfg.SqrtPrice)
		}
		if err := simPool.Initialize(sqrtPrice); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
	}

	sinks := storage.Multi{storage.NewJsonlStorage(cfg.EventsOut, cfg.ResultsOut)}
	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN, cfg.RunName)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		sinks = append(sinks, pgStore)
	}

	runner := replay.NewRunner(replay.RunConfig{
		OpsPath:           cfg.Ops,
		RunName:           cfg.RunName,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, simPool, sinks, logger)

	logger.Info("replay start",
		zap.String("run_name", cfg.RunName),
		zap.String("ops", cfg.Ops),
		zap.String("events_out", cfg.EventsOut),
		zap.String("results_out", cfg.ResultsOut),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Bool("postgres", pgStore != nil),
	)

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	snapshot := simPool.Snapshot()
	if err := storage.WriteSnapshotFile(cfg.SnapshotOut, snapshot); err != nil {
		return err
	}
	if pgStore != nil {
		if err := pgStore.UpsertSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
		if err := pgStore.UpsertRunSummary(ctx, summary); err != nil {
			return fmt.Errorf("store run summary: %w", err)
		}
	}

	logger.Info("replay done",
		zap.Uint64("operations", summary.Operations),
		zap.Uint64("failed", summary.Failed),
		zap.Uint64("swaps", summary.SwapCount),
		zap.String("volume0", summary.Volume0),
		zap.String("volume1", summary.Volume1),
		zap.String("snapshot", cfg.SnapshotOut),
	)
	return nil
}

func buildPoolConfig(cfg config.Config) (pool.Config, error) {
	if !common.IsHexAddress(cfg.Token0) {
		return pool.Config{}, fmt.Errorf("invalid token0: %q", cfg.Token0)
	}
	if !common.IsHexAddress(cfg.Token1) {
		return pool.Config{}, fmt.Errorf("invalid token1: %q", cfg.Token1)
	}
	if cfg.Owner != "" && !common.IsHexAddress(cfg.Owner) {
		return pool.Config{}, fmt.Errorf("invalid owner: %q", cfg.Owner)
	}
	return pool.Config{
		Token0:      common.HexToAddress(cfg.Token0),
		Token1:      common.HexToAddress(cfg.Token1),
		FeePips:     cfg.FeePips,
		TickSpacing: cfg.TickSpacing,
		Owner:       common.HexToAddress(cfg.Owner),
	}, nil
}

// buildOracle picks the registry oracle when an RPC URL and registry address
// are configured, the static allowlist otherwise.
func buildOracle(ctx context.Context, cfg config.Config) (pool.RouterTrustOracle, func(), error) {
	noop := func() {}

	if cfg.RPCURL != "" && cfg.RouterRegistry != "" {
		if !common.IsHexAddress(cfg.RouterRegistry) {
			return nil, noop, fmt.Errorf("invalid router-registry: %q", cfg.RouterRegistry)
		}
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect rpc: %w", err)
		}
		registryOracle, err := oracle.NewRegistryOracle(client, common.HexToAddress(cfg.RouterRegistry), cfg.OracleCacheTTL)
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		return registryOracle, client.Close, nil
	}

	routers, err := oracle.ParseRouters(cfg.TrustedRouters)
	if err != nil {
		return nil, noop, err
	}
	return oracle.NewStaticOracle(routers), noop, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
