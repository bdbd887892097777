// Package config loads simulator configuration from flags, environment
// variables (POOLSIM_ prefix), and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	// Pool deployment parameters.
	Token0      string
	Token1      string
	FeePips     uint32
	TickSpacing int
	Owner       string
	SqrtPrice   string

	// Replay input and outputs.
	Ops         string
	EventsOut   string
	ResultsOut  string
	SnapshotOut string
	RunName     string

	// Resume and batching.
	Checkpoint        string
	CheckpointEnabled bool
	BatchSize         int
	MaxRetries        int
	RetryBackoff      time.Duration

	// Persistence.
	PGDSN string

	// Router trust oracle. TrustedRouters drives the static oracle; setting
	// RPCURL and RouterRegistry switches to the on-chain registry.
	TrustedRouters []string
	RPCURL         string
	RouterRegistry string
	OracleCacheTTL time.Duration

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("fee-pips", uint32(3000))
	v.SetDefault("tick-spacing", 60)
	v.SetDefault("ops", "./data/ops.jsonl")
	v.SetDefault("events-out", "./data/events.jsonl")
	v.SetDefault("results-out", "./data/results.jsonl")
	v.SetDefault("snapshot-out", "./data/snapshot.json")
	v.SetDefault("run-name", "default")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("batch-size", 500)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("oracle-cache-ttl", 5*time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Token0:            v.GetString("token0"),
		Token1:            v.GetString("token1"),
		FeePips:           v.GetUint32("fee-pips"),
		TickSpacing:       v.GetInt("tick-spacing"),
		Owner:             v.GetString("owner"),
		SqrtPrice:         v.GetString("sqrt-price"),
		Ops:               v.GetString("ops"),
		EventsOut:         v.GetString("events-out"),
		ResultsOut:        v.GetString("results-out"),
		SnapshotOut:       v.GetString("snapshot-out"),
		RunName:           v.GetString("run-name"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchSize:         v.GetInt("batch-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		PGDSN:             v.GetString("pg-dsn"),
		TrustedRouters:    getStringSlice(v, "trusted-router"),
		RPCURL:            v.GetString("rpc"),
		RouterRegistry:    v.GetString("router-registry"),
		OracleCacheTTL:    v.GetDuration("oracle-cache-ttl"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
