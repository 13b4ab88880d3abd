package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradeTape/internal/chain"
	"tradeTape/internal/config"
	"tradeTape/internal/exchange"
	"tradeTape/internal/metrics"
	"tradeTape/internal/storage"
	"tradeTape/internal/storage/postgres"
	"tradeTape/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "tape",
		Short:        "Prediction-market trade tape ingester",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newMarketCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newAssetsCmd())
	root.AddCommand(newSignaturesCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "sqlite", "store backend (sqlite, postgres)")
	cmd.Flags().String("db", "./data/tape.db", "SQLite database path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("rpc", config.DefaultRPCURLs, "RPC URLs tried in order (comma-separated)")
	cmd.Flags().String("contract", config.DefaultContract, "exchange contract address")
	cmd.Flags().Uint64("chunk-size", 50, "blocks per getLogs window")
	cmd.Flags().Duration("call-timeout", 30*time.Second, "per-call RPC timeout")
	cmd.Flags().Int("max-attempts", 3, "attempts per RPC call")
	cmd.Flags().Duration("retry-delay", 10*time.Second, "delay between attempts on transient errors")
	cmd.Flags().Float64("rate-limit", 5, "RPC calls per second, 0 disables")
	cmd.Flags().Int("rate-burst", 1, "RPC rate limiter burst")
	cmd.Flags().String("side-convention", "maker", "side perspective (maker, taker)")
	cmd.Flags().Uint("collateral-decimals", 6, "collateral token decimals")
	cmd.Flags().Uint("token-decimals", 6, "outcome token decimals")
	cmd.Flags().Float64("min-price", 0.001, "exclusive lower price bound")
	cmd.Flags().Float64("max-price", 1.5, "exclusive upper price bound")
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Driver)
	}
}

func dialChain(ctx context.Context, cfg config.RPCConfig, m *metrics.Metrics, logger *zap.Logger) (*chain.Client, error) {
	opts := chain.Options{
		CallTimeout: cfg.CallTimeout,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		Metrics:     m,
	}
	return chain.Dial(ctx, cfg.URLs, opts, logger)
}

func newNormalizer(cfg config.PricingConfig) (*exchange.Normalizer, error) {
	convention, err := exchange.ParseSideConvention(cfg.SideConvention)
	if err != nil {
		return nil, err
	}
	return exchange.NewNormalizer(exchange.NormalizerConfig{
		CollateralDecimals: cfg.CollateralDecimals,
		TokenDecimals:      cfg.TokenDecimals,
		MinPrice:           cfg.MinPrice,
		MaxPrice:           cfg.MaxPrice,
		Convention:         convention,
	})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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
