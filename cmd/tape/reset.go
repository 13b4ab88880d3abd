package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeTape/internal/config"
	"tradeTape/internal/storage"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete sync checkpoints and optionally a market's trades",
		RunE:  runReset,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("pattern", "", "delete checkpoints whose key contains this text")
	cmd.Flags().String("delete-trades", "", "market slug whose trades are deleted")

	return cmd
}

type resetResult struct {
	Checkpoints int64 `json:"checkpoints_deleted"`
	Trades      int64 `json:"trades_deleted"`
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadReset(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := reset(ctx, store, cfg.Pattern, cfg.DeleteTrades)
	if err != nil {
		return err
	}
	logger.Info("reset done",
		zap.String("pattern", cfg.Pattern),
		zap.String("market", cfg.DeleteTrades),
		zap.Int64("checkpoints_deleted", result.Checkpoints),
		zap.Int64("trades_deleted", result.Trades),
	)
	return printJSON(cmd.OutOrStdout(), result)
}

func reset(ctx context.Context, store storage.Store, pattern, slug string) (resetResult, error) {
	var result resetResult
	if pattern != "" {
		n, err := store.ResetCheckpoints(ctx, pattern)
		if err != nil {
			return result, fmt.Errorf("reset checkpoints: %w", err)
		}
		result.Checkpoints = n
	}
	if slug != "" {
		market, err := store.GetMarket(ctx, slug)
		if err != nil {
			return result, fmt.Errorf("resolve market: %w", err)
		}
		n, err := store.DeleteTrades(ctx, market.ID)
		if err != nil {
			return result, fmt.Errorf("delete trades: %w", err)
		}
		result.Trades = n
	}
	return result, nil
}
