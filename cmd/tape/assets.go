package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeTape/internal/config"
	"tradeTape/internal/indexer"
)

func newAssetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Rank outcome tokens traded on the exchange in a block range",
		RunE:  runAssets,
	}

	addChainFlags(cmd)
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive)")
	cmd.Flags().Int("limit", 10, "number of assets to report, 0 means all")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runAssets(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAssets(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	contract, err := indexer.ParseAddress(cfg.Contract)
	if err != nil {
		return err
	}
	normalizer, err := newNormalizer(cfg.Pricing)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := dialChain(ctx, cfg.RPC, nil, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	to := cfg.To
	if to == 0 {
		if to, err = chainClient.LatestBlock(ctx); err != nil {
			return err
		}
	}

	logger.Info("asset scan start",
		zap.String("endpoint", chainClient.Endpoint()),
		zap.String("contract", contract.Hex()),
		zap.Uint64("from", cfg.From),
		zap.Uint64("to", to),
	)

	report, err := indexer.ScanAssets(ctx, chainClient, contract, cfg.From, to, cfg.ChunkSize, normalizer, cfg.Limit, logger)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
