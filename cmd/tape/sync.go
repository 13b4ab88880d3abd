package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeTape/internal/config"
	"tradeTape/internal/indexer"
	"tradeTape/internal/metrics"
	"tradeTape/internal/storage"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest fills of one market into the trade tape",
		RunE:  runSync,
	}

	addChainFlags(cmd)
	addStoreFlags(cmd)
	cmd.Flags().String("market", "", "market slug")
	cmd.Flags().Uint64("start", 0, "first block to scan when no checkpoint is ahead of it")
	cmd.Flags().Uint64("end", 0, "last block to scan, 0 means chain head")
	cmd.Flags().Duration("chunk-delay", time.Second, "pause between windows")
	cmd.Flags().Int("timestamp-batch", 10, "concurrent block timestamp lookups")
	cmd.Flags().Int("target", 0, "stop once this many trades were inserted, 0 disables")
	cmd.Flags().String("sync-key", "", "checkpoint key (default <slug>_<contract>)")
	cmd.Flags().Bool("from-start", false, "ignore the checkpoint and scan from --start")
	cmd.Flags().Bool("market-assets-only", false, "skip fills of assets other than the market's tokens")
	cmd.Flags().String("decode-errors", "", "append skipped logs to this JSONL file")
	cmd.Flags().String("metrics-addr", "", "serve /metrics on this address during the run")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSync(configFile(cmd), cmd.Flags())
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

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.Init()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	chainClient, err := dialChain(ctx, cfg.RPC, m, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	runner, err := indexer.NewRunner(indexer.RunConfig{
		ContractAddress:  contract,
		MarketSlug:       cfg.Market,
		StartBlock:       cfg.StartBlock,
		EndBlock:         cfg.EndBlock,
		ChunkSize:        cfg.ChunkSize,
		ChunkDelay:       cfg.ChunkDelay,
		TimestampBatch:   cfg.TimestampBatch,
		TargetTradeCount: cfg.TargetTrades,
		SyncKey:          cfg.SyncKey,
		FromStart:        cfg.FromStart,
		MarketAssetsOnly: cfg.MarketAssetsOnly,
	}, chainClient, store, normalizer, logger)
	if err != nil {
		return err
	}
	runner.WithMetrics(m)
	if cfg.DecodeErrors != "" {
		runner.WithDecodeErrorSink(storage.NewJsonlStorage(cfg.DecodeErrors))
	}

	logger.Info("sync start",
		zap.String("endpoint", chainClient.Endpoint()),
		zap.String("contract", contract.Hex()),
		zap.String("market", cfg.Market),
		zap.Uint64("start", cfg.StartBlock),
		zap.Uint64("end", cfg.EndBlock),
		zap.Uint64("chunk_size", cfg.ChunkSize),
		zap.String("store", cfg.Store.Driver),
	)

	summary, runErr := runner.Run(ctx)
	logger.Info("rpc usage", zap.Uint64("calls", chainClient.Calls()))
	if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	return runErr
}
