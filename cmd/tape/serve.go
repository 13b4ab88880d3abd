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

	"tradeTape/internal/aggregate"
	"tradeTape/internal/api"
	"tradeTape/internal/config"
	"tradeTape/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve markets, trades and tape bars over HTTP",
		RunE:  runServe,
	}

	addStoreFlags(cmd)
	cmd.Flags().String("addr", ":3001", "listen address")
	cmd.Flags().String("window", "1m", "default bar window for /api/tape")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServe(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if _, err := aggregate.ParseWindow(cfg.Window); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.Init()
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(store, cfg.Window, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}
