package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeTape/internal/config"
	"tradeTape/internal/ctf"
	"tradeTape/internal/exchange"
	"tradeTape/internal/indexer"
	"tradeTape/internal/model"
)

func newMarketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Manage market reference rows",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a market, deriving token ids from its condition id",
		RunE:  runMarketAdd,
	}
	addStoreFlags(addCmd)
	addCmd.Flags().String("slug", "", "market slug")
	addCmd.Flags().String("condition-id", "", "0x-prefixed condition id")
	addCmd.Flags().String("collateral", config.DefaultCollateral, "collateral token address")
	addCmd.Flags().String("question-id", "", "question id")
	addCmd.Flags().String("oracle", "", "oracle address")
	addCmd.Flags().String("status", "active", "market status")
	addCmd.Flags().String("yes-token", "", "explicit YES token id (decimal or 0x hex)")
	addCmd.Flags().String("no-token", "", "explicit NO token id (decimal or 0x hex)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List markets and sync checkpoints",
		RunE:  runMarketList,
	}
	addStoreFlags(listCmd)

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func runMarketAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadMarket(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	market, err := buildMarket(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	stored, err := store.UpsertMarket(ctx, market)
	if err != nil {
		return err
	}
	logger.Info("market saved",
		zap.Int64("id", stored.ID),
		zap.String("slug", stored.Slug),
		zap.String("yes_token_id", stored.YesTokenID),
		zap.String("no_token_id", stored.NoTokenID),
	)
	return printJSON(cmd.OutOrStdout(), stored)
}

// buildMarket derives missing token ids from the condition id and collateral.
func buildMarket(cfg config.MarketConfig) (model.Market, error) {
	if strings.TrimSpace(cfg.Slug) == "" {
		return model.Market{}, fmt.Errorf("slug is required")
	}
	condition, err := ctf.ParseConditionID(cfg.ConditionID)
	if err != nil {
		return model.Market{}, err
	}

	market := model.Market{
		Slug:        strings.TrimSpace(cfg.Slug),
		ConditionID: strings.ToLower(condition.Hex()),
		QuestionID:  cfg.QuestionID,
		Oracle:      cfg.Oracle,
		Status:      cfg.Status,
	}

	if cfg.YesTokenID != "" || cfg.NoTokenID != "" {
		if cfg.YesTokenID == "" || cfg.NoTokenID == "" {
			return model.Market{}, fmt.Errorf("yes-token and no-token must be set together")
		}
		if market.YesTokenID, err = decimalTokenID(cfg.YesTokenID); err != nil {
			return model.Market{}, err
		}
		if market.NoTokenID, err = decimalTokenID(cfg.NoTokenID); err != nil {
			return model.Market{}, err
		}
		return market, nil
	}

	collateral, err := indexer.ParseAddress(cfg.Collateral)
	if err != nil {
		return model.Market{}, fmt.Errorf("collateral: %w", err)
	}
	tokens := ctf.BinaryTokens(collateral, condition)
	market.YesTokenID = tokens.Yes.String()
	market.NoTokenID = tokens.No.String()
	return market, nil
}

func decimalTokenID(s string) (string, error) {
	normalized, err := exchange.NormalizeTokenID(s)
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(common.FromHex(normalized)).String(), nil
}

func runMarketList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadList(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	markets, err := store.ListMarkets(ctx)
	if err != nil {
		return err
	}
	checkpoints, err := store.ListCheckpoints(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Markets     []model.Market     `json:"markets"`
		Checkpoints []model.Checkpoint `json:"checkpoints"`
	}{markets, checkpoints})
}
