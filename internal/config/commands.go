package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MarketConfig holds configuration for registering a market.
type MarketConfig struct {
	Store       StoreConfig
	Slug        string
	ConditionID string
	Collateral  string
	QuestionID  string
	Oracle      string
	Status      string
	YesTokenID  string
	NoTokenID   string
	LogLevel    string
}

// LoadMarket merges config file, environment variables, and flags into MarketConfig.
func LoadMarket(cfgFile string, flags *pflag.FlagSet) (MarketConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("collateral", DefaultCollateral)
		v.SetDefault("status", "active")
	})
	if err != nil {
		return MarketConfig{}, err
	}

	cfg := MarketConfig{
		Store:       storeConfig(v),
		Slug:        v.GetString("slug"),
		ConditionID: v.GetString("condition-id"),
		Collateral:  v.GetString("collateral"),
		QuestionID:  v.GetString("question-id"),
		Oracle:      v.GetString("oracle"),
		Status:      v.GetString("status"),
		YesTokenID:  v.GetString("yes-token"),
		NoTokenID:   v.GetString("no-token"),
		LogLevel:    v.GetString("log-level"),
	}
	return cfg, cfg.Store.Validate()
}

// ListConfig holds configuration for read-only store listings.
type ListConfig struct {
	Store    StoreConfig
	LogLevel string
}

// LoadList merges config file, environment variables, and flags into ListConfig.
func LoadList(cfgFile string, flags *pflag.FlagSet) (ListConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return ListConfig{}, err
	}

	cfg := ListConfig{
		Store:    storeConfig(v),
		LogLevel: v.GetString("log-level"),
	}
	return cfg, cfg.Store.Validate()
}

// ResetConfig holds configuration for clearing checkpoints.
type ResetConfig struct {
	Store        StoreConfig
	Pattern      string
	DeleteTrades string
	LogLevel     string
}

// LoadReset merges config file, environment variables, and flags into ResetConfig.
func LoadReset(cfgFile string, flags *pflag.FlagSet) (ResetConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return ResetConfig{}, err
	}

	cfg := ResetConfig{
		Store:        storeConfig(v),
		Pattern:      v.GetString("pattern"),
		DeleteTrades: v.GetString("delete-trades"),
		LogLevel:     v.GetString("log-level"),
	}
	if strings.TrimSpace(cfg.Pattern) == "" && strings.TrimSpace(cfg.DeleteTrades) == "" {
		return ResetConfig{}, fmt.Errorf("nothing to reset: set --pattern or --delete-trades")
	}
	return cfg, cfg.Store.Validate()
}

// AssetsConfig holds configuration for an asset discovery scan.
type AssetsConfig struct {
	RPC       RPCConfig
	Pricing   PricingConfig
	Contract  string
	From      uint64
	To        uint64
	ChunkSize uint64
	Limit     int
	LogLevel  string
}

// LoadAssets merges config file, environment variables, and flags into AssetsConfig.
func LoadAssets(cfgFile string, flags *pflag.FlagSet) (AssetsConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		v.SetDefault("chunk-size", uint64(50))
		v.SetDefault("limit", 10)
	})
	if err != nil {
		return AssetsConfig{}, err
	}

	cfg := AssetsConfig{
		RPC:       rpcConfig(v),
		Pricing:   pricingConfig(v),
		Contract:  v.GetString("contract"),
		From:      v.GetUint64("from"),
		To:        v.GetUint64("to"),
		ChunkSize: v.GetUint64("chunk-size"),
		Limit:     v.GetInt("limit"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.To != 0 && cfg.To < cfg.From {
		return AssetsConfig{}, fmt.Errorf("to block %d is before from block %d", cfg.To, cfg.From)
	}
	if cfg.ChunkSize == 0 {
		return AssetsConfig{}, fmt.Errorf("chunk-size must be > 0")
	}
	return cfg, cfg.RPC.validate()
}

// ServeConfig holds configuration for the read API.
type ServeConfig struct {
	Store    StoreConfig
	Addr     string
	Window   string
	LogLevel string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("addr", ":3001")
		v.SetDefault("window", "1m")
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Store:    storeConfig(v),
		Addr:     v.GetString("addr"),
		Window:   v.GetString("window"),
		LogLevel: v.GetString("log-level"),
	}
	return cfg, cfg.Store.Validate()
}
