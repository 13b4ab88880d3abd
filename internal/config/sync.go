package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RPCConfig holds endpoint and call policy settings shared by chain commands.
type RPCConfig struct {
	URLs        []string
	CallTimeout time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	RateLimit   float64
	RateBurst   int
}

// PricingConfig holds trade classification settings.
type PricingConfig struct {
	SideConvention     string
	CollateralDecimals uint8
	TokenDecimals      uint8
	MinPrice           float64
	MaxPrice           float64
}

// SyncConfig holds configuration for a sync run.
type SyncConfig struct {
	RPC     RPCConfig
	Pricing PricingConfig
	Store   StoreConfig

	Contract         string
	Market           string
	StartBlock       uint64
	EndBlock         uint64
	ChunkSize        uint64
	ChunkDelay       time.Duration
	TimestampBatch   int
	TargetTrades     int
	SyncKey          string
	FromStart        bool
	MarketAssetsOnly bool

	DecodeErrors string
	MetricsAddr  string
	LogLevel     string
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		v.SetDefault("chunk-size", uint64(50))
		v.SetDefault("chunk-delay", time.Second)
		v.SetDefault("timestamp-batch", 10)
		v.SetDefault("target", 0)
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		RPC:              rpcConfig(v),
		Pricing:          pricingConfig(v),
		Store:            storeConfig(v),
		Contract:         v.GetString("contract"),
		Market:           v.GetString("market"),
		StartBlock:       v.GetUint64("start"),
		EndBlock:         v.GetUint64("end"),
		ChunkSize:        v.GetUint64("chunk-size"),
		ChunkDelay:       v.GetDuration("chunk-delay"),
		TimestampBatch:   v.GetInt("timestamp-batch"),
		TargetTrades:     v.GetInt("target"),
		SyncKey:          v.GetString("sync-key"),
		FromStart:        v.GetBool("from-start"),
		MarketAssetsOnly: v.GetBool("market-assets-only"),
		DecodeErrors:     v.GetString("decode-errors"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations a sync run cannot start with.
func (c SyncConfig) Validate() error {
	if strings.TrimSpace(c.Market) == "" {
		return fmt.Errorf("market slug is required")
	}
	if c.ChunkSize == 0 {
		return fmt.Errorf("chunk-size must be > 0")
	}
	if c.EndBlock != 0 && c.EndBlock < c.StartBlock {
		return fmt.Errorf("end block %d is before start block %d", c.EndBlock, c.StartBlock)
	}
	if c.TargetTrades < 0 {
		return fmt.Errorf("target must be >= 0")
	}
	if err := c.RPC.validate(); err != nil {
		return err
	}
	return c.Store.Validate()
}

func (c RPCConfig) validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("at least one rpc url is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be >= 1")
	}
	return nil
}

func setChainDefaults(v *viper.Viper) {
	v.SetDefault("rpc", DefaultRPCURLs)
	v.SetDefault("contract", DefaultContract)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("max-attempts", 3)
	v.SetDefault("retry-delay", 10*time.Second)
	v.SetDefault("rate-limit", 5.0)
	v.SetDefault("rate-burst", 1)
	v.SetDefault("side-convention", "maker")
	v.SetDefault("collateral-decimals", 6)
	v.SetDefault("token-decimals", 6)
	v.SetDefault("min-price", 0.001)
	v.SetDefault("max-price", 1.5)
}

func rpcConfig(v *viper.Viper) RPCConfig {
	return RPCConfig{
		URLs:        getStringSlice(v, "rpc"),
		CallTimeout: v.GetDuration("call-timeout"),
		MaxAttempts: v.GetInt("max-attempts"),
		RetryDelay:  v.GetDuration("retry-delay"),
		RateLimit:   v.GetFloat64("rate-limit"),
		RateBurst:   v.GetInt("rate-burst"),
	}
}

func pricingConfig(v *viper.Viper) PricingConfig {
	return PricingConfig{
		SideConvention:     v.GetString("side-convention"),
		CollateralDecimals: uint8(v.GetUint("collateral-decimals")),
		TokenDecimals:      uint8(v.GetUint("token-decimals")),
		MinPrice:           v.GetFloat64("min-price"),
		MaxPrice:           v.GetFloat64("max-price"),
	}
}
