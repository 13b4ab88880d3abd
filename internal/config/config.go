package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TAPE"

// DefaultRPCURLs are the public Polygon endpoints tried in order.
var DefaultRPCURLs = []string{
	"https://polygon.drpc.org",
	"https://polygon-rpc.com",
	"https://1rpc.io/matic",
}

// DefaultContract is the NegRisk CTF exchange on Polygon.
const DefaultContract = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

// DefaultCollateral is USDC.e on Polygon.
const DefaultCollateral = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
	DBPath string
	PGDSN  string
}

// Validate checks that the selected driver has what it needs.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("db path is required for sqlite store")
		}
	case "postgres":
		if strings.TrimSpace(c.PGDSN) == "" {
			return fmt.Errorf("pg-dsn is required for postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want sqlite or postgres)", c.Driver)
	}
	return nil
}

// load builds a viper instance over env, flags and the optional config file.
// setDefaults runs before flags are bound so defaults stay below every other source.
func load(cfgFile string, flags *pflag.FlagSet, setDefaults func(v *viper.Viper)) (*viper.Viper, error) {
	if err := loadDotEnv(cfgFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("store", "sqlite")
	v.SetDefault("db", "./data/tape.db")
	if setDefaults != nil {
		setDefaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// loadDotEnv loads a .env file next to the config file (or in the working
// directory) into the process environment. Existing variables win.
func loadDotEnv(cfgFile string) error {
	envPath := ".env"
	if cfgFile != "" {
		envPath = filepath.Join(filepath.Dir(cfgFile), ".env")
	}
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func storeConfig(v *viper.Viper) StoreConfig {
	return StoreConfig{
		Driver: strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DBPath: v.GetString("db"),
		PGDSN:  v.GetString("pg-dsn"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		// pflag string slices arrive already split; a single env value may still carry commas.
		if len(typed) == 1 {
			return splitAndClean(typed[0])
		}
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
