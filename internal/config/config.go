// Package config loads the routingd configuration from defaults, an
// optional TOML file, and ROUTINGD_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/lumapay/routingd/internal/token"
)

// Config is the complete routingd configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	Prefetch PrefetchConfig `toml:"prefetch" mapstructure:"prefetch"`
	Scoring  ScoringConfig  `toml:"scoring" mapstructure:"scoring"`
	Deposit  DepositConfig  `toml:"deposit" mapstructure:"deposit"`
	Provider ProviderConfig `toml:"provider" mapstructure:"provider"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	// Backend is one of "redis", "pebble", "memory".
	Backend string       `toml:"backend" mapstructure:"backend"`
	Redis   RedisConfig  `toml:"redis" mapstructure:"redis"`
	Pebble  PebbleConfig `toml:"pebble" mapstructure:"pebble"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Password string `toml:"password" mapstructure:"password"`
	DB       int    `toml:"db" mapstructure:"db"`
}

type PebbleConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

type PrefetchConfig struct {
	FastPeriod time.Duration `toml:"fast_period" mapstructure:"fast_period"`
	SlowPeriod time.Duration `toml:"slow_period" mapstructure:"slow_period"`
}

// ScoringConfig holds the settlement-risk tables. These are deployment
// configuration: corridors and their volatility live here, not in code.
type ScoringConfig struct {
	DailyVolatility         map[string]float64 `toml:"daily_volatility" mapstructure:"daily_volatility"`
	DefaultDailyVolatility  float64            `toml:"default_daily_volatility" mapstructure:"default_daily_volatility"`
	VenueCounterpartyRisk   map[string]float64 `toml:"venue_counterparty_risk" mapstructure:"venue_counterparty_risk"`
	DefaultCounterpartyRisk float64            `toml:"default_counterparty_risk" mapstructure:"default_counterparty_risk"`
	RiskFactor              float64            `toml:"risk_factor" mapstructure:"risk_factor"`
}

// DepositConfig carries the receiving accounts per payment method and
// the PIX identity stamped onto QR codes.
type DepositConfig struct {
	Accounts map[string]map[string]string `toml:"accounts" mapstructure:"accounts"`
	PIX      PIXConfig                    `toml:"pix" mapstructure:"pix"`
}

type PIXConfig struct {
	Key          string `toml:"key" mapstructure:"key"`
	MerchantName string `toml:"merchant_name" mapstructure:"merchant_name"`
	MerchantCity string `toml:"merchant_city" mapstructure:"merchant_city"`
}

// ProviderConfig lists the configured quote providers.
type ProviderConfig struct {
	// StaticMock enables the built-in static OTC/DEX quote set.
	StaticMock bool                `toml:"static_mock" mapstructure:"static_mock"`
	FX         []FXProviderConfig  `toml:"fx" mapstructure:"fx"`
	DEX        []DEXProviderConfig `toml:"dex" mapstructure:"dex"`
}

type FXProviderConfig struct {
	VenueID string   `toml:"venue_id" mapstructure:"venue_id"`
	BaseURL string   `toml:"base_url" mapstructure:"base_url"`
	APIKey  string   `toml:"api_key" mapstructure:"api_key"`
	// Mode is "single" (one pair per request, rate-limited) or "batch".
	Mode  string   `toml:"mode" mapstructure:"mode"`
	Pairs []string `toml:"pairs" mapstructure:"pairs"`
}

type DEXProviderConfig struct {
	VenueID string   `toml:"venue_id" mapstructure:"venue_id"`
	BaseURL string   `toml:"base_url" mapstructure:"base_url"`
	Pairs   []string `toml:"pairs" mapstructure:"pairs"`
}

type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level" mapstructure:"level"`
	// Development switches zap to console encoding.
	Development bool `toml:"development" mapstructure:"development"`
}

// Validate checks the loaded configuration.
func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case "pebble":
		if cfg.Store.Pebble.Path == "" {
			return fmt.Errorf("store.pebble.path is required for the pebble backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Prefetch.FastPeriod <= 0 {
		return fmt.Errorf("prefetch.fast_period must be positive")
	}

	for _, fx := range cfg.Provider.FX {
		if fx.VenueID == "" || fx.BaseURL == "" {
			return fmt.Errorf("fx providers need venue_id and base_url")
		}
		if fx.Mode != "single" && fx.Mode != "batch" {
			return fmt.Errorf("fx provider %s: mode must be single or batch", fx.VenueID)
		}
		if len(fx.Pairs) == 0 {
			return fmt.Errorf("fx provider %s: at least one pair required", fx.VenueID)
		}
	}
	for _, dex := range cfg.Provider.DEX {
		if dex.VenueID == "" || dex.BaseURL == "" {
			return fmt.Errorf("dex providers need venue_id and base_url")
		}
	}

	if _, ok := cfg.Deposit.Accounts[token.MethodBankTransfer]; !ok {
		return fmt.Errorf("deposit.accounts must define at least %q", token.MethodBankTransfer)
	}
	return nil
}
