package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load builds the configuration in priority order: defaults, then the
// config file (when given), then ROUTINGD_ environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("ROUTINGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.pebble.path", "")

	v.SetDefault("prefetch.fast_period", 30*time.Second)
	v.SetDefault("prefetch.slow_period", 60*time.Second)

	v.SetDefault("scoring.default_daily_volatility", 0.005)
	v.SetDefault("scoring.default_counterparty_risk", 0.001)
	v.SetDefault("scoring.risk_factor", 1.0)

	v.SetDefault("provider.static_mock", true)

	v.SetDefault("deposit.accounts", map[string]map[string]string{
		"bank_transfer": {
			"bankName":      "Luma Clearing Bank",
			"accountNumber": "000000000",
			"routingNumber": "000000000",
		},
	})
	v.SetDefault("deposit.pix.key", "pix@lumapay.example")
	v.SetDefault("deposit.pix.merchant_name", "LUMAPAY LTDA")
	v.SetDefault("deposit.pix.merchant_city", "SAO PAULO")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}
