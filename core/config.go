package core

import (
	"fmt"
	"strings"
	"time"
)

// MarketplaceConfig is the consumed per-marketplace configuration slice:
// whether ingestion is enabled and the shared webhook secret. An empty
// secret means signature verification is skipped unless RequireSignature
// forces a fail-closed policy.
type MarketplaceConfig struct {
	Enabled           bool          `koanf:"enabled" mapstructure:"enabled"`
	Secret            string        `koanf:"secret" mapstructure:"secret"`
	SignatureHeader   string        `koanf:"signature_header" mapstructure:"signature_header"`
	RequireSignature  bool          `koanf:"require_signature" mapstructure:"require_signature"`
	OrderFetchTimeout time.Duration `koanf:"order_fetch_timeout" mapstructure:"order_fetch_timeout"`
}

type Config struct {
	ServiceName  string                       `koanf:"service_name" mapstructure:"service_name"`
	Marketplaces map[string]MarketplaceConfig `koanf:"marketplaces" mapstructure:"marketplaces"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "marketsync",
		Marketplaces: map[string]MarketplaceConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for name := range c.Marketplaces {
		if _, err := ParseMarketplace(name); err != nil {
			return fmt.Errorf("core: unknown marketplace in config: %q", name)
		}
	}
	return nil
}

// MarketplaceFor returns the configured slice for a marketplace with
// defaults applied; missing entries come back disabled.
func (c Config) MarketplaceFor(marketplace Marketplace) MarketplaceConfig {
	cfg, ok := c.Marketplaces[string(marketplace)]
	if !ok {
		return MarketplaceConfig{}
	}
	if cfg.OrderFetchTimeout <= 0 {
		cfg.OrderFetchTimeout = 5 * time.Second
	}
	return cfg
}
