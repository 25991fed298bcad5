package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for blank service name")
	}

	cfg = DefaultConfig()
	cfg.Marketplaces["etsy"] = MarketplaceConfig{Enabled: true}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown marketplace key")
	}
	if !strings.Contains(err.Error(), "etsy") {
		t.Fatalf("expected the offending key in the error, got %v", err)
	}
}

func TestConfig_MarketplaceFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Marketplaces["ozon"] = MarketplaceConfig{
		Enabled: true,
		Secret:  "shh",
	}

	ozon := cfg.MarketplaceFor(MarketplaceOzon)
	if !ozon.Enabled || ozon.Secret != "shh" {
		t.Fatalf("unexpected ozon config: %+v", ozon)
	}
	if ozon.OrderFetchTimeout != 5*time.Second {
		t.Fatalf("expected default fetch timeout, got %v", ozon.OrderFetchTimeout)
	}

	ebay := cfg.MarketplaceFor(MarketplaceEbay)
	if ebay.Enabled {
		t.Fatal("missing entries come back disabled")
	}
}

func TestCfgxConfigProvider_LoadMergesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"marketplaces": map[string]any{
			"ebay": map[string]any{
				"enabled":           true,
				"secret":            "token",
				"require_signature": true,
			},
		},
	}))

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "marketsync" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	ebay := cfg.MarketplaceFor(MarketplaceEbay)
	if !ebay.Enabled || !ebay.RequireSignature || ebay.Secret != "token" {
		t.Fatalf("unexpected ebay config: %+v", ebay)
	}
}

func TestCfgxConfigProvider_RejectsInvalidRaw(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"marketplaces": map[string]any{
			"etsy": map[string]any{"enabled": true},
		},
	}))

	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatal("expected validation failure for unknown marketplace")
	}
}

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "marketsync-stage",
		Marketplaces: map[string]MarketplaceConfig{
			"ozon": {Enabled: true, Secret: "from-config"},
		},
	}
	runtime := Config{
		Marketplaces: map[string]MarketplaceConfig{
			"ozon": {Enabled: true, Secret: "from-flag"},
		},
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "marketsync-stage" {
		t.Fatalf("expected loaded service name to survive, got %q", resolved.ServiceName)
	}
	if got := resolved.MarketplaceFor(MarketplaceOzon).Secret; got != "from-flag" {
		t.Fatalf("expected runtime secret to win, got %q", got)
	}
}
