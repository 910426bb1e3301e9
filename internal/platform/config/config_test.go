package config

import (
	"strings"
	"testing"

	"github.com/rangepool/rangepool/internal/pool"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if len(cfg.Tokens) != 2 {
		t.Fatalf("expected 2 default tokens, got %d", len(cfg.Tokens))
	}
	if cfg.Pool.Token0 != "ETH" || cfg.Pool.Token1 != "USDC" {
		t.Errorf("default pair = %s/%s, want ETH/USDC", cfg.Pool.Token0, cfg.Pool.Token1)
	}
	if cfg.Pool.InitialPrice != 5000 {
		t.Errorf("default initial price = %v, want 5000", cfg.Pool.InitialPrice)
	}
	if cfg.Pool.ParsedInitMode() != pool.ContinuousApprox {
		t.Errorf("default init mode = %v, want ContinuousApprox", cfg.Pool.ParsedInitMode())
	}
	if cfg.Math.ExactPrecisionDigits != 96 {
		t.Errorf("default exact precision = %d, want 96", cfg.Math.ExactPrecisionDigits)
	}
	if !cfg.Swap.Clamp {
		t.Error("clamping should default on")
	}
	if cfg.Scenario.LowerPrice != 4545 || cfg.Scenario.UpperPrice != 5500 {
		t.Errorf("default scenario range = [%v, %v], want [4545, 5500]",
			cfg.Scenario.LowerPrice, cfg.Scenario.UpperPrice)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := MustLoad("")
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no tokens",
			mutate:  func(c *Config) { c.Tokens = nil },
			wantErr: "at least one token",
		},
		{
			name:    "duplicate symbol",
			mutate:  func(c *Config) { c.Tokens[1].Symbol = c.Tokens[0].Symbol },
			wantErr: "duplicate token symbol",
		},
		{
			name:    "decimals out of range",
			mutate:  func(c *Config) { c.Tokens[0].Decimals = 19 },
			wantErr: "decimals",
		},
		{
			name:    "bad funding amount",
			mutate:  func(c *Config) { c.Tokens[0].Funding = map[string]string{"alice": "ten"} },
			wantErr: "invalid funding amount",
		},
		{
			name:    "negative funding amount",
			mutate:  func(c *Config) { c.Tokens[0].Funding = map[string]string{"alice": "-5"} },
			wantErr: "must not be negative",
		},
		{
			name:    "unknown pool token",
			mutate:  func(c *Config) { c.Pool.Token0 = "DOGE" },
			wantErr: "not a declared token",
		},
		{
			name:    "same token twice",
			mutate:  func(c *Config) { c.Pool.Token1 = c.Pool.Token0 },
			wantErr: "must differ",
		},
		{
			name:    "non-positive price",
			mutate:  func(c *Config) { c.Pool.InitialPrice = 0 },
			wantErr: "initial price",
		},
		{
			name:    "inverted scenario range",
			mutate:  func(c *Config) { c.Scenario.LowerPrice = 6000 },
			wantErr: "below upper",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Observability.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a broken config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsUnknownInitMode(t *testing.T) {
	cfg := MustLoad("")
	cfg.Pool.InitMode = "nearest"
	if err := cfg.parse(); err == nil {
		t.Error("parse accepted an unknown init mode")
	}
}
