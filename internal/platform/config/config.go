package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rangepool/rangepool/internal/pool"
)

// Config holds all configuration for the simulator
type Config struct {
	Tokens        []TokenConfig       `mapstructure:"tokens"`
	Pool          PoolConfig          `mapstructure:"pool"`
	Math          MathConfig          `mapstructure:"math"`
	Swap          SwapConfig          `mapstructure:"swap"`
	Scenario      ScenarioConfig      `mapstructure:"scenario"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// TokenConfig declares one ledger token and its initial funding
type TokenConfig struct {
	Symbol   string            `mapstructure:"symbol"`
	Decimals int32             `mapstructure:"decimals"`
	Funding  map[string]string `mapstructure:"funding"` // address -> human amount
}

// PoolConfig holds the pool's pair and initial state
type PoolConfig struct {
	Address      string  `mapstructure:"address"`
	Token0       string  `mapstructure:"token0"` // symbol
	Token1       string  `mapstructure:"token1"` // symbol
	InitialPrice float64 `mapstructure:"initial_price"` // human units
	BaseIsToken0 bool    `mapstructure:"base_is_token0"`
	InitMode     string  `mapstructure:"init_mode"` // continuous, continuous-exact, tick-quantized

	parsedInitMode pool.InitMode
}

// ParsedInitMode returns the validated init mode
func (p *PoolConfig) ParsedInitMode() pool.InitMode {
	return p.parsedInitMode
}

// MathConfig holds fixed-point math settings
type MathConfig struct {
	ExactPrecisionDigits uint `mapstructure:"exact_precision_digits"`
}

// SwapConfig holds swap behavior settings
type SwapConfig struct {
	Clamp bool `mapstructure:"clamp"`
}

// ScenarioConfig holds the scripted demo run
type ScenarioConfig struct {
	Payer          string  `mapstructure:"payer"`
	Recipient      string  `mapstructure:"recipient"`
	DepositAmount0 string  `mapstructure:"deposit_amount0"` // human units of token0
	DepositAmount1 string  `mapstructure:"deposit_amount1"` // human units of token1
	LowerPrice     float64 `mapstructure:"lower_price"`     // human units, 0 = pool default range
	UpperPrice     float64 `mapstructure:"upper_price"`
	SwapAmount1In  string  `mapstructure:"swap_amount1_in"` // human units of token1
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal, defaults take over
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Token defaults: the classic demo pair
	v.SetDefault("tokens", []map[string]any{
		{
			"symbol":   "ETH",
			"decimals": 18,
			"funding":  map[string]string{"alice": "10"},
		},
		{
			"symbol":   "USDC",
			"decimals": 18,
			"funding":  map[string]string{"alice": "100000000"},
		},
	})

	// Pool defaults
	v.SetDefault("pool.address", "pool")
	v.SetDefault("pool.token0", "ETH")
	v.SetDefault("pool.token1", "USDC")
	v.SetDefault("pool.initial_price", 5000)
	v.SetDefault("pool.base_is_token0", true)
	v.SetDefault("pool.init_mode", "continuous")

	// Math defaults
	v.SetDefault("math.exact_precision_digits", 96)

	// Swap defaults
	v.SetDefault("swap.clamp", true)

	// Scenario defaults: 1 ETH + 5000 USDC position, then a 42 USDC swap
	v.SetDefault("scenario.payer", "alice")
	v.SetDefault("scenario.recipient", "bob")
	v.SetDefault("scenario.deposit_amount0", "1")
	v.SetDefault("scenario.deposit_amount1", "5000")
	v.SetDefault("scenario.lower_price", 4545)
	v.SetDefault("scenario.upper_price", 5500)
	v.SetDefault("scenario.swap_amount1_in", "42")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// parse parses string values into their proper types
func (c *Config) parse() error {
	mode, err := pool.ParseInitMode(c.Pool.InitMode)
	if err != nil {
		return err
	}
	c.Pool.parsedInitMode = mode
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}

	symbols := make(map[string]bool, len(c.Tokens))
	for _, tok := range c.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("token symbol is required")
		}
		if symbols[tok.Symbol] {
			return fmt.Errorf("duplicate token symbol: %s", tok.Symbol)
		}
		symbols[tok.Symbol] = true

		if tok.Decimals < 0 || tok.Decimals > 18 {
			return fmt.Errorf("token %s: decimals must be in [0, 18], got %d", tok.Symbol, tok.Decimals)
		}
		for addr, amount := range tok.Funding {
			d, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("token %s: invalid funding amount %q for %s", tok.Symbol, amount, addr)
			}
			if d.Sign() < 0 {
				return fmt.Errorf("token %s: funding amount %q for %s must not be negative", tok.Symbol, amount, addr)
			}
		}
	}

	if !symbols[c.Pool.Token0] {
		return fmt.Errorf("pool token0 %q is not a declared token", c.Pool.Token0)
	}
	if !symbols[c.Pool.Token1] {
		return fmt.Errorf("pool token1 %q is not a declared token", c.Pool.Token1)
	}
	if c.Pool.Token0 == c.Pool.Token1 {
		return fmt.Errorf("pool tokens must differ")
	}
	if c.Pool.InitialPrice <= 0 {
		return fmt.Errorf("pool initial price must be > 0")
	}

	if c.Math.ExactPrecisionDigits == 0 {
		return fmt.Errorf("exact precision digits must be > 0")
	}

	if c.Scenario.LowerPrice < 0 || c.Scenario.UpperPrice < 0 {
		return fmt.Errorf("scenario range prices must be >= 0")
	}
	if c.Scenario.LowerPrice > 0 && c.Scenario.UpperPrice > 0 &&
		c.Scenario.LowerPrice >= c.Scenario.UpperPrice {
		return fmt.Errorf("scenario lower price must be below upper price")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
