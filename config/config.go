package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	yaml "gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so YAML values can be written as "3s" or
// "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// Scan pacing
	ScanInterval Duration `yaml:"scan_interval"`
	StaleHorizon Duration `yaml:"stale_horizon"`
	QuoteTimeout Duration `yaml:"quote_timeout"`

	// Execution policy
	MinProfit      float64  `yaml:"min_profit"`
	AutoExecute    bool     `yaml:"auto_execute"`
	ConfirmTimeout Duration `yaml:"confirm_timeout"`

	// Background refresh
	GasRefreshInterval  Duration `yaml:"gas_refresh_interval"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
	RateCacheTTL        Duration `yaml:"rate_cache_ttl"`
	VsCurrency          string   `yaml:"vs_currency"`

	RPCRateLimit RateLimitConfig `yaml:"rpc_rate_limit"`

	PrometheusEnabled  bool   `yaml:"prometheus_enabled"`
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`

	Chains map[string]ChainConfig `yaml:"chains"`
}

type ChainConfig struct {
	ChainID          uint64                 `yaml:"chain_id"`
	RPCEndpoint      string                 `yaml:"rpc_endpoint"`
	NativeSymbol     string                 `yaml:"native_symbol"`
	CoinGeckoID      string                 `yaml:"coingecko_id"`
	RelayURL         string                 `yaml:"relay_url"`
	ExecutorContract string                 `yaml:"executor_contract"`
	Venues           []string               `yaml:"venues"`
	Tokens           map[string]TokenConfig `yaml:"tokens"`
	Providers        []ProviderConfig       `yaml:"providers"`
	Pairs            []PairConfig           `yaml:"pairs"`
}

type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type ProviderConfig struct {
	ID     string   `yaml:"id"`
	Pool   string   `yaml:"pool"`
	FeeBps int      `yaml:"fee_bps"`
	Assets []string `yaml:"assets"`
}

type PairConfig struct {
	Base     string  `yaml:"base"`
	Quote    string  `yaml:"quote"`
	AmountIn float64 `yaml:"amount_in"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// SecureConfig carries key material. It is never read from the config
// file, only from the environment.
type SecureConfig struct {
	PrivateKey   string
	RelayAuthKey string
}

func (c *Config) Validate() error {
	var errs []string

	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be positive")
	}
	if c.StaleHorizon <= 0 {
		errs = append(errs, "stale_horizon must be positive")
	}
	if c.QuoteTimeout <= 0 {
		errs = append(errs, "quote_timeout must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, "confirm_timeout must be positive")
	}
	if c.MinProfit < 0 {
		errs = append(errs, "min_profit must not be negative")
	}
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one chain must be configured")
	}
	if err := c.RPCRateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rpc rate limit error: %v", err))
	}
	if c.PrometheusEnabled && c.PrometheusEndpoint == "" {
		errs = append(errs, "prometheus_endpoint must be set when prometheus is enabled")
	}

	for name, chain := range c.Chains {
		if err := chain.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("chain %s: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("rpc_endpoint must be specified")
	}
	if !common.IsHexAddress(c.ExecutorContract) {
		return fmt.Errorf("executor_contract is not a valid address")
	}
	if len(c.Venues) < 2 {
		return fmt.Errorf("at least two venues are required, got %d", len(c.Venues))
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one flash loan provider must be configured")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one pair must be configured")
	}

	for symbol, token := range c.Tokens {
		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("token %s has invalid address %q", symbol, token.Address)
		}
	}
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", p.ID, err)
		}
	}
	for _, pair := range c.Pairs {
		if err := pair.Validate(c.Tokens); err != nil {
			return fmt.Errorf("pair %s/%s: %w", pair.Base, pair.Quote, err)
		}
	}
	return nil
}

func (p *ProviderConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id must be specified")
	}
	if !common.IsHexAddress(p.Pool) {
		return fmt.Errorf("pool is not a valid address")
	}
	if p.FeeBps < 0 {
		return fmt.Errorf("fee_bps must not be negative")
	}
	if len(p.Assets) == 0 {
		return fmt.Errorf("at least one supported asset is required")
	}
	return nil
}

func (p *PairConfig) Validate(tokens map[string]TokenConfig) error {
	if p.Base == "" || p.Quote == "" {
		return fmt.Errorf("base and quote must be specified")
	}
	if p.AmountIn <= 0 {
		return fmt.Errorf("amount_in must be positive")
	}
	if _, ok := tokens[p.Base]; !ok {
		return fmt.Errorf("base token %s not in token map", p.Base)
	}
	if _, ok := tokens[p.Quote]; !ok {
		return fmt.Errorf("quote token %s not in token map", p.Quote)
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(cfgFile string) (*Config, error) {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns the baseline settings before the file overlay.
func DefaultConfig() *Config {
	return &Config{
		ScanInterval:        Duration(3 * time.Second),
		StaleHorizon:        Duration(30 * time.Second),
		QuoteTimeout:        Duration(2 * time.Second),
		MinProfit:           10,
		AutoExecute:         false,
		ConfirmTimeout:      Duration(90 * time.Second),
		GasRefreshInterval:  Duration(12 * time.Second),
		HealthCheckInterval: Duration(30 * time.Second),
		RateCacheTTL:        Duration(time.Minute),
		VsCurrency:          "usd",
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		PrometheusEnabled:  false,
		PrometheusEndpoint: ":9090",
		Chains:             map[string]ChainConfig{},
	}
}
