package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when neither the config file nor the environment provides
// a value. The external endpoints point at public test infrastructure.
const (
	DefaultListenAddress = ":8080"
	DefaultDatabaseURL   = "satsbridge.db"
	DefaultLedgerRPCURL  = "https://api.devnet.solana.com"
	DefaultPayoutBaseURL = "https://sandboxapi.bitnob.co/api/v1"
	DefaultUSDCMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	DefaultConversionRate = 173.02
	DefaultRewardFraction = 0.01
	DefaultBTCRate        = 0.000025

	DefaultRequestTimeout = 10 * time.Second
)

const (
	envConfigFile     = "SATSBRIDGE_CONFIG"
	envListen         = "SATSBRIDGE_LISTEN"
	envDatabaseURL    = "SATSBRIDGE_DB"
	envLedgerRPCURL   = "SATSBRIDGE_SOLANA_RPC_URL"
	envPayoutBaseURL  = "SATSBRIDGE_BITNOB_BASE"
	envPayoutAPIKey   = "SATSBRIDGE_BITNOB_API_KEY"
	envUSDCMint       = "SATSBRIDGE_USDC_MINT"
	envConversionRate = "SATSBRIDGE_CONVERSION_RATE"
	envRewardFraction = "SATSBRIDGE_REWARD_FRACTION"
	envBTCRate        = "SATSBRIDGE_BTC_RATE"
	envRequestTimeout = "SATSBRIDGE_TIMEOUT"
	envEnvironment    = "SATSBRIDGE_ENV"
)

// Config captures runtime configuration for the reward bridge service.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DatabaseURL   string `toml:"DatabaseURL"`
	LedgerRPCURL  string `toml:"LedgerRPCURL"`
	PayoutBaseURL string `toml:"PayoutBaseURL"`
	PayoutAPIKey  string `toml:"PayoutAPIKey"`
	USDCMint      string `toml:"USDCMint"`

	ConversionRate float64 `toml:"ConversionRate"`
	RewardFraction float64 `toml:"RewardFraction"`
	BTCRate        float64 `toml:"BTCRate"`

	RequestTimeout time.Duration `toml:"-"`
	TimeoutSeconds int           `toml:"TimeoutSeconds"`
	Environment    string        `toml:"Environment"`
}

// Load resolves configuration from an optional TOML file pointed at by
// SATSBRIDGE_CONFIG, overridden by environment variables, with defaults for
// anything still unset. The payout provider API key is the only required
// value; every endpoint defaults to a public test deployment.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	if cfg.TimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if strings.TrimSpace(cfg.PayoutAPIKey) == "" {
		return nil, fmt.Errorf("%s is required", envPayoutAPIKey)
	}
	if cfg.ConversionRate <= 0 {
		return nil, fmt.Errorf("conversion rate must be positive, got %v", cfg.ConversionRate)
	}
	if cfg.RewardFraction <= 0 || cfg.RewardFraction > 1 {
		return nil, fmt.Errorf("reward fraction must be in (0, 1], got %v", cfg.RewardFraction)
	}
	if cfg.BTCRate <= 0 {
		return nil, fmt.Errorf("btc rate must be positive, got %v", cfg.BTCRate)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envListen)); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envDatabaseURL)); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envLedgerRPCURL)); v != "" {
		cfg.LedgerRPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envPayoutBaseURL)); v != "" {
		cfg.PayoutBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envPayoutAPIKey)); v != "" {
		cfg.PayoutAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envUSDCMint)); v != "" {
		cfg.USDCMint = v
	}
	if v := parseFloatEnv(envConversionRate); v > 0 {
		cfg.ConversionRate = v
	}
	if v := parseFloatEnv(envRewardFraction); v > 0 {
		cfg.RewardFraction = v
	}
	if v := parseFloatEnv(envBTCRate); v > 0 {
		cfg.BTCRate = v
	}
	if v := parseDurationEnv(envRequestTimeout); v > 0 {
		cfg.RequestTimeout = v
	}
	if v := strings.TrimSpace(os.Getenv(envEnvironment)); v != "" {
		cfg.Environment = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		cfg.DatabaseURL = DefaultDatabaseURL
	}
	if strings.TrimSpace(cfg.LedgerRPCURL) == "" {
		cfg.LedgerRPCURL = DefaultLedgerRPCURL
	}
	if strings.TrimSpace(cfg.PayoutBaseURL) == "" {
		cfg.PayoutBaseURL = DefaultPayoutBaseURL
	}
	if strings.TrimSpace(cfg.USDCMint) == "" {
		cfg.USDCMint = DefaultUSDCMint
	}
	if cfg.ConversionRate == 0 {
		cfg.ConversionRate = DefaultConversionRate
	}
	if cfg.RewardFraction == 0 {
		cfg.RewardFraction = DefaultRewardFraction
	}
	if cfg.BTCRate == 0 {
		cfg.BTCRate = DefaultBTCRate
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
}

// PostgresDatabase reports whether the configured database URL targets a
// postgres server rather than a local sqlite file.
func (c *Config) PostgresDatabase() bool {
	url := strings.ToLower(strings.TrimSpace(c.DatabaseURL))
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") || strings.Contains(url, "host=")
}

func parseFloatEnv(key string) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseDurationEnv(key string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
