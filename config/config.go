package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"dex-swap/pkg/trade"
)

// Defaults target PancakeSwap v2 on BNB Smart Chain
const (
	DefaultRPCURL        = "https://bsc-dataseed.binance.org/"
	DefaultRouter        = "0x10ED43C718714eb63d5aA57B78B54704E256024E"
	DefaultWrappedNative = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	DefaultBuySellToken  = "0x8995f63d98aADDaC79afC92025431b0f50633DDA"

	// DefaultRetryReason is the router revert that usually clears on a fresh attempt
	DefaultRetryReason = "TransferHelper: TRANSFER_FROM_FAILED"

	minGasLimit = 21_000
)

// Config holds the application configuration
type Config struct {
	Chain   ChainConfig   `mapstructure:"chain"`
	Trade   TradeConfig   `mapstructure:"trade"`
	Retry   RetryConfig   `mapstructure:"retry"`
	BuySell BuySellConfig `mapstructure:"buy_sell"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ChainConfig selects the chain, router and signing key
type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	PrivateKey    string `mapstructure:"private_key"`
	Router        string `mapstructure:"router"`
	WrappedNative string `mapstructure:"wrapped_native"`
	GasPriceGwei  string `mapstructure:"gas_price_gwei"` // Empty uses the node's suggestion
}

// TradeConfig holds per-swap parameters
type TradeConfig struct {
	SlippageBps   int           `mapstructure:"slippage_bps"`
	GasLimit      uint64        `mapstructure:"gas_limit"`
	Simulate      bool          `mapstructure:"simulate"`
	Deadline      time.Duration `mapstructure:"deadline"`
	FeeOnTransfer bool          `mapstructure:"fee_on_transfer"`
}

// RetryConfig bounds the retry loop
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // 0 retries forever
	Delay       time.Duration `mapstructure:"delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Backoff     string        `mapstructure:"backoff"`
	Reasons     []string      `mapstructure:"reasons"`
}

// BuySellConfig drives the buy-then-sell sequence
type BuySellConfig struct {
	Token          string        `mapstructure:"token"`
	BuyAmount      string        `mapstructure:"buy_amount"`
	SellAmount     string        `mapstructure:"sell_amount"`
	FallbackAmount string        `mapstructure:"fallback_amount"`
	LegDelay       time.Duration `mapstructure:"leg_delay"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // Empty disables the server
}

// Error is a missing or invalid configuration parameter
type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Msg)
}

// Errorf builds a configuration error for key
func Errorf(key, format string, args ...interface{}) error {
	return &Error{Key: key, Msg: fmt.Sprintf(format, args...)}
}

// IsError reports whether err is a configuration error
func IsError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("chain.rpc_url", DefaultRPCURL)
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.router", DefaultRouter)
	v.SetDefault("chain.wrapped_native", DefaultWrappedNative)
	v.SetDefault("chain.gas_price_gwei", "")

	v.SetDefault("trade.slippage_bps", 100)
	v.SetDefault("trade.gas_limit", 1_000_000)
	v.SetDefault("trade.simulate", true)
	v.SetDefault("trade.deadline", 5*time.Minute)
	v.SetDefault("trade.fee_on_transfer", false)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.delay", 3*time.Second)
	v.SetDefault("retry.max_delay", time.Minute)
	v.SetDefault("retry.backoff", string(trade.BackoffFixed))
	v.SetDefault("retry.reasons", []string{DefaultRetryReason})

	v.SetDefault("buy_sell.token", DefaultBuySellToken)
	v.SetDefault("buy_sell.buy_amount", "200.0")
	v.SetDefault("buy_sell.sell_amount", "250.0")
	v.SetDefault("buy_sell.fallback_amount", "200.0")
	v.SetDefault("buy_sell.leg_delay", 10*time.Second)

	v.SetDefault("metrics.addr", "")
}

// Load reads configuration from defaults, an optional yaml file and environment variables.
// Flags bound to v take precedence over all of them.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".dex-swap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	// Read from environment variables
	v.SetEnvPrefix("DEX_SWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("chain.private_key", "DEX_SWAP_CHAIN_PRIVATE_KEY", "PRIVATE_KEY"); err != nil {
		return nil, err
	}

	// Config file is optional unless given explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, &Error{Key: "config", Msg: fmt.Sprintf("failed to read config file: %v", err)}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Key: "config", Msg: fmt.Sprintf("failed to decode configuration: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value range
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return Errorf("chain.rpc_url", "RPC URL not configured")
	}
	if !common.IsHexAddress(c.Chain.Router) {
		return Errorf("chain.router", "invalid address %q", c.Chain.Router)
	}
	if !common.IsHexAddress(c.Chain.WrappedNative) {
		return Errorf("chain.wrapped_native", "invalid address %q", c.Chain.WrappedNative)
	}
	if _, err := c.GasPrice(); err != nil {
		return err
	}

	if c.Trade.SlippageBps < 0 || c.Trade.SlippageBps > trade.MaxBps {
		return Errorf("trade.slippage_bps", "must be between 0 and %d, got %d", trade.MaxBps, c.Trade.SlippageBps)
	}
	if c.Trade.GasLimit < minGasLimit {
		return Errorf("trade.gas_limit", "must be at least %d, got %d", minGasLimit, c.Trade.GasLimit)
	}
	if c.Trade.Deadline <= 0 {
		return Errorf("trade.deadline", "must be positive, got %s", c.Trade.Deadline)
	}

	if err := c.Policy().Validate(); err != nil {
		return &Error{Key: "retry", Msg: err.Error()}
	}

	if c.BuySell.Token != "" && !common.IsHexAddress(c.BuySell.Token) {
		return Errorf("buy_sell.token", "invalid address %q", c.BuySell.Token)
	}
	for key, amount := range map[string]string{
		"buy_sell.buy_amount":      c.BuySell.BuyAmount,
		"buy_sell.sell_amount":     c.BuySell.SellAmount,
		"buy_sell.fallback_amount": c.BuySell.FallbackAmount,
	} {
		if _, err := PositiveAmount(key, amount); err != nil {
			return err
		}
	}
	if c.BuySell.LegDelay < 0 {
		return Errorf("buy_sell.leg_delay", "cannot be negative")
	}

	return nil
}

// RequireSigner fails when no private key is configured
func (c *Config) RequireSigner() error {
	if strings.TrimSpace(c.Chain.PrivateKey) == "" {
		return Errorf("chain.private_key", "private key not found. Please set PRIVATE_KEY in the environment or .env file")
	}
	return nil
}

// RouterAddress returns the configured router
func (c *Config) RouterAddress() common.Address {
	return common.HexToAddress(c.Chain.Router)
}

// WrappedNativeAddress returns the wrapped native token (WBNB, WETH)
func (c *Config) WrappedNativeAddress() common.Address {
	return common.HexToAddress(c.Chain.WrappedNative)
}

// GasPrice returns the fixed gas price in wei, or nil to use the node's suggestion
func (c *Config) GasPrice() (*big.Int, error) {
	raw := strings.TrimSpace(c.Chain.GasPriceGwei)
	if raw == "" {
		return nil, nil
	}
	gwei, err := PositiveAmount("chain.gas_price_gwei", raw)
	if err != nil {
		return nil, err
	}
	wei := gwei.Shift(9)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, Errorf("chain.gas_price_gwei", "more precise than 1 wei")
	}
	return wei.BigInt(), nil
}

// Policy returns the retry policy
func (c *Config) Policy() trade.Policy {
	return trade.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
		MaxDelay:    c.Retry.MaxDelay,
		Backoff:     trade.BackoffKind(c.Retry.Backoff),
	}
}

// PositiveAmount parses a human decimal amount that must be greater than zero
func PositiveAmount(key, amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, Errorf(key, "invalid amount %q", amount)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, Errorf(key, "must be greater than 0, got %s", amount)
	}
	return d, nil
}
