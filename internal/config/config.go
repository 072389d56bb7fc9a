// Package config loads and validates the coordinator's YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/poolhand/payoutd/internal/chain"
)

// Config holds all configuration for the payout coordinator.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Client configures the signed link to the pool server.
	Client ClientConfig `yaml:"sc_rpc_client"`

	// Scheduler configures the daemon's job clock.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Monitor configures the optional status server.
	Monitor MonitorConfig `yaml:"monitor"`

	// Currencies lists every currency the coordinator settles.
	Currencies []*CurrencyConfig `yaml:"currencies"`
}

// ClientConfig holds the pool server connection settings.
type ClientConfig struct {
	// RPCURL is the base URL of the pool server.
	RPCURL string `yaml:"rpc_url"`

	// RPCSignature is the shared secret the message envelopes are keyed on.
	RPCSignature string `yaml:"rpc_signature"`

	// MaxAge is the maximum accepted envelope age in seconds.
	MaxAge int `yaml:"max_age"`

	// MinConfirms is the confirmation depth before a transaction is
	// reported confirmed.
	MinConfirms int64 `yaml:"min_confirms"`

	// MinimumTxOutput is the smallest per-address amount worth sending,
	// as a coin-denominated decimal string.
	MinimumTxOutput string `yaml:"minimum_tx_output"`

	// DatabasePath is the directory holding the per-currency databases.
	DatabasePath string `yaml:"database_path"`
}

// MinimumTxOutputSats returns minimum_tx_output in satoshis.
func (c *ClientConfig) MinimumTxOutputSats() (uint64, error) {
	if c.MinimumTxOutput == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(c.MinimumTxOutput)
	if err != nil {
		return 0, fmt.Errorf("minimum_tx_output: %w", err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("minimum_tx_output: negative amount %q", c.MinimumTxOutput)
	}
	sats := d.Shift(8)
	if !sats.IsInteger() {
		return 0, fmt.Errorf("minimum_tx_output: more than 8 decimal places in %q", c.MinimumTxOutput)
	}
	bi := sats.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("minimum_tx_output: amount %q out of range", c.MinimumTxOutput)
	}
	return bi.Uint64(), nil
}

// SchedulerConfig holds the daemon's job clock. Settle, Associate and
// Confirm are local wall-clock times in HH:MM form.
type SchedulerConfig struct {
	// Ingest is the interval between payout pulls.
	Ingest time.Duration `yaml:"ingest"`

	// Settle is when the daily send runs.
	Settle string `yaml:"settle"`

	// Associate is when the daily association sweep runs.
	Associate string `yaml:"associate"`

	// Confirm is when the daily confirmation sweep runs.
	Confirm string `yaml:"confirm"`
}

// MonitorConfig holds the status server settings.
type MonitorConfig struct {
	// Listen is the bind address for the status server. Empty disables it.
	Listen string `yaml:"listen"`
}

// CurrencyConfig holds per-currency settings.
type CurrencyConfig struct {
	// CurrencyCode is the currency symbol (LTC, DOGE, ...).
	CurrencyCode string `yaml:"currency_code"`

	// Enabled gates whether the coordinator settles this currency.
	Enabled bool `yaml:"enabled"`

	// AddressScheme selects the payout address validation scheme
	// (versions, bech32 or evm). Defaults from the built-in currency
	// params when empty.
	AddressScheme string `yaml:"address_scheme"`

	// ValidAddressVersions lists the accepted base58check version bytes.
	// Defaults from the built-in currency params when empty.
	ValidAddressVersions []int `yaml:"valid_address_versions"`

	// Coinserv configures the currency's wallet daemon.
	Coinserv CoinservConfig `yaml:"coinserv"`
}

// Scheme returns the effective address validation scheme.
func (c *CurrencyConfig) Scheme() chain.AddressScheme {
	if c.AddressScheme != "" {
		return chain.AddressScheme(c.AddressScheme)
	}
	if params, ok := chain.Get(c.CurrencyCode); ok {
		return params.Scheme
	}
	return chain.SchemeVersions
}

// Versions returns the effective accepted address version bytes.
func (c *CurrencyConfig) Versions() []byte {
	if len(c.ValidAddressVersions) > 0 {
		out := make([]byte, len(c.ValidAddressVersions))
		for i, v := range c.ValidAddressVersions {
			out[i] = byte(v)
		}
		return out
	}
	if params, ok := chain.Get(c.CurrencyCode); ok {
		return params.AddressVersions
	}
	return nil
}

// CoinservConfig holds the wallet daemon connection settings.
type CoinservConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`

	// Account is the wallet account payouts are drawn from.
	Account string `yaml:"account"`

	// WalletPass unlocks the wallet before sending. Empty for
	// unencrypted wallets.
	WalletPass string `yaml:"wallet_pass"`
}

// URL returns the daemon's JSON-RPC endpoint.
func (c *CoinservConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Address, c.Port)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Client: ClientConfig{
			MaxAge:          10,
			MinConfirms:     12,
			MinimumTxOutput: "0.00000001",
			DatabasePath:    ".",
		},
		Scheduler: SchedulerConfig{
			Ingest:    time.Minute,
			Settle:    "23:00",
			Associate: "00:00",
			Confirm:   "01:00",
		},
	}
}

// Load reads and validates configuration from a YAML file. A missing file
// is an error; WriteTemplate produces a starting point.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate normalizes the configuration and checks it for use. Currency
// codes are uppercased and preset defaults applied before checking.
func (c *Config) Validate() error {
	if c.Client.RPCURL == "" {
		return fmt.Errorf("sc_rpc_client.rpc_url is required")
	}
	u, err := url.Parse(c.Client.RPCURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sc_rpc_client.rpc_url: not a valid URL: %q", c.Client.RPCURL)
	}
	if c.Client.RPCSignature == "" {
		return fmt.Errorf("sc_rpc_client.rpc_signature is required")
	}
	if c.Client.MaxAge <= 0 {
		return fmt.Errorf("sc_rpc_client.max_age must be positive, got %d", c.Client.MaxAge)
	}
	if c.Client.MinConfirms <= 0 {
		return fmt.Errorf("sc_rpc_client.min_confirms must be positive, got %d", c.Client.MinConfirms)
	}
	if _, err := c.Client.MinimumTxOutputSats(); err != nil {
		return err
	}
	if c.Client.DatabasePath == "" {
		return fmt.Errorf("sc_rpc_client.database_path is required")
	}

	if c.Scheduler.Ingest <= 0 {
		return fmt.Errorf("scheduler.ingest must be positive, got %v", c.Scheduler.Ingest)
	}
	clocks := []struct{ name, value string }{
		{"scheduler.settle", c.Scheduler.Settle},
		{"scheduler.associate", c.Scheduler.Associate},
		{"scheduler.confirm", c.Scheduler.Confirm},
	}
	for _, clk := range clocks {
		if _, _, err := ParseClock(clk.value); err != nil {
			return fmt.Errorf("%s: %w", clk.name, err)
		}
	}

	if len(c.Currencies) == 0 {
		return fmt.Errorf("no currencies configured")
	}
	seen := make(map[string]bool)
	for _, cur := range c.Currencies {
		if cur.CurrencyCode == "" {
			return fmt.Errorf("currency with empty currency_code")
		}
		cur.CurrencyCode = strings.ToUpper(cur.CurrencyCode)
		if seen[cur.CurrencyCode] {
			return fmt.Errorf("duplicate currency %s", cur.CurrencyCode)
		}
		seen[cur.CurrencyCode] = true

		switch scheme := cur.Scheme(); scheme {
		case chain.SchemeVersions, chain.SchemeBech32, chain.SchemeEVM:
		default:
			return fmt.Errorf("%s: unknown address_scheme %q", cur.CurrencyCode, scheme)
		}
		for _, v := range cur.ValidAddressVersions {
			if v < 0 || v > 255 {
				return fmt.Errorf("%s: address version %d out of range", cur.CurrencyCode, v)
			}
		}
		if cur.Scheme() != chain.SchemeEVM && len(cur.Versions()) == 0 {
			return fmt.Errorf("%s: no valid_address_versions and no built-in default", cur.CurrencyCode)
		}

		if !cur.Enabled {
			continue
		}
		if cur.Coinserv.Address == "" {
			return fmt.Errorf("%s: coinserv.address is required", cur.CurrencyCode)
		}
		if cur.Coinserv.Port <= 0 || cur.Coinserv.Port > 65535 {
			return fmt.Errorf("%s: coinserv.port %d out of range", cur.CurrencyCode, cur.Coinserv.Port)
		}
	}

	return nil
}

// Enabled returns the currencies the coordinator settles.
func (c *Config) Enabled() []*CurrencyConfig {
	var out []*CurrencyConfig
	for _, cur := range c.Currencies {
		if cur.Enabled {
			out = append(out, cur)
		}
	}
	return out
}

// Currency returns the configuration for a currency code.
func (c *Config) Currency(code string) (*CurrencyConfig, bool) {
	code = strings.ToUpper(code)
	for _, cur := range c.Currencies {
		if cur.CurrencyCode == code {
			return cur, true
		}
	}
	return nil, false
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("bad clock time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}
