package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"floor-oracle/internal/logging"
)

// Config materialises application configuration. It is built once at startup
// and passed by reference; nothing reads ambient global state.
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Logging     logging.Config     `mapstructure:"logging"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Query       QueryConfig        `mapstructure:"query"`
	CoinFeed    CoinFeedConfig     `mapstructure:"coin_feed"`
	Providers   ProvidersConfig    `mapstructure:"providers"`
	Guard       GuardConfig        `mapstructure:"guard"`
	Watchdog    WatchdogConfig     `mapstructure:"watchdog"`
	Ethereum    EthereumConfig     `mapstructure:"ethereum"`
	Alerting    AlertingConfig     `mapstructure:"alerting"`
	Export      ExportConfig       `mapstructure:"export"`
	Collections []CollectionConfig `mapstructure:"collections"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates store connectivity.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// QueryConfig carries the required-field defaults applied during query
// normalization.
type QueryConfig struct {
	Defaults map[string]any `mapstructure:"defaults"`
}

// CoinFeedConfig covers the reference coin price feed.
type CoinFeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ProvidersConfig describes marketplace floor providers.
type ProvidersConfig struct {
	// Endpoints maps a provider id to its floor endpoint template; the
	// collection slug replaces the {collection} placeholder.
	Endpoints       map[string]string `mapstructure:"endpoints"`
	RequestTimeout  time.Duration     `mapstructure:"request_timeout"`
	ConcurrentFetch bool              `mapstructure:"concurrent_fetch"`
}

// GuardConfig tunes the propagation guard.
type GuardConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// WatchdogConfig bounds worst-case pass duration.
type WatchdogConfig struct {
	Ceiling time.Duration `mapstructure:"ceiling"`
}

// EthereumConfig covers the oracle contract client.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	PrivateKey     string        `mapstructure:"private_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	DecimalScale   int32         `mapstructure:"decimal_scale"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert transport.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// CollectionConfig is one tracked asset collection.
type CollectionConfig struct {
	Name      string   `mapstructure:"name"`
	Display   string   `mapstructure:"display"`
	Providers []string `mapstructure:"providers"`
	// Oracle is the ledger oracle contract address; empty means the
	// collection is not ledger-linked and nothing is propagated.
	Oracle string `mapstructure:"oracle"`
}

// DisplayName returns the operator-facing name used in alerts.
func (c CollectionConfig) DisplayName() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Name
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOORORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "floororacle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("query.defaults", map[string]any{"page": 1, "limit": 10})

	v.SetDefault("coin_feed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coin_feed.request_timeout", "10s")
	v.SetDefault("coin_feed.user_agent", "floororacle/1.0")

	v.SetDefault("providers.request_timeout", "10s")
	v.SetDefault("providers.concurrent_fetch", false)

	v.SetDefault("guard.attempts", 3)
	v.SetDefault("guard.backoff", "10s")

	v.SetDefault("watchdog.ceiling", "120s")

	v.SetDefault("ethereum.decimal_scale", 6)
	v.SetDefault("ethereum.gas_limit", uint64(120000))
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Guard.Attempts <= 0 {
		return fmt.Errorf("guard.attempts must be greater than zero")
	}
	if c.Guard.Backoff < 0 {
		return fmt.Errorf("guard.backoff cannot be negative")
	}
	if c.Watchdog.Ceiling < 0 {
		return fmt.Errorf("watchdog.ceiling cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	seen := make(map[string]struct{}, len(c.Collections))
	for _, collection := range c.Collections {
		if collection.Name == "" {
			return fmt.Errorf("collections entries require a name")
		}
		if _, dup := seen[collection.Name]; dup {
			return fmt.Errorf("duplicate collection %q", collection.Name)
		}
		seen[collection.Name] = struct{}{}

		for _, provider := range collection.Providers {
			if _, ok := c.Providers.Endpoints[provider]; !ok {
				return fmt.Errorf("collection %q references unknown provider %q", collection.Name, provider)
			}
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}

	return nil
}

// LedgerLinked reports whether any collection propagates to an oracle, in
// which case the ethereum client must be configured.
func (c *Config) LedgerLinked() bool {
	for _, collection := range c.Collections {
		if collection.Oracle != "" {
			return true
		}
	}
	return false
}
