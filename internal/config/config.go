package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/zhongyi-byte/stock-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and parameterises the storage backend. Backend is
// "sqlite" for a local file or "postgres" for a remote instance; the engine
// itself never sees which one is behind the store interface.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs check cadence.
type SchedulerConfig struct {
	At           string        `mapstructure:"at"`
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// SourcesConfig covers upstream price APIs.
type SourcesConfig struct {
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	UserAgent      string             `mapstructure:"user_agent"`
	Equity         EquitySourceConfig `mapstructure:"equity"`
	HongKong       HKSourceConfig     `mapstructure:"hongkong"`
	Crypto         CryptoSourceConfig `mapstructure:"crypto"`
	Oracle         OracleSourceConfig `mapstructure:"oracle"`
}

// EquitySourceConfig 描述美股行情 API 参数。
type EquitySourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// HKSourceConfig 描述港股行情 API 参数。
type HKSourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CryptoSourceConfig describes the crypto market API and symbol mapping.
type CryptoSourceConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	CoinIDs map[string]string `mapstructure:"coin_ids"`
}

// OracleSourceConfig describes the on-chain fallback feeds.
type OracleSourceConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	RPCURL   string            `mapstructure:"rpc_url"`
	Feeds    map[string]string `mapstructure:"feeds"`
	Decimals int32             `mapstructure:"decimals"`
	MaxAge   time.Duration     `mapstructure:"max_age"`
}

// MonitorConfig bounds and shapes one evaluation pass.
type MonitorConfig struct {
	PassTimeout    time.Duration `mapstructure:"pass_timeout"`
	HistoryEnabled bool          `mapstructure:"history_enabled"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled   bool       `mapstructure:"enabled"`
	Recipient string     `mapstructure:"recipient"`
	SMTP      SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig 描述邮件发送参数。
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKMONITOR")
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
	v.SetDefault("app.name", "stock-monitor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.path", "stock_monitor.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.at", "09:00")
	v.SetDefault("scheduler.interval", "0s")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("sources.request_timeout", "5s")
	v.SetDefault("sources.user_agent", "stock-monitor/1.0")
	v.SetDefault("sources.equity.base_url", "https://www.alphavantage.co")
	v.SetDefault("sources.crypto.base_url", "https://api.coingecko.com")
	v.SetDefault("sources.crypto.coin_ids", map[string]string{
		"BTC":     "bitcoin",
		"BTC-USD": "bitcoin",
		"ETH-USD": "ethereum",
	})
	v.SetDefault("sources.oracle.enabled", false)
	v.SetDefault("sources.oracle.decimals", 8)
	v.SetDefault("sources.oracle.max_age", "1h")

	v.SetDefault("monitor.pass_timeout", "30s")
	v.SetDefault("monitor.history_enabled", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.smtp.host", "smtp.gmail.com")
	v.SetDefault("alerting.smtp.port", 587)
	v.SetDefault("alerting.smtp.timeout", "10s")

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
	switch c.Database.Backend {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path 必须配置")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn 必须配置")
		}
	default:
		return fmt.Errorf("database.backend must be sqlite or postgres, got %q", c.Database.Backend)
	}

	if c.Scheduler.Interval <= 0 {
		if _, err := time.Parse("15:04", c.Scheduler.At); err != nil {
			return fmt.Errorf("scheduler.at must be HH:MM, got %q", c.Scheduler.At)
		}
	}

	if c.Sources.RequestTimeout <= 0 {
		return fmt.Errorf("sources.request_timeout must be greater than zero")
	}
	if c.Monitor.PassTimeout <= 0 {
		return fmt.Errorf("monitor.pass_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	if c.Alerting.Enabled {
		if c.Alerting.SMTP.Host == "" {
			return fmt.Errorf("alerting.smtp.host 必须配置")
		}
		if c.Alerting.SMTP.Username == "" {
			return fmt.Errorf("alerting.smtp.username 必须配置")
		}
		if c.Alerting.Recipient == "" {
			return fmt.Errorf("alerting.recipient 必须配置")
		}
	}

	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
