package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flight-fare-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Detection DetectionConfig `mapstructure:"detection"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig backs the distributed statistics cache. Optional; the
// in-memory cache is used when Addr is empty.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SchedulerConfig governs monitoring tick cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// ProviderConfig describes one upstream quote provider.
type ProviderConfig struct {
	Name           string        `mapstructure:"name"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
	Priority       int           `mapstructure:"priority"`
}

// QuotesConfig covers multi-provider fetching behaviour.
type QuotesConfig struct {
	Strategy       string           `mapstructure:"strategy"`
	Providers      []ProviderConfig `mapstructure:"providers"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	MaxRetries     int              `mapstructure:"max_retries"`
	RetryBackoff   time.Duration    `mapstructure:"retry_backoff"`
	MinResults     int              `mapstructure:"min_results"`
	UserAgent      string           `mapstructure:"user_agent"`
}

// DetectionConfig exposes break-detection thresholds as configuration.
// Defaults mirror the tuned production values; they are not invariants.
type DetectionConfig struct {
	MinDropPct           float64       `mapstructure:"min_drop_pct"`
	MinConfidence        float64       `mapstructure:"min_confidence"`
	MaxDropPct           float64       `mapstructure:"max_drop_pct"`
	MaxRecentDrops       int           `mapstructure:"max_recent_drops"`
	LookbackDays         int           `mapstructure:"lookback_days"`
	StatsCacheTTL        time.Duration `mapstructure:"stats_cache_ttl"`
	HardVolatilityPct    float64       `mapstructure:"hard_volatility_pct"`
	SoftVolatilityPct    float64       `mapstructure:"soft_volatility_pct"`
	FilterSoftPerDay     int           `mapstructure:"filter_soft_per_day"`
	FilterHardPerDay     int           `mapstructure:"filter_hard_per_day"`
	RouteHardPerHour     int           `mapstructure:"route_hard_per_hour"`
	ObservationRetention time.Duration `mapstructure:"observation_retention"`
}

// AlertingConfig defines delivery channels and dedupe windows.
type AlertingConfig struct {
	Enabled           bool           `mapstructure:"enabled"`
	Channels          []string       `mapstructure:"channels"`
	MaxPerFilterHour  int            `mapstructure:"max_per_filter_hour"`
	RouteCooldown     time.Duration  `mapstructure:"route_cooldown"`
	Telegram          TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// QualityConfig tunes the alert quality scorer.
type QualityConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	ChangeThreshold float64       `mapstructure:"change_threshold"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FAREWATCHER")
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
	v.SetDefault("app.name", "farewatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.metrics_addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.prefix", "farewatcher:")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66617265))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.batch_size", 100)

	v.SetDefault("quotes.strategy", "cascade")
	v.SetDefault("quotes.request_timeout", "30s")
	v.SetDefault("quotes.max_retries", 3)
	v.SetDefault("quotes.retry_backoff", "2s")
	v.SetDefault("quotes.min_results", 3)
	v.SetDefault("quotes.user_agent", "farewatcher/1.0")

	v.SetDefault("detection.min_drop_pct", 5.0)
	v.SetDefault("detection.min_confidence", 0.6)
	v.SetDefault("detection.max_drop_pct", 80.0)
	v.SetDefault("detection.max_recent_drops", 5)
	v.SetDefault("detection.lookback_days", 30)
	v.SetDefault("detection.stats_cache_ttl", "2h")
	v.SetDefault("detection.hard_volatility_pct", 80.0)
	v.SetDefault("detection.soft_volatility_pct", 50.0)
	v.SetDefault("detection.filter_soft_per_day", 3)
	v.SetDefault("detection.filter_hard_per_day", 5)
	v.SetDefault("detection.route_hard_per_hour", 10)
	v.SetDefault("detection.observation_retention", "2160h")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.max_per_filter_hour", 3)
	v.SetDefault("alerting.route_cooldown", "2h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("quality.interval", "6h")
	v.SetDefault("quality.batch_size", 50)
	v.SetDefault("quality.change_threshold", 0.1)

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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.Detection.MinDropPct < 0 || c.Detection.MinDropPct >= c.Detection.MaxDropPct {
		return fmt.Errorf("detection.min_drop_pct must be in [0, max_drop_pct)")
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be within [0,1]")
	}
	if c.Quality.BatchSize <= 0 {
		return fmt.Errorf("quality.batch_size must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
