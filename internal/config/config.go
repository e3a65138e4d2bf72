package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"hourswatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	API        APIConfig        `mapstructure:"api"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the persistence backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ProbeConfig controls how the status page is loaded.
type ProbeConfig struct {
	Engine       string        `mapstructure:"engine"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ExcerptLimit int           `mapstructure:"excerpt_limit"`
	UserAgent    string        `mapstructure:"user_agent"`
	ChromePath   string        `mapstructure:"chrome_path"`
}

// ClassifierConfig tunes daily pattern classification.
type ClassifierConfig struct {
	MinSamples int  `mapstructure:"min_samples"`
	PruneStale bool `mapstructure:"prune_stale"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Listen             string `mapstructure:"listen"`
	MaxCalendarDays    int    `mapstructure:"max_calendar_days"`
	DefaultSampleLimit int    `mapstructure:"default_sample_limit"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig describes the SendGrid e-mail channel.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Endpoint string `mapstructure:"endpoint"`
}

// ScheduleConfig points at an optional YAML seed for the resource schedule.
type ScheduleConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOURSWATCH")
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
	v.SetDefault("app.name", "hourswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x686f7572))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("probe.engine", "http")
	v.SetDefault("probe.timeout", "30s")
	v.SetDefault("probe.settle_delay", "2s")
	v.SetDefault("probe.excerpt_limit", 1000)
	v.SetDefault("probe.user_agent", "hourswatch/1.0")

	v.SetDefault("classifier.min_samples", 5)
	v.SetDefault("classifier.prune_stale", false)

	v.SetDefault("api.listen", ":3001")
	v.SetDefault("api.max_calendar_days", 400)
	v.SetDefault("api.default_sample_limit", 100)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.enabled", false)

	v.SetDefault("schedule.watch", true)

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
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Probe.Engine {
	case "http", "chrome":
	default:
		return fmt.Errorf("probe.engine must be http or chrome, got %q", c.Probe.Engine)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be greater than zero")
	}
	if c.Probe.SettleDelay < 0 {
		return fmt.Errorf("probe.settle_delay cannot be negative")
	}
	if c.Probe.SettleDelay >= c.Probe.Timeout {
		return fmt.Errorf("probe.settle_delay must be shorter than probe.timeout")
	}
	if c.Classifier.MinSamples <= 0 {
		return fmt.Errorf("classifier.min_samples must be greater than zero")
	}
	if c.API.MaxCalendarDays <= 0 {
		return fmt.Errorf("api.max_calendar_days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.APIKey == "" {
			return fmt.Errorf("alerting.email.api_key is required when e-mail alerts are enabled")
		}
		if c.Alerting.Email.To == "" {
			return fmt.Errorf("alerting.email.to is required when e-mail alerts are enabled")
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
