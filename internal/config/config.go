package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rate-relay/internal/fetcher"
	"rate-relay/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Excel     ExcelConfig     `mapstructure:"excel"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	API       APIConfig       `mapstructure:"api"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig locates the rate feed and where the downloaded copy is kept.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	OutputDir      string        `mapstructure:"output_dir"`
	FileName       string        `mapstructure:"file_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// QueueConfig selects the work-item backend.
type QueueConfig struct {
	Backend string `mapstructure:"backend"`
	Name    string `mapstructure:"name"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// SinkConfig selects the dispatch destination. Empty means none.
type SinkConfig struct {
	Kind string `mapstructure:"kind"`
}

// ExcelConfig describes the spreadsheet sink output.
type ExcelConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	FileName  string `mapstructure:"file_name"`
	Sheet     string `mapstructure:"sheet"`
	Append    bool   `mapstructure:"append"`
}

// KafkaConfig describes the broker sink.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Key          string        `mapstructure:"key"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// APIConfig describes the HTTP sink.
type APIConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig governs the cadence of the long-running mode.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// AlertingConfig routes finalize warnings.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
}

// TelegramConfig describes the Telegram warning channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SentryConfig describes the Sentry warning channel.
type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig configures the Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// legacyEnv maps config keys to the plain environment names the job
// historically read, in addition to the RATERELAY_ prefixed ones.
var legacyEnv = map[string]string{
	"kafka.brokers": "KAFKA_BOOTSTRAP_SERVERS",
	"kafka.topic":   "KAFKA_TOPIC",
	"sink.kind":     "RATE_SINK",
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("RATERELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, env := range legacyEnv {
		prefixed := "RATERELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
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
	v.SetDefault("app.name", "raterelay")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("feed.url", fetcher.DefaultFeedURL)
	v.SetDefault("feed.output_dir", "output")
	v.SetDefault("feed.file_name", "vcb_rate.xml")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "")

	v.SetDefault("queue.backend", "postgres")
	v.SetDefault("queue.name", "rate_data")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "30s")

	v.SetDefault("redis.url", "")

	v.SetDefault("sink.kind", "")

	v.SetDefault("excel.output_dir", "output")
	v.SetDefault("excel.file_name", "rate_data.xlsx")
	v.SetDefault("excel.sheet", "rate_data")
	v.SetDefault("excel.append", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "rate_data")
	v.SetDefault("kafka.key", "ExchangeRate")
	v.SetDefault("kafka.write_timeout", "10s")

	v.SetDefault("api.endpoint", "")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.sentry.dsn", "")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "raterelay")
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
	switch c.Queue.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("queue.backend must be one of postgres, redis, memory; got %q", c.Queue.Backend)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name must not be empty")
	}
	// sink.kind is not checked: an unrecognised selector means no sink.
	if c.Excel.FileName == "" {
		return fmt.Errorf("excel.file_name must not be empty")
	}
	if c.Excel.Sheet == "" {
		return fmt.Errorf("excel.sheet must not be empty")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic must not be empty")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveSinkKind returns either the CLI override or the configured sink.
func (c *Config) ResolveSinkKind(override string) string {
	if override != "" {
		return override
	}
	return c.Sink.Kind
}
