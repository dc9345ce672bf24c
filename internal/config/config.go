package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	Store        StoreConfig
	Detector     DetectorConfig
	Scorer       ScorerConfig
	Coordinator  CoordinatorConfig
	Retention    RetentionConfig
	Producer     ProducerConfig
	Notification NotificationConfig
	NATS         NATSConfig
	Archive      ArchiveConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimitRPS    float64
	RateLimitBurst  int
	JWTSecret       string
	Environment     string
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	OutputPath string
}

// StoreConfig tunes snapshot persistence
type StoreConfig struct {
	CompressionThreshold int
	BatchSize            int
	FlushInterval        time.Duration
	CacheTTL             time.Duration
	CacheSize            int
}

// DetectorConfig tunes the per-metric anomaly model
type DetectorConfig struct {
	MinHistory       int
	ConfidenceZ      float64
	VolatilityFactor float64
	VolatilityWindow int
	TrendWindow      int
	TrendEpsilon     float64
}

// ScorerConfig tunes alert prioritisation and throttling
type ScorerConfig struct {
	ChangeThreshold       float64
	MagnitudeSaturation   float64
	DailyCap              int
	DefaultAlertThreshold float64
	DegradedPenalty       float64
	KeyMetrics            []string
	CriticalWindow        time.Duration
	HighWindow            time.Duration
	DefaultWindow         time.Duration
}

// CoordinatorConfig tunes the check scheduler
type CoordinatorConfig struct {
	MaxConcurrentChecks int
	ProducerTimeout     time.Duration
	ErrorThreshold      int
	TickSchedule        string
	HistoryDepth        int
	ProducerRPS         float64
	ProducerBurst       int
}

// RetentionConfig controls snapshot cleanup
type RetentionConfig struct {
	Days     int
	Schedule string
}

// ProducerConfig selects the analysis producer
type ProducerConfig struct {
	Kind         string // static or openai
	FixturePath  string
	OpenAIAPIKey string
	OpenAIModel  string
}

// NotificationConfig contains delivery settings
type NotificationConfig struct {
	SlackWebhookURL string
	SlackChannel    string
	WebhookSecret   string
	MaxRetries      int
	Timeout         time.Duration
}

// NATSConfig contains messaging settings
type NATSConfig struct {
	URL          string
	TriggerTopic string
}

// ArchiveConfig controls S3 archiving of expired snapshots
type ArchiveConfig struct {
	Bucket string
	Region string
	Prefix string
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom builds the configuration from an existing viper instance, which
// may already carry a config file and bound CLI flags.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_read_timeout", 10*time.Second)
	v.SetDefault("server_write_timeout", 30*time.Second)
	v.SetDefault("server_shutdown_timeout", 30*time.Second)
	v.SetDefault("server_allowed_origins", "http://localhost:5173")
	v.SetDefault("server_rate_limit_rps", 50.0)
	v.SetDefault("server_rate_limit_burst", 100)
	v.SetDefault("server_jwt_secret", "")
	v.SetDefault("environment", "development")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "changewatch")
	v.SetDefault("db_user", "")
	v.SetDefault("db_password", "")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", 5*time.Minute)
	v.SetDefault("db_path", "./changewatch.db")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output", "stdout")

	v.SetDefault("store_compression_threshold", 1024)
	v.SetDefault("store_batch_size", 10)
	v.SetDefault("store_flush_interval", 2*time.Second)
	v.SetDefault("store_cache_ttl", 5*time.Minute)
	v.SetDefault("store_cache_size", 512)

	v.SetDefault("detector_min_history", 8)
	v.SetDefault("detector_confidence_z", 2.576)
	v.SetDefault("detector_volatility_factor", 2.0)
	v.SetDefault("detector_volatility_window", 5)
	v.SetDefault("detector_trend_window", 6)
	v.SetDefault("detector_trend_epsilon", 0.001)

	v.SetDefault("scorer_change_threshold", 0.20)
	v.SetDefault("scorer_magnitude_saturation", 0.5)
	v.SetDefault("scorer_daily_cap", 5)
	v.SetDefault("scorer_default_alert_threshold", 0.7)
	v.SetDefault("scorer_degraded_penalty", 0.85)
	v.SetDefault("scorer_key_metrics", "revenue,profit,net_income,valuation,funding,headcount,market_cap,arr,mrr,burn_rate")
	v.SetDefault("scorer_critical_window", time.Hour)
	v.SetDefault("scorer_high_window", 4*time.Hour)
	v.SetDefault("scorer_default_window", 24*time.Hour)

	v.SetDefault("coordinator_max_concurrent_checks", 5)
	v.SetDefault("coordinator_producer_timeout", 60*time.Second)
	v.SetDefault("coordinator_error_threshold", 3)
	v.SetDefault("coordinator_tick_schedule", "@every 1m")
	v.SetDefault("coordinator_history_depth", 60)
	v.SetDefault("coordinator_producer_rps", 2.0)
	v.SetDefault("coordinator_producer_burst", 5)

	v.SetDefault("retention_days", 90)
	v.SetDefault("retention_schedule", "@daily")

	v.SetDefault("producer_kind", "static")
	v.SetDefault("producer_fixture_path", "./fixtures/snapshots.yaml")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")

	v.SetDefault("slack_webhook_url", "")
	v.SetDefault("slack_channel", "#alerts")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("notification_max_retries", 3)
	v.SetDefault("notification_timeout", 15*time.Second)

	v.SetDefault("nats_url", "")
	v.SetDefault("nats_trigger_topic", "changewatch.monitor.check")

	v.SetDefault("archive_s3_bucket", "")
	v.SetDefault("archive_s3_region", "us-east-1")
	v.SetDefault("archive_s3_prefix", "snapshots/")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			Port:            v.GetInt("server_port"),
			ReadTimeout:     v.GetDuration("server_read_timeout"),
			WriteTimeout:    v.GetDuration("server_write_timeout"),
			ShutdownTimeout: v.GetDuration("server_shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server_allowed_origins")),
			RateLimitRPS:    v.GetFloat64("server_rate_limit_rps"),
			RateLimitBurst:  v.GetInt("server_rate_limit_burst"),
			JWTSecret:       v.GetString("server_jwt_secret"),
			Environment:     v.GetString("environment"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("db_driver"),
			Host:            v.GetString("db_host"),
			Port:            v.GetInt("db_port"),
			Name:            v.GetString("db_name"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			SSLMode:         v.GetString("db_sslmode"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
			Path:            v.GetString("db_path"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			OutputPath: v.GetString("log_output"),
		},
		Store: StoreConfig{
			CompressionThreshold: v.GetInt("store_compression_threshold"),
			BatchSize:            v.GetInt("store_batch_size"),
			FlushInterval:        v.GetDuration("store_flush_interval"),
			CacheTTL:             v.GetDuration("store_cache_ttl"),
			CacheSize:            v.GetInt("store_cache_size"),
		},
		Detector: DetectorConfig{
			MinHistory:       v.GetInt("detector_min_history"),
			ConfidenceZ:      v.GetFloat64("detector_confidence_z"),
			VolatilityFactor: v.GetFloat64("detector_volatility_factor"),
			VolatilityWindow: v.GetInt("detector_volatility_window"),
			TrendWindow:      v.GetInt("detector_trend_window"),
			TrendEpsilon:     v.GetFloat64("detector_trend_epsilon"),
		},
		Scorer: ScorerConfig{
			ChangeThreshold:       v.GetFloat64("scorer_change_threshold"),
			MagnitudeSaturation:   v.GetFloat64("scorer_magnitude_saturation"),
			DailyCap:              v.GetInt("scorer_daily_cap"),
			DefaultAlertThreshold: v.GetFloat64("scorer_default_alert_threshold"),
			DegradedPenalty:       v.GetFloat64("scorer_degraded_penalty"),
			KeyMetrics:            splitList(v.GetString("scorer_key_metrics")),
			CriticalWindow:        v.GetDuration("scorer_critical_window"),
			HighWindow:            v.GetDuration("scorer_high_window"),
			DefaultWindow:         v.GetDuration("scorer_default_window"),
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrentChecks: v.GetInt("coordinator_max_concurrent_checks"),
			ProducerTimeout:     v.GetDuration("coordinator_producer_timeout"),
			ErrorThreshold:      v.GetInt("coordinator_error_threshold"),
			TickSchedule:        v.GetString("coordinator_tick_schedule"),
			HistoryDepth:        v.GetInt("coordinator_history_depth"),
			ProducerRPS:         v.GetFloat64("coordinator_producer_rps"),
			ProducerBurst:       v.GetInt("coordinator_producer_burst"),
		},
		Retention: RetentionConfig{
			Days:     v.GetInt("retention_days"),
			Schedule: v.GetString("retention_schedule"),
		},
		Producer: ProducerConfig{
			Kind:         v.GetString("producer_kind"),
			FixturePath:  v.GetString("producer_fixture_path"),
			OpenAIAPIKey: v.GetString("openai_api_key"),
			OpenAIModel:  v.GetString("openai_model"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: v.GetString("slack_webhook_url"),
			SlackChannel:    v.GetString("slack_channel"),
			WebhookSecret:   v.GetString("webhook_secret"),
			MaxRetries:      v.GetInt("notification_max_retries"),
			Timeout:         v.GetDuration("notification_timeout"),
		},
		NATS: NATSConfig{
			URL:          v.GetString("nats_url"),
			TriggerTopic: v.GetString("nats_trigger_topic"),
		},
		Archive: ArchiveConfig{
			Bucket: v.GetString("archive_s3_bucket"),
			Region: v.GetString("archive_s3_region"),
			Prefix: v.GetString("archive_s3_prefix"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Store.BatchSize < 1 {
		return fmt.Errorf("store batch size must be positive, got %d", c.Store.BatchSize)
	}
	if c.Store.CompressionThreshold < 0 {
		return fmt.Errorf("compression threshold must not be negative")
	}

	if c.Detector.MinHistory < 3 {
		return fmt.Errorf("detector min history must be at least 3, got %d", c.Detector.MinHistory)
	}
	if c.Detector.VolatilityFactor <= 1 {
		return fmt.Errorf("volatility factor must be greater than 1, got %v", c.Detector.VolatilityFactor)
	}

	if c.Scorer.DailyCap < 1 {
		return fmt.Errorf("daily alert cap must be at least 1, got %d", c.Scorer.DailyCap)
	}
	if c.Scorer.DefaultAlertThreshold < 0 || c.Scorer.DefaultAlertThreshold > 1 {
		return fmt.Errorf("default alert threshold must be within [0,1], got %v", c.Scorer.DefaultAlertThreshold)
	}

	if c.Coordinator.MaxConcurrentChecks < 1 {
		return fmt.Errorf("max concurrent checks must be at least 1, got %d", c.Coordinator.MaxConcurrentChecks)
	}
	if c.Coordinator.ProducerTimeout <= 0 {
		return fmt.Errorf("producer timeout must be positive")
	}
	if c.Coordinator.ErrorThreshold < 1 {
		return fmt.Errorf("error threshold must be at least 1, got %d", c.Coordinator.ErrorThreshold)
	}

	if c.Retention.Days < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", c.Retention.Days)
	}

	if c.Producer.Kind != "static" && c.Producer.Kind != "openai" {
		return fmt.Errorf("unsupported producer kind: %s", c.Producer.Kind)
	}

	return nil
}

// Address returns the host:port pair the HTTP server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
