package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AIModelConfig describes one chat-completions backend.
type AIModelConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Config holds application configuration. Values come from an optional
// YAML file, then environment variables override field by field.
type Config struct {
	// Database (normalized event store)
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSSLMode  string `yaml:"db_ssl_mode"`

	// Data lake (raw ingestion source)
	DataLakeDSN string `yaml:"data_lake_dsn"`

	// AI normalization
	AIPrimary        AIModelConfig `yaml:"ai_primary"`
	AISecondary      AIModelConfig `yaml:"ai_secondary"`
	AITimeout        time.Duration `yaml:"ai_timeout"`
	AIMaxRetries     int           `yaml:"ai_max_retries"`
	AIBackoffBase    time.Duration `yaml:"ai_backoff_base"`
	AIBackoffCeiling time.Duration `yaml:"ai_backoff_ceiling"`

	// Worker
	WorkerInterval time.Duration `yaml:"worker_interval"`
	WorkerBatch    int           `yaml:"worker_batch"`

	// Alerting
	AlertWindowHours int           `yaml:"alert_window_hours"`
	AlertInterval    time.Duration `yaml:"alert_interval"`
	AMQPURL          string        `yaml:"amqp_url"`
	AMQPExchange     string        `yaml:"amqp_exchange"`

	// Raw payload archive (optional)
	ArchiveEndpoint  string `yaml:"archive_endpoint"`
	ArchiveAccessKey string `yaml:"archive_access_key"`
	ArchiveSecretKey string `yaml:"archive_secret_key"`
	ArchiveBucket    string `yaml:"archive_bucket"`
	ArchiveUseSSL    bool   `yaml:"archive_use_ssl"`

	// Application
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads the optional YAML file at path (skipped when empty or
// missing), applies environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DBPort:           "5432",
		DBName:           "paywatch",
		DBSSLMode:        "require",
		AITimeout:        10 * time.Second,
		AIMaxRetries:     3,
		AIBackoffBase:    2 * time.Second,
		AIBackoffCeiling: 10 * time.Second,
		WorkerInterval:   60 * time.Second,
		WorkerBatch:      100,
		AlertWindowHours: 1,
		AlertInterval:    5 * time.Minute,
		AMQPExchange:     "paywatch.alerts",
		Environment:      "dev",
		LogLevel:         "info",
		MetricsAddr:      ":9102",
	}
}

func (c *Config) applyEnv() {
	setStr(&c.DBHost, "DB_HOST")
	setStr(&c.DBPort, "DB_PORT")
	setStr(&c.DBName, "DB_NAME")
	setStr(&c.DBUser, "DB_USER")
	setStr(&c.DBPassword, "DB_PASSWORD")
	setStr(&c.DBSSLMode, "DB_SSL_MODE")
	setStr(&c.DataLakeDSN, "DATA_LAKE_DSN")

	setStr(&c.AIPrimary.BaseURL, "AI_PRIMARY_BASE_URL")
	setStr(&c.AIPrimary.APIKey, "AI_PRIMARY_API_KEY")
	setStr(&c.AIPrimary.Model, "AI_PRIMARY_MODEL")
	setStr(&c.AISecondary.BaseURL, "AI_SECONDARY_BASE_URL")
	setStr(&c.AISecondary.APIKey, "AI_SECONDARY_API_KEY")
	setStr(&c.AISecondary.Model, "AI_SECONDARY_MODEL")
	setDuration(&c.AITimeout, "AI_TIMEOUT")
	setInt(&c.AIMaxRetries, "AI_MAX_RETRIES")

	setDuration(&c.WorkerInterval, "WORKER_INTERVAL")
	setInt(&c.WorkerBatch, "WORKER_BATCH")

	setInt(&c.AlertWindowHours, "ALERT_WINDOW_HOURS")
	setDuration(&c.AlertInterval, "ALERT_INTERVAL")
	setStr(&c.AMQPURL, "AMQP_URL")
	setStr(&c.AMQPExchange, "AMQP_EXCHANGE")

	setStr(&c.ArchiveEndpoint, "ARCHIVE_ENDPOINT")
	setStr(&c.ArchiveAccessKey, "ARCHIVE_ACCESS_KEY")
	setStr(&c.ArchiveSecretKey, "ARCHIVE_SECRET_KEY")
	setStr(&c.ArchiveBucket, "ARCHIVE_BUCKET")

	setStr(&c.Environment, "ENVIRONMENT")
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.MetricsAddr, "METRICS_ADDR")
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	required := map[string]string{
		"DB_HOST":       c.DBHost,
		"DB_USER":       c.DBUser,
		"DB_PASSWORD":   c.DBPassword,
		"DATA_LAKE_DSN": c.DataLakeDSN,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if c.AIPrimary.BaseURL == "" || c.AIPrimary.Model == "" {
		return fmt.Errorf("AI primary base URL and model are required")
	}
	if c.WorkerBatch <= 0 {
		return fmt.Errorf("worker batch must be positive")
	}
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("worker interval must be positive")
	}
	if c.AIMaxRetries <= 0 {
		return fmt.Errorf("AI max retries must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the event store.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// HasSecondaryAI reports whether a failover model is configured.
func (c *Config) HasSecondaryAI() bool {
	return c.AISecondary.BaseURL != "" && c.AISecondary.Model != ""
}

// HasArchive reports whether the raw payload archive is configured.
func (c *Config) HasArchive() bool {
	return c.ArchiveEndpoint != "" && c.ArchiveBucket != ""
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
