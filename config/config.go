package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP server
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Gate controller webhook
	Gate GateConfig `mapstructure:"gate"`

	// Access link policy
	Access AccessConfig `mapstructure:"access"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

// GateConfig describes the hardware-trigger webhook.
type GateConfig struct {
	WebhookURL      string `mapstructure:"webhook_url"`
	WebhookToken    string `mapstructure:"webhook_token"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	RetryAttempts   int    `mapstructure:"retry_attempts"`
	OpenDurationSec int    `mapstructure:"open_duration_seconds"`
}

// AccessConfig bundles the link-policy knobs consumed by the grant engine.
type AccessConfig struct {
	CooldownSeconds        int `mapstructure:"cooldown_seconds"`
	SweepIntervalSeconds   int `mapstructure:"sweep_interval_seconds"`
	CodeLength             int `mapstructure:"code_length"`
	DefaultExpirationHours int `mapstructure:"default_expiration_hours"`
	NotifyTimeoutSeconds   int `mapstructure:"notify_timeout_seconds"`
	RateLimitPerMinute     int `mapstructure:"rate_limit_per_minute"`
}

// Cooldown returns the per-link cooldown window as a duration.
func (a AccessConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

// SweepInterval returns how often the status sweep runs.
func (a AccessConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSeconds) * time.Second
}

// NotifyTimeout bounds a single notification-provider delivery.
func (a AccessConfig) NotifyTimeout() time.Duration {
	return time.Duration(a.NotifyTimeoutSeconds) * time.Second
}

// Timeout bounds a single gate-webhook attempt.
func (g GateConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("gate.timeout_seconds", 5)
	v.SetDefault("gate.retry_attempts", 3)
	v.SetDefault("gate.open_duration_seconds", 5)

	v.SetDefault("access.cooldown_seconds", 60)
	v.SetDefault("access.sweep_interval_seconds", 60)
	v.SetDefault("access.code_length", 8)
	v.SetDefault("access.default_expiration_hours", 24)
	v.SetDefault("access.notify_timeout_seconds", 10)
	v.SetDefault("access.rate_limit_per_minute", 60)
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Gate webhook
	v.BindEnv("gate.webhook_url", "GATE_WEBHOOK_URL")
	v.BindEnv("gate.webhook_token", "GATE_WEBHOOK_TOKEN")
	v.BindEnv("gate.timeout_seconds", "GATE_WEBHOOK_TIMEOUT")
	v.BindEnv("gate.retry_attempts", "GATE_WEBHOOK_RETRIES")
	v.BindEnv("gate.open_duration_seconds", "GATE_OPEN_DURATION_SECONDS")

	// Access policy
	v.BindEnv("access.cooldown_seconds", "ACCESS_COOLDOWN_SECONDS")
	v.BindEnv("access.sweep_interval_seconds", "ACCESS_SWEEP_INTERVAL_SECONDS")
	v.BindEnv("access.code_length", "LINK_CODE_LENGTH")
	v.BindEnv("access.default_expiration_hours", "DEFAULT_LINK_EXPIRATION_HOURS")
	v.BindEnv("access.notify_timeout_seconds", "NOTIFY_TIMEOUT_SECONDS")
	v.BindEnv("access.rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE")
}
