// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Gamification  GamificationConfig  `mapstructure:"gamification"`
	Rewards       RewardsConfig       `mapstructure:"rewards"`
	Purchase      PurchaseConfig      `mapstructure:"purchase"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	CORS          CORSConfig          `mapstructure:"cors"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Environment     string `mapstructure:"environment"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis"`
	AutoMigrate bool           `mapstructure:"auto_migrate"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	SlowQueryMillis int    `mapstructure:"slow_query_ms"`
}

// DSN returns the key/value connection string used by the GORM driver.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection URL used by the migration runner.
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// GamificationConfig contains XP, level and achievement settings.
type GamificationConfig struct {
	XPPerLevel       int64  `mapstructure:"xp_per_level"`
	SummaryCacheTTL  int    `mapstructure:"summary_cache_ttl"` // seconds, 0 disables caching
	AchievementsFile string `mapstructure:"achievements_file"` // empty uses the embedded catalog
	DefinitionCache  int    `mapstructure:"definition_cache_size"`
}

// SummaryTTL returns the summary cache TTL as a duration.
func (c *GamificationConfig) SummaryTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTL) * time.Second
}

// RewardsConfig contains XP granted by domain event listeners.
type RewardsConfig struct {
	StoryCompletedXP int64  `mapstructure:"story_completed_xp"`
	DailyLoginXP     int64  `mapstructure:"daily_login_xp"`
	Timezone         string `mapstructure:"timezone"`
}

// PurchaseConfig contains coin purchase settings.
type PurchaseConfig struct {
	Currency        string `mapstructure:"currency"`
	LockTTL         int    `mapstructure:"lock_ttl"` // seconds
	ReadableIDSalt  string `mapstructure:"readable_id_salt"`
	SnowflakeNodeID int64  `mapstructure:"snowflake_node_id"`
}

// NotificationsConfig contains in-app and webhook notification settings.
type NotificationsConfig struct {
	WebhookURL    string `mapstructure:"webhook_url"`
	Channel       string `mapstructure:"channel"`
	WebhookEnable bool   `mapstructure:"webhook_enabled"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	NormalizeSchedule string `mapstructure:"normalize_schedule"` // cron expression
	CleanupSchedule   string `mapstructure:"cleanup_schedule"`   // cron expression
	Timezone          string `mapstructure:"timezone"`
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CORSConfig contains allowed browser origins for the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 15)

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.postgres.slow_query_ms", 200)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("gamification.xp_per_level", 100)
	v.SetDefault("gamification.summary_cache_ttl", 60)
	v.SetDefault("gamification.definition_cache_size", 256)

	v.SetDefault("rewards.story_completed_xp", 50)
	v.SetDefault("rewards.daily_login_xp", 5)
	v.SetDefault("rewards.timezone", "UTC")

	v.SetDefault("purchase.currency", "COIN")
	v.SetDefault("purchase.lock_ttl", 30)
	v.SetDefault("purchase.readable_id_salt", "novelmaze")
	v.SetDefault("purchase.snowflake_node_id", 1)

	v.SetDefault("notifications.retention_days", 90)

	v.SetDefault("scheduler.normalize_schedule", "*/15 * * * *")
	v.SetDefault("scheduler.cleanup_schedule", "0 3 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/novelmaze/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Gamification and rewards
	_ = v.BindEnv("gamification.xp_per_level", "GAMIFICATION_XP_PER_LEVEL")
	_ = v.BindEnv("gamification.summary_cache_ttl", "GAMIFICATION_SUMMARY_CACHE_TTL")
	_ = v.BindEnv("gamification.achievements_file", "GAMIFICATION_ACHIEVEMENTS_FILE")
	_ = v.BindEnv("rewards.story_completed_xp", "REWARDS_STORY_COMPLETED_XP")
	_ = v.BindEnv("rewards.daily_login_xp", "REWARDS_DAILY_LOGIN_XP")

	// Purchase
	_ = v.BindEnv("purchase.readable_id_salt", "PURCHASE_READABLE_ID_SALT")
	_ = v.BindEnv("purchase.snowflake_node_id", "PURCHASE_SNOWFLAKE_NODE_ID")

	// Notifications
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")
	_ = v.BindEnv("notifications.webhook_enabled", "NOTIFICATIONS_WEBHOOK_ENABLED")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.normalize_schedule", "SCHEDULER_NORMALIZE_SCHEDULE")
	_ = v.BindEnv("scheduler.cleanup_schedule", "SCHEDULER_CLEANUP_SCHEDULE")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Gamification.XPPerLevel <= 0 {
		return fmt.Errorf("gamification.xp_per_level must be positive")
	}
	if c.Rewards.StoryCompletedXP < 0 || c.Rewards.DailyLoginXP < 0 {
		return fmt.Errorf("rewards must not be negative")
	}
	if c.Purchase.SnowflakeNodeID < 0 || c.Purchase.SnowflakeNodeID > 1023 {
		return fmt.Errorf("purchase.snowflake_node_id must be between 0 and 1023")
	}
	if c.Notifications.WebhookEnable && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notifications.webhook_url is required when webhook is enabled")
	}
	if c.Scheduler.Enabled {
		if _, err := c.Scheduler.GetLocation(); err != nil {
			return fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
		}
	}

	return nil
}
