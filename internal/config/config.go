// Package config provides configuration management for the auction tracker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "auction-tracker/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Store         StoreConfig        `mapstructure:"store"`
	Sweep         SweepConfig        `mapstructure:"sweep"`
	Poller        PollerConfig       `mapstructure:"poller"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// StoreConfig holds data store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SweepConfig holds the policy constants of the end-of-auction sweep.
type SweepConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	DispatchAttempts int           `mapstructure:"dispatch_attempts"`
}

// PollerConfig holds the legacy countdown poller configuration.
type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	ResultsBaseURL string         `mapstructure:"results_base_url"`
	Outbox         OutboxConfig   `mapstructure:"outbox"`
	Webhook        WebhookConfig  `mapstructure:"webhook"`
	Email          EmailConfig    `mapstructure:"email"`
	Terminal       TerminalConfig `mapstructure:"terminal"`
	Breaker        BreakerConfig  `mapstructure:"breaker"`
}

// OutboxConfig controls writing messages to the store's mail table.
type OutboxConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TerminalConfig controls printing messages to the console while serving.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bell    bool `mapstructure:"bell"`
}

// BreakerConfig guards the remote channels. A channel that fails
// FailureThreshold times in a row is skipped until Cooldown has passed.
// A zero threshold disables the breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/auction-tracker"
	}
	return filepath.Join(home, ".config", "auction-tracker")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Secrets may live in a .env file next to config.toml
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file overrides anything.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("store.path", filepath.Join(configDir, "auctions.db"))

	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.batch_size", 50)
	v.SetDefault("sweep.concurrency", 10)
	v.SetDefault("sweep.dispatch_attempts", 1)

	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", time.Minute)

	v.SetDefault("notifications.results_base_url", "https://yourapp.com")
	v.SetDefault("notifications.outbox.enabled", true)
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.terminal.enabled", false)
	v.SetDefault("notifications.terminal.bell", true)
	v.SetDefault("notifications.breaker.failure_threshold", 5)
	v.SetDefault("notifications.breaker.cooldown", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "tracker.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUCTION_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AUCTION_RESULTS_BASE_URL"); v != "" {
		cfg.Notifications.ResultsBaseURL = v
	}

	// SMTP credentials
	if v := os.Getenv("AUCTION_SMTP_HOST"); v != "" {
		cfg.Notifications.Email.SMTPHost = v
	}
	if v := os.Getenv("AUCTION_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notifications.Email.SMTPPort = port
		}
	}
	if v := os.Getenv("AUCTION_SMTP_USER"); v != "" {
		cfg.Notifications.Email.Username = v
	}
	if v := os.Getenv("AUCTION_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("AUCTION_SMTP_FROM"); v != "" {
		cfg.Notifications.Email.From = v
	}

	if v := os.Getenv("AUCTION_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
	if v := os.Getenv("AUCTION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}

	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep.batch_size must be positive")
	}
	if c.Sweep.Concurrency <= 0 {
		return fmt.Errorf("sweep.concurrency must be positive")
	}
	if c.Sweep.DispatchAttempts < 1 {
		return fmt.Errorf("sweep.dispatch_attempts must be at least 1")
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}

	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.SMTPHost == "" || c.Notifications.Email.From == "" {
			return fmt.Errorf("email notifications need smtp_host and from")
		}
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook notifications need a url")
	}

	if c.Notifications.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("notifications.breaker.failure_threshold must not be negative")
	}
	if c.Notifications.Breaker.FailureThreshold > 0 && c.Notifications.Breaker.Cooldown <= 0 {
		return fmt.Errorf("notifications.breaker.cooldown must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}
