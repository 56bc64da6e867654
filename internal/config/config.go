// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Port            string        `yaml:"port" env:"PORT"`
	DatabaseFile    string        `yaml:"databaseFile" env:"DATABASE_FILE"`
	BackupDir       string        `yaml:"backupDir" env:"BACKUP_DIR"`
	BackupRetention int           `yaml:"backupRetention" env:"BACKUP_RETENTION"`
	PollInterval    time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`

	TelegramToken  string `yaml:"telegramBotToken" env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL string `yaml:"telegramApiUrl" env:"TELEGRAM_API_URL"`
	WebhookURL     string `yaml:"webhookUrl" env:"WEBHOOK_URL"`
	WebhookSecret  string `yaml:"webhookSecret" env:"WEBHOOK_SECRET"`

	AdminToken string   `yaml:"adminToken" env:"ADMIN_TOKEN"`
	AdminIDs   []string `yaml:"adminIds" env:"ADMIN_IDS" envSeparator:","`

	// RedisURL enables the per-group delivery guard when set.
	RedisURL         string        `yaml:"redisUrl" env:"REDIS_URL"`
	FailureThreshold int           `yaml:"failureThreshold" env:"GROUP_FAILURE_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown" env:"GROUP_BREAKER_COOLDOWN"`
	GroupRateLimit   int           `yaml:"groupRateLimit" env:"GROUP_RATE_LIMIT"`
	GroupRateWindow  time.Duration `yaml:"groupRateWindow" env:"GROUP_RATE_WINDOW"`

	DeliveryConcurrency int `yaml:"deliveryConcurrency" env:"DELIVERY_CONCURRENCY"`
	BroadcastWorkers    int `yaml:"broadcastWorkers" env:"BROADCAST_WORKERS"`

	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"LOG_FORMAT"`

	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	MonitorStopTimeout time.Duration `yaml:"monitorStopTimeout" env:"MONITOR_STOP_TIMEOUT"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Port:                "8080",
		DatabaseFile:        "bot_database.db",
		BackupDir:           "backups",
		BackupRetention:     5,
		PollInterval:        30 * time.Second,
		TelegramAPIURL:      "https://api.telegram.org",
		FailureThreshold:    5,
		BreakerCooldown:     30 * time.Second,
		GroupRateLimit:      20,
		GroupRateWindow:     time.Minute,
		DeliveryConcurrency: 4,
		BroadcastWorkers:    8,
		LogLevel:            "info",
		LogFormat:           "json",
		ShutdownTimeout:     10 * time.Second,
		MonitorStopTimeout:  5 * time.Second,
	}
}

// Load applies the YAML file at path (skipped when path is empty) and then
// environment variables on top of the defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// Unset variables leave the current value in place.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.AdminIDs = cleanList(cfg.AdminIDs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TelegramToken) == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if strings.TrimSpace(c.DatabaseFile) == "" {
		errs = append(errs, errors.New("DATABASE_FILE is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.DeliveryConcurrency <= 0 {
		errs = append(errs, errors.New("DELIVERY_CONCURRENCY must be positive"))
	}
	if c.BroadcastWorkers <= 0 {
		errs = append(errs, errors.New("BROADCAST_WORKERS must be positive"))
	}
	if c.BackupRetention <= 0 {
		errs = append(errs, errors.New("BACKUP_RETENTION must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
