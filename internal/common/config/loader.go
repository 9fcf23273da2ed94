package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DB_PASSWORD -> database.postgres.password
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	// Try multiple paths (for running from different directories)
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Database.Elasticsearch.Password == "" {
		if val := os.Getenv("ELASTICSEARCH_PASSWORD"); val != "" {
			cfg.Database.Elasticsearch.Password = val
		}
	}
	if cfg.Channels.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Channels.AWS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notify-engine"
	}

	// Engine defaults
	if cfg.Engine.CooldownCritical == 0 {
		cfg.Engine.CooldownCritical = 2 * time.Minute
	}
	if cfg.Engine.CooldownDefault == 0 {
		cfg.Engine.CooldownDefault = 5 * time.Minute
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Engine.RetryBaseDelay == 0 {
		cfg.Engine.RetryBaseDelay = 5 * time.Second
	}
	if cfg.Engine.RescheduleDelay == 0 {
		cfg.Engine.RescheduleDelay = 5 * time.Minute
	}
	if cfg.Engine.RateLimitPerMinute == 0 {
		cfg.Engine.RateLimitPerMinute = 60
	}
	if cfg.Engine.PageSize == 0 {
		cfg.Engine.PageSize = 100
	}
	if cfg.Engine.WorkerPoolSize == 0 {
		cfg.Engine.WorkerPoolSize = 8
	}
	if cfg.Engine.SendTimeout == 0 {
		cfg.Engine.SendTimeout = 10 * time.Second
	}
	if cfg.Engine.EscalateUnreadThreshold == 0 {
		cfg.Engine.EscalateUnreadThreshold = 3
	}
	if cfg.Engine.EscalateAfter == 0 {
		cfg.Engine.EscalateAfter = 72 * time.Hour
	}
	if cfg.Engine.SMSSeverityThreshold == "" {
		cfg.Engine.SMSSeverityThreshold = "HIGH"
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Elasticsearch.HistoryIndex == "" {
		cfg.Database.Elasticsearch.HistoryIndex = "notification-history"
	}

	// Scheduler defaults
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Scheduler.DailyScanCron == "" {
		cfg.Scheduler.DailyScanCron = "0 9 * * *"
	}
	if cfg.Scheduler.SyncScanEvery == "" {
		cfg.Scheduler.SyncScanEvery = "@every 5m"
	}
	if cfg.Scheduler.DispatchEvery == "" {
		cfg.Scheduler.DispatchEvery = "@every 30s"
	}
	if cfg.Scheduler.CooldownResetCron == "" {
		cfg.Scheduler.CooldownResetCron = "0 0 * * *"
	}
	if cfg.Scheduler.CleanupEvery == "" {
		cfg.Scheduler.CleanupEvery = "@every 1h"
	}
	if cfg.Scheduler.EscalationEvery == "" {
		cfg.Scheduler.EscalationEvery = "@every 1h"
	}

	// Scan defaults
	if len(cfg.Scan.ReminderDays) == 0 {
		cfg.Scan.ReminderDays = []int{7, 3, 1}
	}
	if cfg.Scan.OverdueHigh == 0 {
		cfg.Scan.OverdueHigh = 7
	}
	if cfg.Scan.OverdueCrit == 0 {
		cfg.Scan.OverdueCrit = 30
	}

	// Channel defaults
	if cfg.Channels.InApp.TopicPrefix == "" {
		cfg.Channels.InApp.TopicPrefix = "notifications"
	}
	if cfg.Channels.AWS.Region == "" {
		cfg.Channels.AWS.Region = "us-east-1"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Channels.Email.Enabled && cfg.Channels.Email.FromEmail == "" {
		return fmt.Errorf("channels.email.from_email is required when email is enabled")
	}
	if cfg.Engine.PageSize < 1 {
		return fmt.Errorf("engine.page_size must be positive")
	}
	if cfg.Engine.RateLimitPerMinute < 1 {
		return fmt.Errorf("engine.rate_limit_per_minute must be positive")
	}
	return nil
}
