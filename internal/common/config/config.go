package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// EngineConfig holds the dispatch engine tunables.
type EngineConfig struct {
	// Cooldown windows per previous severity; CooldownDefault applies to
	// severities without an explicit entry.
	CooldownCritical time.Duration `mapstructure:"cooldown_critical"`
	CooldownDefault  time.Duration `mapstructure:"cooldown_default"`

	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RescheduleDelay time.Duration `mapstructure:"reschedule_delay"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	PageSize           int `mapstructure:"page_size"`
	WorkerPoolSize     int `mapstructure:"worker_pool_size"`

	SendTimeout time.Duration `mapstructure:"send_timeout"`

	EscalateUnreadThreshold int           `mapstructure:"escalate_unread_threshold"`
	EscalateAfter           time.Duration `mapstructure:"escalate_after"`

	// SMSSeverityThreshold is the minimum severity routed to SMS.
	SMSSeverityThreshold string `mapstructure:"sms_severity_threshold"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	HistoryIndex string   `mapstructure:"history_index"`
}

// ChannelsConfig holds settings for the delivery channel adapters.
type ChannelsConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	InApp struct {
		Enabled     bool   `mapstructure:"enabled"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"in_app"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// SchedulerConfig holds the fixed cadences of the periodic jobs.
type SchedulerConfig struct {
	Timezone          string `mapstructure:"timezone"`
	DailyScanCron     string `mapstructure:"daily_scan_cron"`     // deadline scans
	SyncScanEvery     string `mapstructure:"sync_scan_every"`     // threshold scans
	DispatchEvery     string `mapstructure:"dispatch_every"`      // dispatcher cycle
	CooldownResetCron string `mapstructure:"cooldown_reset_cron"` // full cooldown reset
	CleanupEvery      string `mapstructure:"cleanup_every"`       // stale batch status
	EscalationEvery   string `mapstructure:"escalation_every"`    // age-based escalation sweep
}

// ScanConfig holds the deadline scan policy.
type ScanConfig struct {
	ReminderDays []int `mapstructure:"reminder_days"` // days before due date
	OverdueHigh  int   `mapstructure:"overdue_high"`  // days late -> HIGH
	OverdueCrit  int   `mapstructure:"overdue_crit"`  // days late -> CRITICAL
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
