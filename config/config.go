package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Push      PushConfig      `yaml:"push"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queues    QueuesConfig    `yaml:"queues"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey      string        `yaml:"vapid_public_key"`
	PrivateKey     string        `yaml:"vapid_private_key"`
	Subject        string        `yaml:"subject"`
	TTL            int           `yaml:"ttl"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// EmailConfig configures the optional SendGrid missed-dose alert.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromName       string `yaml:"from_name"`
	FromAddress    string `yaml:"from_address"`
}

// Enabled reports whether missed-dose e-mails can be sent.
func (e EmailConfig) Enabled() bool {
	return e.SendGridAPIKey != "" && e.FromAddress != ""
}

// SchedulerConfig controls dose timing and the daily sweep.
type SchedulerConfig struct {
	Timezone             string         `yaml:"timezone"`
	Location             *time.Location `yaml:"-"`
	DailyCron            string         `yaml:"daily_cron"`
	RunOnStart           bool           `yaml:"run_on_start"`
	LateGraceMinutes     int            `yaml:"late_grace_minutes"`
	LateThresholdMinutes int            `yaml:"late_threshold_minutes"`
	SweepConcurrency     int            `yaml:"sweep_concurrency"`
	UserTimeoutSeconds   int            `yaml:"user_timeout_seconds"`
	LateGrace            time.Duration  `yaml:"-"`
	LateThreshold        time.Duration  `yaml:"-"`
	UserTimeout          time.Duration  `yaml:"-"`
}

// QueueConfig configures one logical delayed-job queue.
type QueueConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffInitialMS int           `yaml:"backoff_initial_ms"`
	BackoffInitial   time.Duration `yaml:"-"`
}

// QueuesConfig holds settings shared by both queues and each queue's own.
type QueuesConfig struct {
	PollIntervalMS    int           `yaml:"poll_interval_ms"`
	LeaseSeconds      int           `yaml:"lease_seconds"`
	JobTimeoutSeconds int           `yaml:"job_timeout_seconds"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"-"`
	Lease             time.Duration `yaml:"-"`
	JobTimeout        time.Duration `yaml:"-"`
	Notification      QueueConfig   `yaml:"notification"`
	MissedCheck       QueueConfig   `yaml:"missed_check"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment (or a .env file loaded
// by the caller) instead of the YAML file.
func (cfg *Config) applyEnv() {
	for key, dst := range map[string]*string{
		"DATABASE_DSN":      &cfg.Database.DSN,
		"VAPID_PUBLIC_KEY":  &cfg.Push.PublicKey,
		"VAPID_PRIVATE_KEY": &cfg.Push.PrivateKey,
		"SENDGRID_API_KEY":  &cfg.Email.SendGridAPIKey,
	} {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			*dst = val
		}
	}
}

// Default returns a configuration with every default applied, suitable for tests.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file::memory:?cache=shared"
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.TimeoutSeconds <= 0 {
		cfg.Push.TimeoutSeconds = 10
	}
	cfg.Push.Timeout = time.Duration(cfg.Push.TimeoutSeconds) * time.Second

	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Medication Reminder"
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	cfg.Scheduler.Location = loc
	if cfg.Scheduler.DailyCron == "" {
		cfg.Scheduler.DailyCron = "1 0 * * *"
	}
	if cfg.Scheduler.LateGraceMinutes <= 0 {
		cfg.Scheduler.LateGraceMinutes = 10
	}
	if cfg.Scheduler.LateThresholdMinutes <= 0 {
		cfg.Scheduler.LateThresholdMinutes = 10
	}
	if cfg.Scheduler.SweepConcurrency <= 0 {
		cfg.Scheduler.SweepConcurrency = 10
	}
	if cfg.Scheduler.UserTimeoutSeconds <= 0 {
		cfg.Scheduler.UserTimeoutSeconds = 60
	}
	cfg.Scheduler.LateGrace = time.Duration(cfg.Scheduler.LateGraceMinutes) * time.Minute
	cfg.Scheduler.LateThreshold = time.Duration(cfg.Scheduler.LateThresholdMinutes) * time.Minute
	cfg.Scheduler.UserTimeout = time.Duration(cfg.Scheduler.UserTimeoutSeconds) * time.Second

	if cfg.Queues.PollIntervalMS <= 0 {
		cfg.Queues.PollIntervalMS = 1000
	}
	if cfg.Queues.LeaseSeconds <= 0 {
		cfg.Queues.LeaseSeconds = 60
	}
	if cfg.Queues.JobTimeoutSeconds <= 0 {
		cfg.Queues.JobTimeoutSeconds = 30
	}
	if cfg.Queues.BatchSize <= 0 {
		cfg.Queues.BatchSize = 50
	}
	cfg.Queues.PollInterval = time.Duration(cfg.Queues.PollIntervalMS) * time.Millisecond
	cfg.Queues.Lease = time.Duration(cfg.Queues.LeaseSeconds) * time.Second
	cfg.Queues.JobTimeout = time.Duration(cfg.Queues.JobTimeoutSeconds) * time.Second

	// Reminder delivery is retried; a lost missed-check only leaves a dose PENDING.
	applyQueueDefaults(&cfg.Queues.Notification, 3)
	applyQueueDefaults(&cfg.Queues.MissedCheck, 1)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return nil
}

func applyQueueDefaults(q *QueueConfig, attempts int) {
	if q.Concurrency <= 0 {
		q.Concurrency = 10
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = attempts
	}
	if q.BackoffInitialMS <= 0 {
		q.BackoffInitialMS = 1000
	}
	q.BackoffInitial = time.Duration(q.BackoffInitialMS) * time.Millisecond
}
