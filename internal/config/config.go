// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/BhekumusaEric/apply4me-sub001/internal/logging"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scheduler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig                   `mapstructure:"server"`
	Logging     logging.Config                 `mapstructure:"logging"`
	Scraper     ScraperConfig                  `mapstructure:"scraper"`
	Headless    HeadlessConfig                 `mapstructure:"headless"`
	Archive     ArchiveConfig                  `mapstructure:"archive"`
	Storage     StorageConfig                  `mapstructure:"storage"`
	DB          DBConfig                       `mapstructure:"db"`
	SQLite      SQLiteConfig                   `mapstructure:"sqlite"`
	Notify      NotifyConfig                   `mapstructure:"notify"`
	PubSub      PubSubConfig                   `mapstructure:"pubsub"`
	Scheduler   SchedulerConfig                `mapstructure:"scheduler"`
	Sources     []opportunity.SourceDescriptor `mapstructure:"sources" validate:"dive"`
	Subscribers []opportunity.Subscriber       `mapstructure:"subscribers" validate:"dive"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScraperConfig governs source fetching.
type ScraperConfig struct {
	UserAgent             string  `mapstructure:"user_agent"`
	Concurrency           int     `mapstructure:"concurrency"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	MaxRetries            int     `mapstructure:"max_retries"`
	BackoffInitialMs      int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int     `mapstructure:"backoff_max_ms"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	RespectRobots         bool    `mapstructure:"respect_robots"`
	DegradedFallback      bool    `mapstructure:"degraded_fallback"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// DigestLength shortens the content hash used in object names.
	DigestLength int `mapstructure:"digest_length"`
}

// StorageConfig selects the canonical entity store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SQLiteConfig locates the single-node database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// NotifyConfig selects and configures the notification transport.
type NotifyConfig struct {
	Transport          string `mapstructure:"transport"`
	FromEmail          string `mapstructure:"from_email"`
	FromName           string `mapstructure:"from_name"`
	AppName            string `mapstructure:"app_name"`
	SendGridAPIKey     string `mapstructure:"sendgrid_api_key"`
	ReminderWindowDays int    `mapstructure:"reminder_window_days"`
	Idempotent         bool   `mapstructure:"idempotent"`
}

// PubSubConfig holds where run summaries are published.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SchedulerConfig sizes the worker pool and lists the tasks.
type SchedulerConfig struct {
	Workers               int                  `mapstructure:"workers"`
	QueueDepth            int                  `mapstructure:"queue_depth"`
	DefaultTimeoutSeconds int                  `mapstructure:"default_timeout_seconds"`
	ClockEnabled          bool                 `mapstructure:"clock_enabled"`
	Timezone              string               `mapstructure:"timezone"`
	Tasks                 []scheduler.TaskSpec `mapstructure:"tasks" validate:"dive"`
}

// Load builds a Config from disk/environment. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APPLY4ME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultTasks is the task registry used when the config file names none.
func DefaultTasks() []scheduler.TaskSpec {
	return []scheduler.TaskSpec{
		{ID: "institution-discovery", Cron: "0 6 * * *", Type: scheduler.TypeScraping,
			Category: string(opportunity.CategoryInstitution), Active: true, Timeout: 30 * time.Minute},
		{ID: "bursary-discovery", Cron: "0 7 * * *", Type: scheduler.TypeScraping,
			Category: string(opportunity.CategoryBursary), Active: true, Timeout: 30 * time.Minute},
		{ID: "deadline-reminders", Cron: "0 9 * * *", Type: scheduler.TypeNotification,
			Category: string(opportunity.NotifyDeadlineReminder), Active: true, Timeout: 10 * time.Minute},
		{ID: "weekly-digest", Cron: "0 8 * * 1", Type: scheduler.TypeNotification,
			Category: string(opportunity.NotifyWeeklyDigest), Active: true, Timeout: 10 * time.Minute},
		{ID: "maintenance-cleanup", Cron: "0 2 * * 0", Type: scheduler.TypeMaintenance,
			Active: true, Timeout: 15 * time.Minute},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (compatible; Apply4MeBot/1.0; +https://apply4me.co.za/bot)")
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.request_timeout_seconds", 20)
	v.SetDefault("scraper.max_retries", 2)
	v.SetDefault("scraper.backoff_initial_ms", 500)
	v.SetDefault("scraper.backoff_max_ms", 5000)
	v.SetDefault("scraper.rate_limit_rps", 1)
	v.SetDefault("scraper.rate_limit_burst", 2)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.degraded_fallback", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.digest_length", 64)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("sqlite.path", "data/apply4me.db")
	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.app_name", "Apply4Me")
	v.SetDefault("notify.from_name", "Apply4Me")
	v.SetDefault("notify.reminder_window_days", 7)
	v.SetDefault("notify.idempotent", true)
	v.SetDefault("scheduler.workers", 2)
	v.SetDefault("scheduler.queue_depth", 16)
	v.SetDefault("scheduler.default_timeout_seconds", 900)
	v.SetDefault("scheduler.clock_enabled", true)
	v.SetDefault("scheduler.timezone", "Africa/Johannesburg")

	tasks := make([]map[string]any, 0, 5)
	for _, t := range DefaultTasks() {
		tasks = append(tasks, map[string]any{
			"id": t.ID, "cron": t.Cron, "type": string(t.Type),
			"category": t.Category, "active": t.Active, "timeout": t.Timeout.String(),
		})
	}
	v.SetDefault("scheduler.tasks", tasks)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.request_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Scheduler.Workers <= 0 || c.Scheduler.QueueDepth <= 0 {
		return fmt.Errorf("scheduler.workers and scheduler.queue_depth must be > 0")
	}
	switch c.Archive.Backend {
	case "", "none", "local", "memory":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if c.Archive.DigestLength != 0 && (c.Archive.DigestLength < 8 || c.Archive.DigestLength > 64) {
		return fmt.Errorf("archive.digest_length must be between 8 and 64")
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, sqlite", c.Storage.Backend)
	}
	switch c.Notify.Transport {
	case "log", "memory":
	case "sendgrid":
		if c.Notify.SendGridAPIKey == "" || c.Notify.FromEmail == "" {
			return fmt.Errorf("notify.sendgrid_api_key and notify.from_email must be set for sendgrid")
		}
	default:
		return fmt.Errorf("notify.transport %q is not one of log, sendgrid, memory", c.Notify.Transport)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is")
	}
	if err := c.validateUnique(); err != nil {
		return err
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}
	return nil
}

func (c Config) validateUnique() error {
	sources := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if sources[s.ID] {
			return fmt.Errorf("sources: duplicate id %q", s.ID)
		}
		sources[s.ID] = true
	}
	tasks := make(map[string]bool, len(c.Scheduler.Tasks))
	for _, t := range c.Scheduler.Tasks {
		if tasks[t.ID] {
			return fmt.Errorf("scheduler.tasks: duplicate id %q", t.ID)
		}
		tasks[t.ID] = true
	}
	return nil
}

// describe flattens validator errors into "Field: tag" pairs.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}

// RequestTimeout is the per-fetch budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.RequestTimeoutSeconds) * time.Second
}

// ReminderWindow is how far ahead deadline reminders look.
func (c Config) ReminderWindow() time.Duration {
	return time.Duration(c.Notify.ReminderWindowDays) * 24 * time.Hour
}

// DefaultTimeout bounds tasks that configure no timeout of their own.
func (c Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Scheduler.DefaultTimeoutSeconds) * time.Second
}
