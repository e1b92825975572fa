package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	MeterFeed  MeterFeedConfig  `yaml:"meter_feed"`
	History    HistoryConfig    `yaml:"history"`
	Alarms     AlarmsConfig     `yaml:"alarms"`
}

// WorkerPoolConfig holds the configuration for the notification dispatcher.
type WorkerPoolConfig struct {
	Size                int           `yaml:"size"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	BatchSize           int           `yaml:"batch_size"`
	MaxAttempts         int           `yaml:"max_attempts"`
	BaseBackoffSeconds  int           `yaml:"base_backoff_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	UserIDHeader    string  `yaml:"user_id_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// MeterFeedConfig configures the upstream hour-meter poller.
type MeterFeedConfig struct {
	Enabled         bool             `yaml:"enabled"`
	IntervalSeconds int              `yaml:"interval_seconds"`
	Interval        time.Duration    `yaml:"-"`
	HTTPProxy       string           `yaml:"http_proxy"`
	Request         MeterFeedRequest `yaml:"request"`
}

// MeterFeedRequest defines the HTTP request sent to the telemetry API.
type MeterFeedRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// HistoryConfig bounds the embedded histories and their paginated views.
type HistoryConfig struct {
	EventCapacity   int `yaml:"event_capacity"`
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// AlarmsConfig configures maintenance alarm processing.
type AlarmsConfig struct {
	MaintenanceTypeName string `yaml:"maintenance_type_name"`
	Language            string `yaml:"language"`
	MaxWriteAttempts    int    `yaml:"max_write_attempts"`
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
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.UserIDHeader == "" {
		cfg.Server.UserIDHeader = "X-User-ID"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.MeterFeed.IntervalSeconds <= 0 {
		cfg.MeterFeed.IntervalSeconds = 300
	}
	cfg.MeterFeed.Interval = time.Duration(cfg.MeterFeed.IntervalSeconds) * time.Second
	if cfg.MeterFeed.Request.PageSize <= 0 {
		cfg.MeterFeed.Request.PageSize = 100
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		zap.S().Infof("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.PollIntervalSeconds <= 0 {
		cfg.WorkerPool.PollIntervalSeconds = 5
	}
	cfg.WorkerPool.PollInterval = time.Duration(cfg.WorkerPool.PollIntervalSeconds) * time.Second
	if cfg.WorkerPool.BatchSize <= 0 {
		cfg.WorkerPool.BatchSize = 50
	}
	if cfg.WorkerPool.MaxAttempts <= 0 {
		cfg.WorkerPool.MaxAttempts = 5
	}
	if cfg.WorkerPool.BaseBackoffSeconds <= 0 {
		cfg.WorkerPool.BaseBackoffSeconds = 10
	}

	if cfg.History.EventCapacity <= 0 {
		cfg.History.EventCapacity = 500
	}
	if cfg.History.MaxPageSize <= 0 {
		cfg.History.MaxPageSize = 100
	}
	if cfg.History.DefaultPageSize <= 0 {
		cfg.History.DefaultPageSize = 20
	}

	if cfg.Alarms.MaintenanceTypeName == "" {
		cfg.Alarms.MaintenanceTypeName = "Maintenance due"
	}
	if cfg.Alarms.Language == "" {
		cfg.Alarms.Language = "en"
	}
	if cfg.Alarms.MaxWriteAttempts <= 0 {
		cfg.Alarms.MaxWriteAttempts = 5
	}
}

// Validate rejects combinations the service cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set")
	}
	if cfg.History.DefaultPageSize > cfg.History.MaxPageSize {
		return fmt.Errorf("history.default_page_size (%d) exceeds history.max_page_size (%d)",
			cfg.History.DefaultPageSize, cfg.History.MaxPageSize)
	}
	if cfg.MeterFeed.Enabled && cfg.MeterFeed.Request.URL == "" {
		return fmt.Errorf("meter_feed.request.url must be set when the feed is enabled")
	}
	return nil
}
