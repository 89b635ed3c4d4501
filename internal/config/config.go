package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Config holds all configuration for the bounce pipeline.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Bounce    BounceConfig    `yaml:"bounce"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for the dedup store and
// distributed locks.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BounceActionRule is the configured response for one bounce kind: what to do
// and after how many bounces. Threshold must be >= 1 for any action other
// than none.
type BounceActionRule struct {
	Action    domain.BounceAction `yaml:"action"`
	Threshold int                 `yaml:"threshold"`
}

// BounceConfig maps each bounce kind to its action rule. Kinds absent from
// the map have no configured behavior; the engine surfaces that as a
// configuration error rather than defaulting to a lenient action.
type BounceConfig struct {
	Actions      map[domain.BounceType]BounceActionRule `yaml:"actions"`
	DedupTTLHrs  int                                    `yaml:"dedup_ttl_hours"`
}

// Rule returns the action rule for a bounce kind and whether one is configured.
func (c BounceConfig) Rule(t domain.BounceType) (BounceActionRule, bool) {
	r, ok := c.Actions[t]
	return r, ok
}

// DedupTTL returns how long processed event IDs are remembered.
func (c BounceConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLHrs) * time.Hour
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Partitions int `yaml:"partitions"`
	QueueSize  int `yaml:"queue_size"`
}

// TrackingConfig holds the internal engagement tracking settings (open pixel
// and click redirect events published through SQS).
type TrackingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	QueueURL    string `yaml:"queue_url"`
	AWSRegion   string `yaml:"aws_region"`
	AWSProfile  string `yaml:"aws_profile"`
	RedirectURL string `yaml:"redirect_url"`
}

// ArchiveConfig holds webhook log archival settings.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	AWSRegion     string `yaml:"aws_region"`
	RetentionDays int    `yaml:"retention_days"`
	IntervalHours int    `yaml:"interval_hours"`
}

// Interval returns the archival sweep interval as a duration.
func (c ArchiveConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// ReconcileConfig holds the periodic audit settings.
type ReconcileConfig struct {
	IntervalMinutes int   `yaml:"interval_minutes"`
	WindowHours     int   `yaml:"window_hours"`
	DriftTolerance  int64 `yaml:"drift_tolerance"`
}

// Interval returns the audit interval as a duration.
func (c ReconcileConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Window returns the audit lookback window as a duration.
func (c ReconcileConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// WebhooksConfig toggles the per-provider webhook endpoints.
type WebhooksConfig struct {
	SparkPostEnabled bool `yaml:"sparkpost_enabled"`
	SESEnabled       bool `yaml:"ses_enabled"`
	MailgunEnabled   bool `yaml:"mailgun_enabled"`
	GenericEnabled   bool `yaml:"generic_enabled"`
}

// Load reads and parses the configuration file, applies defaults and
// validates the bounce action rules.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Bounce.DedupTTLHrs == 0 {
		cfg.Bounce.DedupTTLHrs = 72
	}
	if cfg.Ingest.Partitions == 0 {
		cfg.Ingest.Partitions = 8
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 1000
	}
	if cfg.Archive.RetentionDays == 0 {
		cfg.Archive.RetentionDays = 90
	}
	if cfg.Archive.IntervalHours == 0 {
		cfg.Archive.IntervalHours = 24
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "webhook-logs"
	}
	if cfg.Reconcile.IntervalMinutes == 0 {
		cfg.Reconcile.IntervalMinutes = 60
	}
	if cfg.Reconcile.WindowHours == 0 {
		cfg.Reconcile.WindowHours = 24
	}

	if err := cfg.Bounce.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks every configured bounce action rule. A threshold below 1
// for an acting rule would trigger on the zeroth bounce, so it is rejected
// at load time rather than surfacing as engine behavior.
func (c BounceConfig) validate() error {
	for kind, rule := range c.Actions {
		if !kind.Valid() {
			return fmt.Errorf("bounce config: unknown bounce kind %q", kind)
		}
		switch rule.Action {
		case domain.ActionNone, domain.ActionBlocklist, domain.ActionDelete:
		default:
			return fmt.Errorf("bounce config: unknown action %q for kind %q", rule.Action, kind)
		}
		if rule.Action != domain.ActionNone && rule.Threshold < 1 {
			return fmt.Errorf("bounce config: kind %q action %q requires threshold >= 1, got %d",
				kind, rule.Action, rule.Threshold)
		}
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if queueURL := os.Getenv("TRACKING_QUEUE_URL"); queueURL != "" {
		cfg.Tracking.QueueURL = queueURL
		cfg.Tracking.Enabled = true
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if cfg.Tracking.AWSRegion == "" {
			cfg.Tracking.AWSRegion = region
		}
		if cfg.Archive.AWSRegion == "" {
			cfg.Archive.AWSRegion = region
		}
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		cfg.Archive.Enabled = true
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}
