// Package config provides configuration management for nukevideo using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultProbeTimeout      = 30 * time.Second
	defaultTranscodeTimeout  = time.Hour
	defaultWorkerCount       = 2
	defaultPollInterval      = 5 * time.Second
	defaultLockTimeout       = 30 * time.Minute
	defaultTransferRetries   = 3
	defaultTransferBackoff   = 10 * time.Second
	defaultParallelStreams   = 4
	defaultVodTokenWindow    = time.Hour
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatMaxAge   = 2 * time.Minute
	defaultProbeURLTTL       = 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Node      NodeConfig      `mapstructure:"node"`
	Vod       VodConfig       `mapstructure:"vod"`
}

// ServerConfig holds HTTP server configuration for the webhook surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds object storage and local working area configuration.
type StorageConfig struct {
	// Bucket is the S3 bucket holding originals and transcoded artifacts.
	Bucket string `mapstructure:"bucket"`
	// Region is the AWS region for the bucket.
	Region string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint (MinIO and friends). Empty = AWS.
	Endpoint string `mapstructure:"endpoint"`
	// UploadPrefix is the key prefix that ingestion webhooks are filtered to.
	UploadPrefix string `mapstructure:"upload_prefix"`
	// WorkDir is the local transient working area for in-flight items.
	WorkDir string `mapstructure:"work_dir"`
	// ProbeURLTTL is the lifetime of presigned URLs handed to ffprobe.
	ProbeURLTTL time.Duration `mapstructure:"probe_url_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath       string        `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = PATH lookup)
	ProbePath        string        `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = PATH lookup)
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout"`
	// CatalogPath points at an optional YAML parameter catalog overriding
	// the built-in codec/parameter table.
	CatalogPath string `mapstructure:"catalog_path"`
}

// WorkflowConfig holds job queue and chain execution configuration.
type WorkflowConfig struct {
	WorkerCount     int           `mapstructure:"worker_count"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	TransferRetries int           `mapstructure:"transfer_retries"`
	TransferBackoff time.Duration `mapstructure:"transfer_backoff"`
	// ParallelStreams caps concurrent stream jobs within one process batch.
	ParallelStreams int `mapstructure:"parallel_streams"`
	// CleanupSchedule is a cron expression for pruning finished queue records.
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	CleanupAge      time.Duration `mapstructure:"cleanup_age"`
}

// IngestionConfig holds upload webhook handling configuration.
type IngestionConfig struct {
	// AllowedContentTypes is the source container allow-list.
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	// DeleteRejected removes the uploaded object when plan building fails.
	DeleteRejected bool `mapstructure:"delete_rejected"`
}

// NodeConfig holds worker-node identity and heartbeat configuration.
type NodeConfig struct {
	// Name identifies this process's node row. Empty disables self-registration.
	Name              string        `mapstructure:"name"`
	Capacity          int           `mapstructure:"capacity"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// HeartbeatMaxAge is how stale a heartbeat may be before the sweep
	// deactivates the node.
	HeartbeatMaxAge time.Duration `mapstructure:"heartbeat_max_age"`
	// SweepSchedule is a cron expression for the health sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// VodConfig holds VOD link signing configuration.
type VodConfig struct {
	// TokenSecret is the hex-encoded HMAC secret.
	TokenSecret string        `mapstructure:"token_secret"`
	TokenName   string        `mapstructure:"token_name"`
	TokenWindow time.Duration `mapstructure:"token_window"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with NUKEVIDEO_, using underscores for nesting.
// Example: NUKEVIDEO_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nukevideo")
		v.AddConfigPath("$HOME/.nukevideo")
	}

	v.SetEnvPrefix("NUKEVIDEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "nukevideo.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.bucket", "nukevideo")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.upload_prefix", "tmp-videos/")
	v.SetDefault("storage.work_dir", "/var/lib/nukevideo/work")
	v.SetDefault("storage.probe_url_ttl", defaultProbeURLTTL)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.transcode_timeout", defaultTranscodeTimeout)

	v.SetDefault("workflow.worker_count", defaultWorkerCount)
	v.SetDefault("workflow.poll_interval", defaultPollInterval)
	v.SetDefault("workflow.lock_timeout", defaultLockTimeout)
	v.SetDefault("workflow.transfer_retries", defaultTransferRetries)
	v.SetDefault("workflow.transfer_backoff", defaultTransferBackoff)
	v.SetDefault("workflow.parallel_streams", defaultParallelStreams)
	v.SetDefault("workflow.cleanup_schedule", "0 0 3 * * *")
	v.SetDefault("workflow.cleanup_age", 7*24*time.Hour)

	v.SetDefault("ingestion.allowed_content_types", []string{
		"video/mp4", "video/x-matroska", "video/matroska",
	})
	v.SetDefault("ingestion.delete_rejected", true)

	v.SetDefault("node.capacity", 4)
	v.SetDefault("node.heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("node.heartbeat_max_age", defaultHeartbeatMaxAge)
	v.SetDefault("node.sweep_schedule", "0 * * * * *")

	v.SetDefault("vod.token_name", "__hdnea__")
	v.SetDefault("vod.token_window", defaultVodTokenWindow)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.Storage.WorkDir == "" {
		return fmt.Errorf("storage work_dir is required")
	}

	if c.Workflow.WorkerCount < 1 {
		return fmt.Errorf("workflow worker_count must be at least 1")
	}
	if c.Workflow.ParallelStreams < 1 {
		return fmt.Errorf("workflow parallel_streams must be at least 1")
	}
	if c.Workflow.TransferRetries < 0 {
		return fmt.Errorf("workflow transfer_retries must not be negative")
	}

	if len(c.Ingestion.AllowedContentTypes) == 0 {
		return fmt.Errorf("ingestion allowed_content_types must not be empty")
	}

	return nil
}
