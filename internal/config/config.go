// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/archivesync/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Storage    StorageConfig    `mapstructure:"storage"`
	FailureLog FailureLogConfig `mapstructure:"failure_log"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ArchiveConfig describes the local yearly archive and its remote layout.
type ArchiveConfig struct {
	Root             string   `mapstructure:"root"`
	Layout           string   `mapstructure:"layout"`            // consolidated, per-year
	VariantPattern   string   `mapstructure:"variant_pattern"`   // e.g. {year}_*.csv
	RequiredVariants []string `mapstructure:"required_variants"` // e.g. [full, missing_lat_long]
	MostRecentOnly   bool     `mapstructure:"most_recent_only"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PartSize        int64  `mapstructure:"part_size"`   // multipart part size in bytes
	Concurrency     int    `mapstructure:"concurrency"` // parts in flight per object
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// FailureLogConfig selects where upload failures are recorded.
type FailureLogConfig struct {
	Type string `mapstructure:"type"` // file, sqlite
	Path string `mapstructure:"path"`
}

// SyncConfig holds reconciliation tunables.
type SyncConfig struct {
	Workers  int           `mapstructure:"workers"`
	Interval time.Duration `mapstructure:"interval"`
	Retry    RetryConfig   `mapstructure:"retry"`
	Watch    bool          `mapstructure:"watch"`
}

// RetryConfig configures the retry policy for remote operations.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Archive defaults
	viper.SetDefault("archive.root", "./archive")
	viper.SetDefault("archive.layout", string(domain.LayoutConsolidated))
	viper.SetDefault("archive.variant_pattern", "{year}_*.csv")
	viper.SetDefault("archive.required_variants", []string{})
	viper.SetDefault("archive.most_recent_only", false)

	// Storage defaults
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "./bucket")
	viper.SetDefault("storage.s3.part_size", 16*1024*1024)
	viper.SetDefault("storage.s3.concurrency", 4)

	// Registered so the values can come from the environment alone
	for _, key := range []string{
		"storage.s3.bucket", "storage.s3.region", "storage.s3.prefix", "storage.s3.endpoint",
		"storage.s3.access_key_id", "storage.s3.secret_access_key",
		"storage.azure.container", "storage.azure.account_name", "storage.azure.account_key",
		"storage.azure.connection_string", "storage.azure.prefix",
	} {
		viper.SetDefault(key, "")
	}

	// Failure log defaults
	viper.SetDefault("failure_log.type", "file")
	viper.SetDefault("failure_log.path", "./upload_failures.log")

	// Sync defaults
	viper.SetDefault("sync.workers", 4)
	viper.SetDefault("sync.interval", 24*time.Hour)
	viper.SetDefault("sync.retry.max_attempts", 5)
	viper.SetDefault("sync.retry.delay", 5*time.Second)
	viper.SetDefault("sync.retry.max_delay", time.Minute)
	viper.SetDefault("sync.retry.multiplier", 1.0)
	viper.SetDefault("sync.watch", false)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("ARCHIVESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/archivesync")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Archive.Root == "" {
		return &domain.ConfigError{Field: "archive.root", Message: "is required"}
	}
	if _, err := domain.ParseKeyLayout(c.Archive.Layout); err != nil {
		return &domain.ConfigError{Field: "archive.layout", Message: err.Error()}
	}
	if c.Archive.VariantPattern != "" && !strings.Contains(c.Archive.VariantPattern, "{year}") {
		return &domain.ConfigError{Field: "archive.variant_pattern", Message: "must contain {year}"}
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return &domain.ConfigError{Field: "storage.local_path", Message: "local storage path is required"}
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return &domain.ConfigError{Field: "storage.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.Storage.S3.Region == "" {
			return &domain.ConfigError{Field: "storage.s3.region", Message: "S3 region is required"}
		}
		if c.Storage.S3.PartSize != 0 && c.Storage.S3.PartSize < 5*1024*1024 {
			return &domain.ConfigError{Field: "storage.s3.part_size", Message: "must be at least 5 MiB"}
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return &domain.ConfigError{Field: "storage.azure.container", Message: "azure container is required"}
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return &domain.ConfigError{Field: "storage.azure", Message: "azure account name or connection string is required"}
		}
	default:
		return &domain.ConfigError{Field: "storage.type", Message: fmt.Sprintf("unknown storage type: %s", c.Storage.Type)}
	}

	switch c.FailureLog.Type {
	case "file", "sqlite":
		if c.FailureLog.Path == "" {
			return &domain.ConfigError{Field: "failure_log.path", Message: "is required"}
		}
	default:
		return &domain.ConfigError{Field: "failure_log.type", Message: fmt.Sprintf("unknown failure log type: %s", c.FailureLog.Type)}
	}

	if c.Sync.Workers < 1 {
		return &domain.ConfigError{Field: "sync.workers", Message: fmt.Sprintf("must be at least 1, got %d", c.Sync.Workers)}
	}
	if c.Sync.Interval <= 0 {
		return &domain.ConfigError{Field: "sync.interval", Message: "must be positive"}
	}
	if c.Sync.Retry.MaxAttempts < 1 {
		return &domain.ConfigError{Field: "sync.retry.max_attempts", Message: "must be at least 1"}
	}
	if c.Sync.Retry.Delay < 0 {
		return &domain.ConfigError{Field: "sync.retry.delay", Message: "must not be negative"}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}

	return nil
}

// KeyLayout returns the parsed remote key layout.
func (c *ArchiveConfig) KeyLayout() domain.KeyLayout {
	l, err := domain.ParseKeyLayout(c.Layout)
	if err != nil {
		return domain.LayoutConsolidated
	}
	return l
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
