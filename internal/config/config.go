package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Auth            AuthConfig            `yaml:"auth"`
	Worker          WorkerConfig          `yaml:"worker"`
	Log             LogConfig             `yaml:"log"`
	Orchestrator    OrchestratorConfig    `yaml:"orchestrator"`
	SnapshotStorage SnapshotStorageConfig `yaml:"snapshot_storage"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SnapshotInterval Duration `yaml:"snapshot_interval"`
	SnapshotDir      string   `yaml:"snapshot_dir"`
	PurgeInterval    Duration `yaml:"purge_interval"`
	// PurgeRetention is how long a soft-deleted client is kept before purge.
	PurgeRetention Duration `yaml:"purge_retention"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OrchestratorConfig tunes multi-step saves.
type OrchestratorConfig struct {
	// CollectionConcurrency bounds how many child collections save at once.
	CollectionConcurrency int `yaml:"collection_concurrency"`
}

// SnapshotStorageConfig contains S3-compatible off-site snapshot settings.
// An empty Bucket keeps snapshots local only.
type SnapshotStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	Prefix    string   `yaml:"prefix"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("CASELOAD_CONFIG_PATH", "config/caseload.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadLocal loads configuration for commands that open the database
// directly instead of serving it. The API key is not required.
func LoadLocal() (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, getEnv("CASELOAD_CONFIG_PATH", "config/caseload.yaml")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validateLocal(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and when the caller names the file explicitly.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/caseload.db",
		},
		Worker: WorkerConfig{
			SnapshotInterval: Duration(1 * time.Hour),
			SnapshotDir:      "data/snapshots",
			PurgeInterval:    Duration(24 * time.Hour),
			PurgeRetention:   Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Orchestrator: OrchestratorConfig{
			CollectionConcurrency: 3,
		},
		SnapshotStorage: SnapshotStorageConfig{
			Region:    "us-east-1",
			Prefix:    "caseload",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("CASELOAD_PORT", &cfg.Server.Port)
	envDuration("CASELOAD_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CASELOAD_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CASELOAD_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("CASELOAD_DB_PATH", &cfg.Database.Path)

	// Auth
	envString("CASELOAD_API_KEY", &cfg.Auth.APIKey)

	// Worker
	envDuration("CASELOAD_SNAPSHOT_INTERVAL", &cfg.Worker.SnapshotInterval)
	envString("CASELOAD_SNAPSHOT_DIR", &cfg.Worker.SnapshotDir)
	envDuration("CASELOAD_PURGE_INTERVAL", &cfg.Worker.PurgeInterval)
	envDuration("CASELOAD_PURGE_RETENTION", &cfg.Worker.PurgeRetention)

	// Log
	envString("CASELOAD_LOG_LEVEL", &cfg.Log.Level)
	envString("CASELOAD_LOG_FORMAT", &cfg.Log.Format)

	// Orchestrator
	envInt("CASELOAD_COLLECTION_CONCURRENCY", &cfg.Orchestrator.CollectionConcurrency)

	// Snapshot storage
	envString("CASELOAD_SNAPSHOT_BUCKET", &cfg.SnapshotStorage.Bucket)
	envString("CASELOAD_S3_ENDPOINT", &cfg.SnapshotStorage.Endpoint)
	envString("CASELOAD_S3_REGION", &cfg.SnapshotStorage.Region)
	envString("CASELOAD_S3_PREFIX", &cfg.SnapshotStorage.Prefix)
	envString("CASELOAD_S3_ACCESS_KEY", &cfg.SnapshotStorage.AccessKey)
	envString("CASELOAD_S3_SECRET_KEY", &cfg.SnapshotStorage.SecretKey)
	if v := os.Getenv("CASELOAD_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.SnapshotStorage.UseSSL = &useSSL
	}
	envDuration("CASELOAD_S3_URL_EXPIRY", &cfg.SnapshotStorage.URLExpiry)
}

// validate checks that required configuration values are set.
// In dev mode (CASELOAD_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if err := c.validateLocal(); err != nil {
		return err
	}

	// Dev mode bypasses API key validation
	if os.Getenv("CASELOAD_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("CASELOAD_API_KEY is required")
	}
	return nil
}

func (c *Config) validateLocal() error {
	if c.Orchestrator.CollectionConcurrency < 1 {
		return errors.New("orchestrator.collection_concurrency must be at least 1")
	}
	if c.SnapshotStorage.Bucket != "" && c.SnapshotStorage.Endpoint == "" {
		return errors.New("snapshot_storage.endpoint is required when a bucket is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
