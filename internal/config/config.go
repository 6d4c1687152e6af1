// Package config loads server configuration from an optional YAML file and
// ENGAGEMENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by Storage.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

const (
	defaultListenAddr     = ":8080"
	defaultSQLitePath     = "engagement.db"
	defaultBatchSize      = 500
	defaultIdentityHeader = "X-Authenticated-Email"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr       string  `yaml:"listen_addr"`
	Storage          Storage `yaml:"storage"`
	CleanupBatchSize int     `yaml:"cleanup_batch_size"`
	// IdentityHeader names the request header carrying the caller email set by
	// the fronting identity proxy.
	IdentityHeader string `yaml:"identity_header"`
	Log            Log    `yaml:"log"`
}

// Storage selects and parameterises the document store backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	S3          S3     `yaml:"s3"`
}

// S3 holds bucket settings for the s3 driver.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr: defaultListenAddr,
		Storage: Storage{
			Driver:     DriverSQLite,
			SQLitePath: defaultSQLitePath,
		},
		CleanupBatchSize: defaultBatchSize,
		IdentityHeader:   defaultIdentityHeader,
		Log:              Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// ENGAGEMENT_CONFIG (if any) and ENGAGEMENT_* overrides, then validates it.
//
//	ENGAGEMENT_LISTEN_ADDR          listen address (default :8080)
//	ENGAGEMENT_STORAGE_DRIVER       memory|sqlite|postgres|s3 (default sqlite)
//	ENGAGEMENT_SQLITE_PATH          sqlite file (default engagement.db)
//	ENGAGEMENT_POSTGRES_DSN         postgres DSN when driver=postgres
//	ENGAGEMENT_S3_BUCKET, ENGAGEMENT_S3_REGION, ENGAGEMENT_S3_ENDPOINT,
//	ENGAGEMENT_S3_PATH_STYLE, ENGAGEMENT_S3_PREFIX
//	ENGAGEMENT_CLEANUP_BATCH_SIZE   documents per cleanup batch (default 500)
//	ENGAGEMENT_IDENTITY_HEADER      caller email header (default X-Authenticated-Email)
//	ENGAGEMENT_LOG_LEVEL            debug|info|warn|error (default info)
//	ENGAGEMENT_LOG_FORMAT           json|console (default json)
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("ENGAGEMENT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "ENGAGEMENT_LISTEN_ADDR")
	setString(&c.Storage.Driver, "ENGAGEMENT_STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "ENGAGEMENT_SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "ENGAGEMENT_POSTGRES_DSN")
	setString(&c.Storage.S3.Bucket, "ENGAGEMENT_S3_BUCKET")
	setString(&c.Storage.S3.Region, "ENGAGEMENT_S3_REGION")
	setString(&c.Storage.S3.Endpoint, "ENGAGEMENT_S3_ENDPOINT")
	setString(&c.Storage.S3.Prefix, "ENGAGEMENT_S3_PREFIX")
	setString(&c.IdentityHeader, "ENGAGEMENT_IDENTITY_HEADER")
	setString(&c.Log.Level, "ENGAGEMENT_LOG_LEVEL")
	setString(&c.Log.Format, "ENGAGEMENT_LOG_FORMAT")
	if v := os.Getenv("ENGAGEMENT_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENGAGEMENT_S3_PATH_STYLE: %w", err)
		}
		c.Storage.S3.PathStyle = b
	}
	if v := os.Getenv("ENGAGEMENT_CLEANUP_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENGAGEMENT_CLEANUP_BATCH_SIZE: %w", err)
		}
		c.CleanupBatchSize = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate reports configuration that cannot produce a working server.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres driver requires a DSN"))
		}
	case DriverS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 driver requires a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.CleanupBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("cleanup batch size must be positive, got %d", c.CleanupBatchSize))
	}
	if c.IdentityHeader == "" {
		errs = append(errs, errors.New("identity header must not be empty"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
