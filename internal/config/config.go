// Package config handles loading and parsing of CLI configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MaTriXy/athena-sqlite/vfs"
)

// Config is the top-level configuration for the athena-sqlite CLI.
type Config struct {
	S3      S3Config      `yaml:"s3"`
	Cache   CacheConfig   `yaml:"cache"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
}

// S3Config holds S3 client settings.
type S3Config struct {
	// Region is the AWS region.
	Region string `yaml:"region"`
	// Endpoint is an optional custom endpoint (MinIO, LocalStack, R2).
	Endpoint string `yaml:"endpoint"`
	// UsePathStyle enables path-style addressing for S3 compatibles.
	UsePathStyle bool `yaml:"use_path_style"`
	// AccessKey and SecretKey override the default credential chain when
	// both are set.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// CacheConfig holds block cache settings.
type CacheConfig struct {
	// BlockSize is the fetch granularity in bytes.
	BlockSize int `yaml:"block_size"`
	// CapacityBytes bounds the cache's resident bytes.
	CapacityBytes int `yaml:"capacity_bytes"`
}

// CatalogConfig holds database catalog settings.
type CatalogConfig struct {
	// Bucket is the bucket holding the databases.
	Bucket string `yaml:"bucket"`
	// Prefix is the key prefix databases live under.
	Prefix string `yaml:"prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log format: text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration defaults applied before any file or
// flag overrides.
func Default() *Config {
	return &Config{
		S3: S3Config{
			Region: "us-east-1",
		},
		Cache: CacheConfig{
			BlockSize:     vfs.DefaultBlockSize,
			CapacityBytes: vfs.DefaultCacheCapacity,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Cache.BlockSize <= 0 {
		return nil, fmt.Errorf("config: cache.block_size must be positive, got %d", cfg.Cache.BlockSize)
	}
	if cfg.Cache.CapacityBytes <= 0 {
		return nil, fmt.Errorf("config: cache.capacity_bytes must be positive, got %d", cfg.Cache.CapacityBytes)
	}

	return cfg, nil
}
