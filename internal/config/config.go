// Package config loads the tunables named in spec §6 via viper, following
// internal/infra/config/config.go's shape: defaults set before the file is
// read, environment-variable overrides, and a validate() pass applying the
// bounds the spec calls for. The core itself does not read environment
// variables directly (spec §6); this loader is entirely a caller-layer
// concern that hands the core a populated Config struct.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Temp     TempConfig     `mapstructure:"temp" yaml:"temp"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup" yaml:"cleanup"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// ServerConfig configures the optional control API (SPEC_FULL.md: "optional
// echo/v5 control API (caller layer)") that cmd/fetchd exposes over the
// core's queue manager.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type DownloadConfig struct {
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	ChunkSize      int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	TimeoutSeconds int    `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelaySecs int    `mapstructure:"retry_delay" yaml:"retry_delay"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
}

type QueueConfig struct {
	MaxConcurrentDownloads int `mapstructure:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`
}

type PathsConfig struct {
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`
	TempBaseDir string `mapstructure:"temp_base_dir" yaml:"temp_base_dir"`
}

type TempConfig struct {
	CleanupAgeDays int `mapstructure:"cleanup_age_days" yaml:"cleanup_age_days"`
}

type CleanupConfig struct {
	SessionCleanupAgeDays int `mapstructure:"session_cleanup_age_days" yaml:"session_cleanup_age_days"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// StoreConfig selects and configures C9's backend. Driver "sqlite" (the
// default) uses modernc.org/sqlite in WAL mode; "postgres" uses pgx/v5
// against a shared instance (see internal/store/postgres.go, SPEC_FULL.md
// DOMAIN STACK).
type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "fetchd.yaml"
	}

	v := viper.New()

	v.SetDefault("download.max_connections", 8)
	v.SetDefault("download.chunk_size", 1<<20)
	v.SetDefault("download.timeout", 30)
	v.SetDefault("download.max_retries", 5)
	v.SetDefault("download.retry_delay", 2)
	v.SetDefault("download.user_agent", "fetchd/1.0")
	v.SetDefault("queue.max_concurrent_downloads", 3)
	v.SetDefault("paths.download_dir", "./downloads")
	v.SetDefault("paths.temp_base_dir", "./downloads/.staging")
	v.SetDefault("temp.cleanup_age_days", 7)
	v.SetDefault("cleanup.session_cleanup_age_days", 30)
	v.SetDefault("log.path", "fetchd.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./fetchd.db")
	v.SetDefault("server.addr", ":8080")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("FETCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate clamps and defaults per spec §6's settings table (max_connections
// bound 1..32).
func (c *Config) validate() error {
	if c.Download.MaxConnections < 1 {
		c.Download.MaxConnections = 1
	}
	if c.Download.MaxConnections > 32 {
		c.Download.MaxConnections = 32
	}
	if c.Queue.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("queue.max_concurrent_downloads must be >= 1")
	}
	if c.Paths.DownloadDir == "" {
		return fmt.Errorf("paths.download_dir is required")
	}
	if c.Paths.TempBaseDir == "" {
		return fmt.Errorf("paths.temp_base_dir is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	return nil
}
