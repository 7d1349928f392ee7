// Package app wires C1-C9 together into one running process (spec §1: "the
// core exposes a small set of operations... callers assemble and drive it").
// Grounded on internal/app/context.go's shape: a single Context struct built
// once at startup that holds the config, the logger, and every high-level
// interface the API/CLI layers are allowed to depend on, so those layers
// never import internal/httpclient, internal/coordinator, or internal/store
// directly.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fetchd/fetchd/internal/config"
	"github.com/fetchd/fetchd/internal/coordinator"
	"github.com/fetchd/fetchd/internal/httpclient"
	"github.com/fetchd/fetchd/internal/logging"
	"github.com/fetchd/fetchd/internal/queue"
	"github.com/fetchd/fetchd/internal/store"
)

// Context holds the core environment and shared resources for fetchd. It
// acts as the single source of truth handed to both the control API and the
// CLI entrypoint.
type Context struct {
	Config *config.Config
	Logger *logging.Logger
	Store  store.Store
	Queue  *queue.Manager
}

// NewContext opens the configured store, builds C6's coordinator on top of
// it, and constructs C8's queue manager, rehydrating any in-flight items
// left over from an unclean shutdown.
func NewContext(cfg *config.Config) (*Context, error) {
	log, err := logging.New(cfg.Log.Path, logging.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := applySettingsOverlay(context.Background(), st, cfg); err != nil {
		log.Warn("failed to load persisted settings, using compiled defaults: %v", err)
	}

	client := httpclient.New(httpSettingsFromConfig(cfg))
	coord := coordinator.New(client, st, log, coordinatorSettingsFromConfig(cfg))
	mgr := queue.NewManager(st, coord, log, cfg, true)

	return &Context{Config: cfg, Logger: log, Store: st, Queue: mgr}, nil
}

// openStore selects the storage backend per store.driver (spec §6.9,
// SPEC_FULL.md DOMAIN STACK): sqlite for a single-process daemon, postgres
// for a shared instance fronting multiple fetchd processes.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(context.Background(), cfg.Store.PostgresDSN)
	default:
		return store.NewSQLite(cfg.Store.SQLitePath)
	}
}

func httpSettingsFromConfig(cfg *config.Config) httpclient.Config {
	c := httpclient.DefaultConfig()
	if cfg.Download.TimeoutSeconds > 0 {
		c.ConnectTimeout = time.Duration(cfg.Download.TimeoutSeconds) * time.Second
		c.ReadTimeout = time.Duration(cfg.Download.TimeoutSeconds) * time.Second
	}
	if cfg.Download.UserAgent != "" {
		c.UserAgent = cfg.Download.UserAgent
	}
	return c
}

func coordinatorSettingsFromConfig(cfg *config.Config) coordinator.Config {
	c := coordinator.DefaultConfig()
	if cfg.Download.ChunkSize > 0 {
		c.Streamer.ChunkSize = cfg.Download.ChunkSize
	}
	if cfg.Download.MaxRetries > 0 {
		c.Streamer.MaxRetries = cfg.Download.MaxRetries
	}
	if cfg.Download.RetryDelaySecs > 0 {
		c.Streamer.RetryDelay = time.Duration(cfg.Download.RetryDelaySecs) * time.Second
	}
	return c
}

// Run starts the queue's control loop and blocks until ctx is cancelled.
func (c *Context) Run(ctx context.Context) {
	c.Queue.Start(ctx)
}

// Close shuts the queue and store down in reverse dependency order.
func (c *Context) Close() {
	c.Queue.Stop()
	c.Logger.Info("shutting down store...")
	if err := c.Store.Close(); err != nil {
		c.Logger.Error("error closing store: %v", err)
	}
}
