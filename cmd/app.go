package cmd

import (
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/cachebackend"
	"github.com/clawcontrol/clawcontrol/internal/config"
	"github.com/clawcontrol/clawcontrol/internal/store/pg"
	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// loadConfig reads config.json5 (or the configured path) and applies the
// CLAWCONTROL_* environment overlay, per internal/config's load order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// openStores loads config and opens every Postgres-backed store a
// subcommand needs. Callers are responsible for closing stores.DB.
func openStores() (*config.Config, *pg.Stores, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.PostgresDSN == "" {
		return nil, nil, fmt.Errorf("CLAWCONTROL_POSTGRES_DSN environment variable is not set")
	}
	stores, err := pg.NewStores(cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open stores: %w", err)
	}
	return cfg, stores, nil
}

// remoteCache builds the optional Redis-backed usage.RemoteCache when
// cfg.Cache.RedisAddr is set; otherwise every TTLCache falls back to its
// in-process map alone.
func remoteCache(cfg *config.Config) usage.RemoteCache {
	if cfg.Cache.RedisAddr == "" {
		return nil
	}
	return cachebackend.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
}
