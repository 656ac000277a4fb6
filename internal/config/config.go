// Package config loads ClawControl's configuration: a JSON5 file overlaid
// with environment variables for secrets (json5 parse, then
// applyEnvOverrides). Config/DatabaseConfig/TelemetryConfig carry over
// directly; AgentsConfig/ChannelsConfig/ProvidersConfig/
// ToolsConfig/SessionsConfig/TtsConfig/TailscaleConfig/Bindings are
// chat-gateway concerns with no ClawControl component and are dropped.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
)

// Config is the root configuration for ClawControl.
type Config struct {
	Runtime RuntimeConfig `json:"runtime"`
	Usage UsageConfig `json:"usage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Lease LeaseConfig `json:"lease"`
	Gateway GatewayConfig `json:"gateway"`
	Database DatabaseConfig `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Cache CacheConfig `json:"cache,omitempty"`

	mu sync.RWMutex
}

// RuntimeConfig locates the external agent runtime's on-disk layout
// consumed by the ingestion engine ("<runtimeHome>/agents/
// <agentId>/sessions/<sessionId>.jsonl").
type RuntimeConfig struct {
	Home string `json:"home,omitempty"` // defaults to $HOME/.openclaw (OPENCLAW_HOME)
	BinaryPath string `json:"binary_path,omitempty"` // path to the external runtime binary dispatch/status/models commands invoke
}

// UsageConfig configures the ingestion engine's scheduling and the
// Explore/Parity in-process caches.
type UsageConfig struct {
	SyncIntervalSeconds int `json:"sync_interval_seconds,omitempty"` // poll cadence (default 30)
	SyncCron string `json:"sync_cron,omitempty"` // optional cron-expression form; not read or validated by any package
	SyncTimeoutSeconds int `json:"sync_timeout_seconds,omitempty"` // per-run wall-clock budget ( maxMs, default 120)
	MaxFilesPerRun int `json:"max_files_per_run,omitempty"` // file-count budget per run (default 0 = unlimited)
	ExploreCacheTTLSec int `json:"explore_cache_ttl_seconds,omitempty"` // default 15
	ScopeCacheTTLSec int `json:"scope_cache_ttl_seconds,omitempty"` // default 15
	DefaultSessionLimit int `json:"default_session_limit,omitempty"` // default 1000
	MaxSessionLimit int `json:"max_session_limit,omitempty"` // max 5000
}

// DispatchConfig configures Agent Dispatch Core.
type DispatchConfig struct {
	Mode string `json:"mode,omitempty"` // "auto" (default), "run", "agent_local" — CLAWCONTROL_OPENCLAW_DISPATCH_MODE
	TimeoutSeconds int `json:"timeout_seconds,omitempty"` // caller-supplied default when a spawn omits its own
	SpawnsPerMinute float64 `json:"spawns_per_minute,omitempty"` // token-bucket rate (default 30)
	SpawnBurst int `json:"spawn_burst,omitempty"` // token-bucket burst (default 5)
	AgentLocalFallback bool `json:"agent_local_fallback,omitempty"` // default true, cleared when OPENAI_API_KEY is unset; passed to the Spawner as HasOpenAIAPIKey, so false enables agent_local's fallback-model injection
}

// LeaseConfig sets default TTLs for named leases.
type LeaseConfig struct {
	DefaultTTLSeconds int `json:"default_ttl_seconds,omitempty"` // default 600 (usage.sync)
}

// GatewayConfig configures the internal/httpapi listener exposing the
// core's read endpoints to out-of-scope collaborators.
type GatewayConfig struct {
	Host string `json:"host,omitempty"` // default "0.0.0.0"
	Port int `json:"port,omitempty"` // default 8790
	Token string `json:"-"` // bearer token; env only, empty disables auth
}

// DatabaseConfig configures Postgres. PostgresDSN is never read from the
// config file — only from env CLAWCONTROL_POSTGRES_DSN, to keep secrets
// out of version control.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OpenTelemetry span export for the ingestion,
// explore-query, and dispatch hot paths — same field set and OTLP
// grpc/http choice as the rest of ClawControl's config.
type TelemetryConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Protocol string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure bool `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// CacheConfig optionally backs the 15s explore/parity caches and the 4s
// session-sync coalescer with Redis instead of an in-process map. Empty
// Addr means in-process only.
type CacheConfig struct {
	RedisAddr string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"-"` // from env CLAWCONTROL_REDIS_PASSWORD only
	RedisDB int `json:"redis_db,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Runtime = src.Runtime
	c.Usage = src.Usage
	c.Dispatch = src.Dispatch
	c.Lease = src.Lease
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Telemetry = src.Telemetry
	c.Cache = src.Cache
}

// Hash returns a SHA-256 prefix of the config, useful for detecting
// whether a reloaded file actually changed.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)[:16]
}
