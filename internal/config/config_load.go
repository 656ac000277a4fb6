package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with ClawControl's baked-in defaults, applied
// before any file or env overlay.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Runtime: RuntimeConfig{
			Home: filepath.Join(home, ".openclaw"),
		},
		Usage: UsageConfig{
			SyncIntervalSeconds: 30,
			SyncTimeoutSeconds: 120,
			ExploreCacheTTLSec: 15,
			ScopeCacheTTLSec: 15,
			DefaultSessionLimit: 1000,
			MaxSessionLimit: 5000,
		},
		Dispatch: DispatchConfig{
			Mode: "auto",
			SpawnsPerMinute: 30,
			SpawnBurst: 5,
			AgentLocalFallback: true,
		},
		Lease: LeaseConfig{
			DefaultTTLSeconds: 600,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8790,
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; API keys and DSNs never round-trip
// through Save.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("OPENCLAW_HOME", &c.Runtime.Home)
	envStr("CLAWCONTROL_RUNTIME_BINARY", &c.Runtime.BinaryPath)

	envStr("CLAWCONTROL_OPENCLAW_DISPATCH_MODE", &c.Dispatch.Mode)
	if v := os.Getenv("CLAWCONTROL_DISPATCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Dispatch.TimeoutSeconds = n
		}
	}

	envStr("CLAWCONTROL_GATEWAY_HOST", &c.Gateway.Host)
	if v := os.Getenv("CLAWCONTROL_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("CLAWCONTROL_GATEWAY_TOKEN", &c.Gateway.Token)

	envStr("CLAWCONTROL_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("CLAWCONTROL_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CLAWCONTROL_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CLAWCONTROL_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CLAWCONTROL_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CLAWCONTROL_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	envStr("CLAWCONTROL_REDIS_ADDR", &c.Cache.RedisAddr)
	envStr("CLAWCONTROL_REDIS_PASSWORD", &c.Cache.RedisPassword)
	if v := os.Getenv("CLAWCONTROL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Cache.RedisDB = n
		}
	}

	// Presence of OPENAI_API_KEY toggles the agent_local fallback-model
	// injection used when dispatch mode is "auto".
	if os.Getenv("OPENAI_API_KEY") == "" {
		c.Dispatch.AgentLocalFallback = false
	}
}

// Save writes the config to a JSON file. Secrets (PostgresDSN, RedisPassword)
// are tagged json:"-" and never round-trip here.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", " ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call after loading a snapshot from the database to restore
// runtime secrets that are deliberately excluded from persistence.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
