// Package config defines the runtime configuration and its TOML loader.
package config

import "time"

// Config is the root configuration for Lark.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Plugins  PluginsConfig  `toml:"plugins"`
	Adapters AdaptersConfig `toml:"adapters"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

type RuntimeConfig struct {
	MaxConcurrentEvents int           `toml:"max_concurrent_events"`
	ShutdownTimeout     time.Duration `toml:"shutdown_timeout"`
}

type PluginsConfig struct {
	Dirs      []string `toml:"dirs"`
	HotReload bool     `toml:"hot_reload"`
}

type AdaptersConfig struct {
	WebSocket WebSocketConfig `toml:"websocket"`
	Webhook   WebhookConfig   `toml:"webhook"`
}

// WebSocketConfig configures the outbound websocket adapter.
type WebSocketConfig struct {
	Enabled     bool          `toml:"enabled"`
	URL         string        `toml:"url"`
	Token       string        `toml:"token"`
	PingTimeout time.Duration `toml:"ping_timeout"`
}

// WebhookConfig configures the inbound HTTP adapter.
type WebhookConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
	Path    string `toml:"path"`
	Token   string `toml:"token"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Runtime: RuntimeConfig{
			MaxConcurrentEvents: 0, // unbounded
			ShutdownTimeout:     10 * time.Second,
		},
		Plugins: PluginsConfig{
			Dirs:      []string{"plugins"},
			HotReload: false,
		},
		Adapters: AdaptersConfig{
			WebSocket: WebSocketConfig{
				PingTimeout: 30 * time.Second,
			},
			Webhook: WebhookConfig{
				Listen: "127.0.0.1:8040",
				Path:   "/event",
			},
		},
	}
}
