package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/lark/lark.toml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lark", "lark.toml"))
	}

	paths = append(paths, "lark.toml")

	if envPath := os.Getenv("LARK_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from TOML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/lark/lark.toml < ~/.config/lark/lark.toml < ./lark.toml < $LARK_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables have higher priority than file values; secrets in particular
// should come in this way rather than sit in a config file.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("LARK_WS_TOKEN"); token != "" {
		cfg.Adapters.WebSocket.Token = token
	}
	if token := os.Getenv("LARK_WEBHOOK_TOKEN"); token != "" {
		cfg.Adapters.Webhook.Token = token
	}
	if level := os.Getenv("LARK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// loadFile merges one TOML file into cfg. A missing file is not an error.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing TOML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}

	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	if cfg.Runtime.MaxConcurrentEvents < 0 {
		return fmt.Errorf("runtime.max_concurrent_events must not be negative")
	}

	if cfg.Adapters.WebSocket.Enabled && cfg.Adapters.WebSocket.URL == "" {
		return fmt.Errorf("adapters.websocket.url is required when the websocket adapter is enabled")
	}

	if cfg.Adapters.Webhook.Enabled {
		if cfg.Adapters.Webhook.Listen == "" {
			return fmt.Errorf("adapters.webhook.listen is required when the webhook adapter is enabled")
		}
		if !strings.HasPrefix(cfg.Adapters.Webhook.Path, "/") {
			return fmt.Errorf("adapters.webhook.path must start with /, got %q", cfg.Adapters.Webhook.Path)
		}
	}

	for i, dir := range cfg.Plugins.Dirs {
		cfg.Plugins.Dirs[i] = ExpandHome(dir)
	}

	return nil
}

// SlogLevel converts the configured log level to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
