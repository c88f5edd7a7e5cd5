// Package main is the entry point for the Lark bot runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/larkbot/lark/internal/adapter/webhook"
	ws "github.com/larkbot/lark/internal/adapter/websocket"
	"github.com/larkbot/lark/internal/config"
	"github.com/larkbot/lark/internal/core"
	"github.com/larkbot/lark/internal/plugin"
	"github.com/larkbot/lark/internal/plugin/watcher"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	c := core.New(
		core.WithLogger(log),
		core.WithMaxConcurrentEvents(cfg.Runtime.MaxConcurrentEvents),
		core.WithShutdownTimeout(cfg.Runtime.ShutdownTimeout),
	)

	if cfg.Adapters.WebSocket.Enabled {
		c.RegisterAdapter(ws.New(cfg.Adapters.WebSocket.URL, c,
			ws.WithToken(cfg.Adapters.WebSocket.Token),
			ws.WithPingTimeout(cfg.Adapters.WebSocket.PingTimeout),
			ws.WithLogger(log)))
	}
	if cfg.Adapters.Webhook.Enabled {
		c.RegisterAdapter(webhook.New(cfg.Adapters.Webhook.Listen, c,
			webhook.WithPath(cfg.Adapters.Webhook.Path),
			webhook.WithToken(cfg.Adapters.Webhook.Token),
			webhook.WithLogger(log)))
	}

	host := plugin.NewHost(c, plugin.WithLogger(log))
	defer host.Close()
	for _, dir := range cfg.Plugins.Dirs {
		if err := host.LoadDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Plugins.HotReload {
		w, err := watcher.New(host, watcher.WithLogger(log))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer w.Close()
		for _, dir := range cfg.Plugins.Dirs {
			if err := w.Add(dir); err != nil {
				log.Warn("cannot watch plugin directory", "dir", dir, "error", err)
			}
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("plugin watcher stopped", "error", err)
			}
		}()
	}

	// First signal shuts down gracefully; a second one forces exit.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info("shutting down")
		c.Shutdown()
		<-signals
		log.Warn("forced exit")
		os.Exit(1)
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

type options struct {
	configPath string
	logLevel   string
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lark - plugin-driven bot runtime\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lark [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("Lark %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	return opts
}
