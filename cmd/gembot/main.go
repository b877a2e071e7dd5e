package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gembot/internal/bus"
	"gembot/internal/config"
	"gembot/internal/connector"
	"gembot/internal/dispatch"
	"gembot/internal/domain"
	"gembot/internal/gemini"
	"gembot/internal/metrics"
	"gembot/internal/relay"
	"gembot/internal/reply"
	"gembot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:   "gembot",
		Short: "gembot: a mention-driven Gemini chat bot",
		Long:  "gembot relays Discord mentions and DMs (and optionally Telegram messages) to the Gemini API and posts the replies back.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.gembot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// loadConfigOrDefaults loads the config file, treating an absent file as
// "use defaults". A file that exists but fails to parse or validate is an
// error: falling back to defaults would silently ignore the operator's
// settings.
func loadConfigOrDefaults(cfgPath string) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config not found, using defaults", "path", cfgPath)
			return config.Defaults(), nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the enabled channels and answer messages",
		Long:  "Starts the enabled connectors and the relay loop. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := loadConfigOrDefaults(cfgPath)
	if err != nil {
		return err
	}

	// Secrets are resolved before anything connects. Missing secrets are
	// fatal here rather than surfacing as auth errors mid-flight.
	if err := cfg.ResolveSecrets(); err != nil {
		return err
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(100, logger)

	templates := reply.Defaults()
	if cfg.Replies.TemplatesPath != "" {
		templates, err = reply.Load(cfg.Replies.TemplatesPath)
		if err != nil {
			return fmt.Errorf("reply templates: %w", err)
		}
		logger.Info("reply templates loaded", "path", cfg.Replies.TemplatesPath)
	}

	var eventLog *store.EventLog
	if cfg.Store.Enabled {
		eventLog, err = store.Open(cfg.Store.DBPath, logger)
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		defer eventLog.Close()
	}

	generator := gemini.New(gemini.Config{
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		BaseURL: cfg.Generation.BaseURL,
		Logger:  logger,
	})

	dispatchCfg := dispatch.Config{
		Generator: generator,
		Templates: templates,
		Logger:    logger,
	}
	if eventLog != nil {
		dispatchCfg.Store = eventLog
	}
	dispatcher := dispatch.New(dispatchCfg)

	connectors := buildConnectors(cfg)
	if len(connectors) == 0 {
		return fmt.Errorf("no channels enabled")
	}

	loop := relay.NewLoop(relay.LoopConfig{
		Bus:         eventBus,
		Connectors:  connectors,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Concurrency: cfg.General.Concurrency,
	})
	go loop.Run(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	// A connector that fails to start (bad token, missing intents) takes
	// the process down so the error is seen immediately.
	errCh := make(chan error, len(connectors))
	for _, c := range connectors {
		go func(c domain.Connector) {
			if err := c.Start(ctx, eventBus); err != nil {
				errCh <- fmt.Errorf("%s connector: %w", c.Name(), err)
			}
		}(c)
		logger.Info("connector starting", "channel", c.Name())
	}

	logger.Info("gembot started", "version", version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		eventBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func buildConnectors(cfg *config.Config) []domain.Connector {
	var connectors []domain.Connector
	if cfg.Channels.Discord.Enabled {
		connectors = append(connectors, connector.NewDiscord(connector.DiscordConfig{
			Token:    cfg.Channels.Discord.Token,
			GuildID:  cfg.Channels.Discord.GuildID,
			Presence: cfg.General.Presence,
			Logger:   logger,
		}))
	}
	if cfg.Channels.Telegram.Enabled {
		connectors = append(connectors, connector.NewTelegram(connector.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		}))
	}
	return connectors
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
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

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfigOrDefaults(cfgPath)
			if err != nil {
				return err
			}
			logger.Info("config", "path", cfgPath)

			if err := cfg.ResolveSecrets(); err != nil {
				logger.Warn("secrets incomplete", "err", err)
			}

			ctx := context.Background()
			generator := gemini.New(gemini.Config{
				APIKey: cfg.Generation.APIKey,
				Model:  cfg.Generation.Model,
				Logger: logger,
			})
			if err := generator.Healthy(ctx); err != nil {
				logger.Info("backend", "name", generator.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("backend", "name", generator.Name(), "model", cfg.Generation.Model, "healthy", true)
			}

			if cfg.Store.Enabled {
				eventLog, err := store.Open(cfg.Store.DBPath, logger)
				if err != nil {
					return fmt.Errorf("event store: %w", err)
				}
				defer eventLog.Close()

				recs, err := eventLog.Recent(ctx, 10)
				if err != nil {
					return fmt.Errorf("recent events: %w", err)
				}
				for _, r := range recs {
					logger.Info("event",
						"time", r.CreatedAt.Format(time.RFC3339),
						"channel", r.Channel,
						"outcome", r.Outcome,
						"chunks", r.Chunks,
						"latency_ms", r.LatencyMs,
					)
				}
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.logLevel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.logLevel debug)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
