package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"popmap/internal/bus"
	"popmap/internal/channel"
	"popmap/internal/config"
	"popmap/internal/dispatch"
	"popmap/internal/metrics"
	"popmap/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "popmap",
		Short: "popmap: population map bot for Discord",
		Long:  "popmap collects self-reported member locations through Discord slash commands and components.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file, .json or .yaml (default: ~/.popmap/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(commandsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Set discord.token (or POPMAP_DISCORD_TOKEN) and run 'popmap run'.")
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and dispatch interactions",
		Long:  "Registers the slash commands, connects to the gateway and handles interactions until interrupted.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is not set (or export POPMAP_DISCORD_TOKEN)")
	}

	closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("tracing shutdown", "err", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	var recorder dispatch.Recorder
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		recorder = metrics.NewDispatch(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	dispatcher := dispatch.New(dispatch.Config{
		Commands:       eng.commands,
		Listeners:      eng.listeners,
		Logger:         logger,
		HandlerTimeout: time.Duration(cfg.Dispatch.HandlerTimeoutSeconds) * time.Second,
		MaxInFlight:    cfg.Dispatch.MaxInFlight,
		Recorder:       recorder,
	})

	// Event bus (closed during graceful shutdown below)
	eventBus := bus.New(cfg.Dispatch.BusSize, logger)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := dispatcher.Run(ctx, eventBus.Events()); err != nil {
			logger.Error("dispatcher error", "err", err)
		}
	}()

	discord := channel.NewDiscord(channel.DiscordConfig{
		Token:    cfg.Discord.Token,
		Commands: eng.commands,
		Guilds:   eng.store,
		Logger:   logger,
	})
	gatewayErr := make(chan error, 1)
	go func() {
		gatewayErr <- discord.Start(ctx, eventBus)
	}()

	logger.Info("popmap started. Press Ctrl+C to stop.", "version", version)

	select {
	case <-ctx.Done():
	case err := <-gatewayErr:
		if err != nil {
			logger.Error("discord channel error", "err", err)
			stop()
			eventBus.Close()
			<-dispatchDone
			return err
		}
	}
	logger.Info("shutting down...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		eventBus.Close()
		<-dispatchDone
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

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Print the slash command registration payload as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			out := map[string]any{
				"global": eng.commands.Definitions(),
				"guilds": eng.commands.GuildDefinitions(),
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. dispatch.maxInFlight)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.ListPaths(config.Sanitize(cfg)), "", "  ")
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
