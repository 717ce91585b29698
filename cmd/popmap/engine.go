package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"popmap/internal/catalog"
	"popmap/internal/command"
	"popmap/internal/config"
	"popmap/internal/handlers"
	"popmap/internal/listener"
	"popmap/internal/store"
)

// engine holds what every subcommand that touches handlers needs.
type engine struct {
	store     *store.SQLiteStore
	catalog   *catalog.Catalog
	commands  *command.Registry
	listeners *listener.Registry
}

// newEngine opens the store and builds both registries. A registry error is
// a programming mistake (duplicate name, tag collision) and aborts startup.
func newEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	deps := handlers.Deps{
		Store:         st,
		Catalog:       cat,
		Logger:        logger,
		WebsiteURL:    cfg.General.WebsiteURL,
		GithubURL:     cfg.General.GithubURL,
		SupportInvite: cfg.General.SupportInvite,
		OwnerID:       cfg.General.OwnerID,
		OwnerGuildIDs: cfg.CommandGuildIDs(),
	}

	cmds, err := command.NewRegistry(logger, handlers.Commands(deps)...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("command registry: %w", err)
	}
	ls, err := listener.NewRegistry(logger, handlers.Listeners(deps)...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("listener registry: %w", err)
	}

	return &engine{store: st, catalog: cat, commands: cmds, listeners: ls}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

// setupLogger replaces the bootstrap logger with one honoring
// general.logLevel and general.logFile.
func setupLogger(g config.GeneralConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(g.LogLevel))); err != nil {
		return nil, fmt.Errorf("general.logLevel: %w", err)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closeFn, nil
}
