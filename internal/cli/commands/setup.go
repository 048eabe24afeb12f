package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/querygen/internal/cli/config"
	"github.com/leapstack-labs/querygen/internal/cli/output"
	"github.com/leapstack-labs/querygen/internal/engine"
	"github.com/leapstack-labs/querygen/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Settings config.Settings
	Logger   *slog.Logger
	Engine   *engine.Engine
	// Store is nil when run history is disabled or unavailable.
	Store    state.Store
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// When recordHistory is set and history is enabled, runs are recorded in
// the state database. Returns the context and a cleanup function that must
// be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, recordHistory bool) (*CommandContext, func(), error) {
	c, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	if recordHistory && c.Cfg.History {
		store, err := openStore(cmd.Context(), c.Cfg.StatePath, c.Logger)
		if err != nil {
			// History never blocks generation.
			c.Logger.Warn("run history disabled", slog.String("error", err.Error()))
		} else {
			c.Store = store
			cleanup = func() { closeStore(store, c.Logger) }
		}
	}

	c.Engine = engine.New(engine.Config{
		SchemaPath: c.Cfg.Schema,
		SchemaKind: c.Settings.SchemaKind,
		QueriesDir: c.Cfg.QueriesDir,
		Naming:     c.Settings.Naming,
		Store:      c.Store,
		Logger:     c.Logger,
	})
	return c, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that only read run history.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	settings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Settings: settings,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

func openStore(ctx context.Context, path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(logger)
	if err := store.Open(ctx, path); err != nil {
		return nil, err
	}
	return store, nil
}

func closeStore(store state.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Warn("failed to close state database", slog.String("error", err.Error()))
	}
}
