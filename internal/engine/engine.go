// Package engine drives one generation run: it loads statement skeletons,
// opens the schema, resolves every statement and reports the outcome to
// the run history.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/internal/loader"
	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/internal/state"
)

// Config holds engine configuration.
type Config struct {
	// SchemaPath is a SQLite file, a DDL directory or a goose migrations directory.
	SchemaPath string
	SchemaKind schema.Kind
	// QueriesDir holds one directory of skeleton documents per namespace.
	QueriesDir string
	// Naming is the default property naming strategy.
	Naming annotation.NamingStrategy
	// Store records run history (optional).
	Store state.Store
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Engine runs generation passes. Each call to Run is independent: no
// schema, registry or shared-result state is carried between runs.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Naming == "" {
		cfg.Naming = annotation.NamingLowerCamel
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Run performs one complete generation pass. The schema connection is held
// only for the duration of the call.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := e.logger.With(slog.String("run_id", runID))
	logger.Debug("starting run",
		slog.String("schema", e.cfg.SchemaPath),
		slog.String("queries_dir", e.cfg.QueriesDir))

	e.recordStart(ctx, logger, runID)
	res, err := e.run(ctx, logger, runID)
	e.recordEnd(ctx, logger, runID, res, err)
	return res, err
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger, runID string) (*Result, error) {
	set, err := loader.New(logger).LoadDir(e.cfg.QueriesDir)
	if err != nil {
		return nil, err
	}

	src, err := schema.Open(ctx, e.cfg.SchemaPath, schema.OpenOptions{Kind: e.cfg.SchemaKind, Logger: logger})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Warn("failed to close schema", slog.String("error", cerr.Error()))
		}
	}()

	catalog, err := src.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", e.cfg.SchemaPath, err)
	}
	return Resolve(ctx, catalog, set, ResolveOptions{RunID: runID, Naming: e.cfg.Naming, Logger: logger})
}

// History is best effort: a broken state database never fails generation.
func (e *Engine) recordStart(ctx context.Context, logger *slog.Logger, runID string) {
	if e.cfg.Store == nil {
		return
	}
	run := &state.Run{ID: runID, SchemaPath: e.cfg.SchemaPath, QueriesDir: e.cfg.QueriesDir}
	if err := e.cfg.Store.StartRun(ctx, run); err != nil {
		logger.Warn("failed to record run start", slog.String("error", err.Error()))
	}
}

func (e *Engine) recordEnd(ctx context.Context, logger *slog.Logger, runID string, res *Result, runErr error) {
	if e.cfg.Store == nil {
		return
	}
	var err error
	if runErr != nil {
		err = e.cfg.Store.FailRun(context.WithoutCancel(ctx), runID, runErr)
	} else {
		err = e.cfg.Store.CompleteRun(ctx, runID, state.RunStats{
			Statements:    len(res.Statements),
			SharedResults: len(res.SharedResults),
		})
	}
	if err != nil {
		logger.Warn("failed to record run outcome", slog.String("error", err.Error()))
	}
}
