package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/querygen/internal/cli/config"
	"github.com/leapstack-labs/querygen/internal/engine"
	"github.com/leapstack-labs/querygen/internal/testutil"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testDDL = `
-- @@{cascadeNotify={delete=[address]}}
CREATE TABLE person (
  id INTEGER NOT NULL PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE address (
  id INTEGER NOT NULL PRIMARY KEY,
  person_id INTEGER NOT NULL
);
`

const byIDQuery = `sql: SELECT p.id, p.name FROM person p WHERE p.id = :id
table: p
aliases: {p: person}
fields:
  - {name: id, table: p}
  - {name: name, table: p}
param_columns:
  id: {table: p, column: id}
`

const deleteQuery = `kind: delete
sql: DELETE FROM person WHERE id = :id
table: person
param_columns:
  id: {table: person, column: id}
`

// setupProject writes a schema and two statements and returns a config
// pointing at them.
func setupProject(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	schemaDir := testutil.WriteFiles(t, filepath.Join(root, "schema"), map[string]string{"01_tables.sql": testDDL})
	queriesDir := testutil.WriteFiles(t, filepath.Join(root, "queries"), map[string]string{
		"person/ById.yaml":   byIDQuery,
		"person/Delete.yaml": deleteQuery,
	})
	return &config.Config{
		Schema:         schemaDir,
		SchemaKind:     "auto",
		QueriesDir:     queriesDir,
		Output:         "-",
		Format:         "json",
		PropertyNaming: "lowerCamelCase",
		StatePath:      filepath.Join(root, ".querygen", "state.db"),
		History:        true,
		OutputFormat:   "markdown",
		Watch:          config.WatchConfig{Debounce: 10 * time.Millisecond, Extensions: []string{".sql", ".yaml"}},
		ProjectRoot:    root,
	}
}

func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	ctx := config.NewContext(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewGenerateCommand(), "generate", []string{"watch"}},
		{NewInspectCommand(), "inspect [namespace/statement]", nil},
		{NewAffectedCommand(), "affected <namespace/statement>", nil},
		{NewHistoryCommand(), "history", []string{"limit"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
	assert.Equal(t, []string{"gen"}, NewGenerateCommand().Aliases)
}

func TestGenerate_Stdout(t *testing.T) {
	cfg := setupProject(t)

	out, _, err := execute(t, NewGenerateCommand(), cfg)
	require.NoError(t, err)

	var res engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Statements, 2)
	byID := res.Statement("person/ById")
	require.NotNil(t, byID)
	require.Len(t, byID.Parameters, 1)
	assert.Equal(t, core.TypeDescriptor{Base: core.TypeInt64}, byID.Parameters[0].Type)
	assert.Equal(t, []string{"address", "person"}, res.Statement("person/Delete").AffectedTables)
}

func TestGenerate_FileAndHistory(t *testing.T) {
	cfg := setupProject(t)
	cfg.Output = filepath.Join(cfg.ProjectRoot, "build", "queries.yaml")
	cfg.Format = "yaml"

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Output), 0750))
	out, errOut, err := execute(t, NewGenerateCommand(), cfg)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "Generated 2 statements and 0 shared results")

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	var res engine.Result
	require.NoError(t, yaml.Unmarshal(data, &res))
	assert.Len(t, res.Statements, 2)

	out, _, err = execute(t, NewHistoryCommand(), cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "# Runs (1 shown)")
	assert.Contains(t, out, "Completed")
}

func TestGenerate_FailureIsRecorded(t *testing.T) {
	cfg := setupProject(t)
	cfg.QueriesDir = filepath.Join(cfg.ProjectRoot, "missing")

	_, _, err := execute(t, NewGenerateCommand(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	cfg.OutputFormat = "json"
	out, _, err := execute(t, NewHistoryCommand(), cfg)
	require.NoError(t, err)
	var runs []historyRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestGenerate_HistoryDisabled(t *testing.T) {
	cfg := setupProject(t)
	cfg.History = false

	_, _, err := execute(t, NewGenerateCommand(), cfg)
	require.NoError(t, err)
	_, err = os.Stat(cfg.StatePath)
	assert.True(t, os.IsNotExist(err), "state database must not be created")
}

func TestGenerate_InvalidConfig(t *testing.T) {
	cfg := setupProject(t)
	cfg.Format = "toml"

	_, _, err := execute(t, NewGenerateCommand(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestInspect(t *testing.T) {
	cfg := setupProject(t)

	t.Run("all statements", func(t *testing.T) {
		out, _, err := execute(t, NewInspectCommand(), cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "# Statements (2 total)")
		assert.Contains(t, out, "| person/ById | select |")
		assert.Contains(t, out, "address, person")
	})

	t.Run("one statement", func(t *testing.T) {
		out, _, err := execute(t, NewInspectCommand(), cfg, "person/ById")
		require.NoError(t, err)
		assert.Contains(t, out, "# person/ById")
		assert.Contains(t, out, "## Parameters")
		assert.Contains(t, out, "| id | id | int64 | person.id |")
		assert.Contains(t, out, "## Fields")
	})

	t.Run("json", func(t *testing.T) {
		jsonCfg := *cfg
		jsonCfg.OutputFormat = "json"
		out, _, err := execute(t, NewInspectCommand(), &jsonCfg, "person/Delete")
		require.NoError(t, err)
		var stmt engine.Statement
		require.NoError(t, json.Unmarshal([]byte(out), &stmt))
		assert.Equal(t, core.KindDelete, stmt.Kind)
	})

	t.Run("unknown statement", func(t *testing.T) {
		_, _, err := execute(t, NewInspectCommand(), cfg, "person/Nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	_, err := os.Stat(cfg.StatePath)
	assert.True(t, os.IsNotExist(err), "inspect does not record history")
}

func TestAffected(t *testing.T) {
	cfg := setupProject(t)

	out, _, err := execute(t, NewAffectedCommand(), cfg, "person/Delete")
	require.NoError(t, err)
	assert.Contains(t, out, "# Affected by person/Delete (delete)")
	assert.Contains(t, out, "- address\n- person\n")

	cfg.OutputFormat = "json"
	out, _, err = execute(t, NewAffectedCommand(), cfg, "person/ById")
	require.NoError(t, err)
	var got affectedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, affectedOutput{Statement: "person/ById", Kind: "select", Tables: []string{"person"}}, got)

	_, _, err = execute(t, NewAffectedCommand(), cfg)
	require.Error(t, err, "statement argument is required")
}

func TestHistory_Limit(t *testing.T) {
	cfg := setupProject(t)
	for range 3 {
		_, _, err := execute(t, NewGenerateCommand(), cfg)
		require.NoError(t, err)
	}

	cfg.OutputFormat = "json"
	out, _, err := execute(t, NewHistoryCommand(), cfg, "--limit", "2")
	require.NoError(t, err)
	var runs []historyRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Statements)

	_, _, err = execute(t, NewHistoryCommand(), cfg, "--limit", "0")
	require.Error(t, err)
}

func TestWatchLoop_Relevant(t *testing.T) {
	w := &watchLoop{extensions: []string{".sql", ".yaml"}, schemaPath: "/p/app.sqlite"}

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"sql write", fsnotify.Event{Name: "/p/queries/person/a.sql", Op: fsnotify.Write}, true},
		{"yaml create", fsnotify.Event{Name: "/p/queries/person/A.YAML", Op: fsnotify.Create}, true},
		{"removed skeleton", fsnotify.Event{Name: "/p/queries/person/a.yaml", Op: fsnotify.Remove}, true},
		{"schema file", fsnotify.Event{Name: "/p/app.sqlite", Op: fsnotify.Write}, true},
		{"chmod only", fsnotify.Event{Name: "/p/queries/a.sql", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "/p/queries/notes.txt", Op: fsnotify.Write}, false},
		{"hidden file", fsnotify.Event{Name: "/p/queries/.a.sql", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.ev))
		})
	}
}

func TestWatchLoop_Debounce(t *testing.T) {
	w := &watchLoop{
		debounce:   20 * time.Millisecond,
		extensions: []string{".sql"},
		logger:     testutil.NewTestLogger(t),
	}
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	trigger := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.pump(ctx, events, errs, trigger) }()

	for range 5 {
		events <- fsnotify.Event{Name: "/q/a.sql", Op: fsnotify.Write}
	}
	events <- fsnotify.Event{Name: "/q/a.txt", Op: fsnotify.Write}
	errs <- assert.AnError

	select {
	case <-trigger:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger after the debounce window")
	}
	select {
	case <-trigger:
		t.Fatal("a burst must produce a single trigger")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop on cancel")
	}
}

func TestWatchLoop_AddsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	var added []string
	w := &watchLoop{
		debounce:   time.Millisecond,
		extensions: []string{".sql"},
		add:        func(p string) error { added = append(added, p); return nil },
		logger:     testutil.NewTestLogger(t),
	}
	events := make(chan fsnotify.Event, 1)
	events <- fsnotify.Event{Name: dir, Op: fsnotify.Create}
	close(events)

	require.NoError(t, w.pump(context.Background(), events, nil, make(chan struct{}, 1)))
	assert.Equal(t, []string{dir}, added)
}

func TestWatchDirs(t *testing.T) {
	cfg := setupProject(t)

	dirs, err := watchDirs(cfg.QueriesDir, cfg.Schema)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.QueriesDir, filepath.Join(cfg.QueriesDir, "person"), cfg.Schema}, dirs)

	dbPath := filepath.Join(cfg.ProjectRoot, "app.sqlite")
	require.NoError(t, os.WriteFile(dbPath, nil, 0600))
	dirs, err = watchDirs(cfg.QueriesDir, dbPath)
	require.NoError(t, err)
	assert.Contains(t, dirs, cfg.ProjectRoot)

	_, err = watchDirs(filepath.Join(cfg.ProjectRoot, "missing"), cfg.Schema)
	require.Error(t, err)
}
