package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/internal/engine"
	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "querygen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "config file")
	flags.String("queries-dir", "", "queries directory")
	flags.String("state", "", "state database")
	flags.String("format", "", "output format")
	flags.Bool("history", true, "record run history")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, cwd, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(cwd, "schema"), cfg.Schema)
	assert.Equal(t, filepath.Join(cwd, "queries"), cfg.QueriesDir)
	assert.Equal(t, filepath.Join(cwd, ".querygen", "state.db"), cfg.StatePath)
	assert.Equal(t, "-", cfg.Output)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "auto", cfg.SchemaKind)
	assert.Equal(t, "lowerCamelCase", cfg.PropertyNaming)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.True(t, cfg.History)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{".sql", ".yaml", ".yml"}, cfg.Watch.Extensions)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `schema: db/app.sqlite
schema_kind: sqlite
queries_dir: sql
output: build/queries.yaml
format: yaml
property_naming: snake_case
history: false
watch:
  debounce: 1s
  extensions: [".sql"]
`)

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, cfg.File)
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "db", "app.sqlite"), cfg.Schema)
	assert.Equal(t, filepath.Join(dir, "sql"), cfg.QueriesDir)
	assert.Equal(t, filepath.Join(dir, "build", "queries.yaml"), cfg.Output)
	assert.Equal(t, "sqlite", cfg.SchemaKind)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "snake_case", cfg.PropertyNaming)
	assert.False(t, cfg.History)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, []string{".sql"}, cfg.Watch.Extensions)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "queries_dir: [unterminated\n")

	_, err := Load(cfgPath, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestLoad_UpwardSearch(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "queries_dir: sql\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))
	t.Chdir(nested)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(cfg.ProjectRoot)
	require.NoError(t, err)
	assert.Equal(t, resolvedRoot, gotRoot)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "sql"), cfg.QueriesDir)
}

// TestLoad_FlagPrecedence tests that flags override env vars and config file.
func TestLoad_FlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "queries_dir: from_file\n")
	t.Setenv("QUERYGEN_QUERIES_DIR", "from_env")

	flags := testFlags()
	require.NoError(t, flags.Set("queries-dir", "from_flag"))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "from_flag"), cfg.QueriesDir, "flag value should override config file and env var")
}

// TestLoad_EnvPrecedenceOverFile tests that env vars override config file.
func TestLoad_EnvPrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "queries_dir: from_file\nformat: json\n")
	t.Setenv("QUERYGEN_QUERIES_DIR", "from_env")
	t.Setenv("QUERYGEN_FORMAT", "yaml")

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "from_env"), cfg.QueriesDir, "env var should override config file")
	assert.Equal(t, "yaml", cfg.Format)
}

// TestLoad_FlagNotSetUsesEnv tests that unset flags fall back to env vars.
func TestLoad_FlagNotSetUsesEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "queries_dir: from_file\n")
	t.Setenv("QUERYGEN_QUERIES_DIR", "from_env")

	cfg, err := Load(cfgPath, testFlags())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "from_env"), cfg.QueriesDir, "env var should be used when flag is not set")
	assert.True(t, cfg.History, "unset bool flag must not override the default")
}

func TestLoad_RenamedFlagKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "state_path: from_file.db\n")

	flags := testFlags()
	require.NoError(t, flags.Set("state", "/tmp/from_flag.db"))
	require.NoError(t, flags.Set("history", "false"))
	require.NoError(t, flags.Set("config", "ignored.yaml"))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from_flag.db", cfg.StatePath)
	assert.False(t, cfg.History)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SchemaKind:     "auto",
			QueriesDir:     "queries",
			Format:         "json",
			PropertyNaming: "lowerCamelCase",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		s, err := valid().Validate()
		require.NoError(t, err)
		assert.Equal(t, schema.KindAuto, s.SchemaKind)
		assert.Equal(t, engine.FormatJSON, s.Format)
		assert.Equal(t, annotation.NamingLowerCamel, s.Naming)
	})

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"unknown schema kind", func(c *Config) { c.SchemaKind = "postgres" }, "unknown schema kind"},
		{"unknown format", func(c *Config) { c.Format = "toml" }, "toml"},
		{"unknown naming", func(c *Config) { c.PropertyNaming = "kebab" }, "property_naming"},
		{"empty queries_dir", func(c *Config) { c.QueriesDir = "" }, "queries_dir is required"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	fallback := FromContext(ctx)
	assert.Equal(t, "queries", fallback.QueriesDir)
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{QueriesDir: "custom"}
	ctx = NewContext(ctx, cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
