package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	sharedcfg "github.com/leapstack-labs/querygen/internal/config"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/spf13/pflag"
)

// configKey and loggerKey store values in the command context. They live
// here so the commands package can read them without importing cli.
type (
	configKey struct{}
	loggerKey struct{}
)

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// pathKeys are resolved against the project root unless given as flags.
var pathKeys = []string{"schema", "queries_dir", "output", "state_path"}

// flagKeys maps flag names whose config key differs from the flag name
// with dashes turned into underscores.
var flagKeys = map[string]string{
	"state": "state_path",
}

// Loaded is a configuration together with the file it came from.
type Loaded struct {
	*Config
	// File is the config file used, or empty.
	File string
}

// configExistsIn returns the querygen config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range sharedcfg.ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if path := configExistsIn(dir); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == "-" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func flagKey(name string) string {
	if k, ok := flagKeys[name]; ok {
		return k
	}
	return strings.ReplaceAll(name, "-", "_")
}

func defaults() map[string]any {
	return map[string]any{
		"schema":           sharedcfg.DefaultSchema,
		"schema_kind":      sharedcfg.DefaultSchemaKind,
		"queries_dir":      sharedcfg.DefaultQueriesDir,
		"output":           sharedcfg.DefaultOutput,
		"format":           sharedcfg.DefaultFormat,
		"property_naming":  sharedcfg.DefaultPropertyNaming,
		"state_path":       DefaultStateFile,
		"history":          true,
		"verbose":          false,
		"output_format":    DefaultOutputFormat,
		"watch.debounce":   sharedcfg.DefaultDebounce.String(),
		"watch.extensions": []string{".sql", ".yaml", ".yml"},
	}
}

// Load loads configuration. Precedence (highest to lowest): flags > env
// vars > config file > defaults. Without an explicit cfgFile the config is
// searched upward from the working directory, and its directory becomes
// the project root.
func Load(cfgFile string, flags *pflag.FlagSet) (*Loaded, error) {
	k := koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
		cfgFile = abs
		projectRoot = filepath.Dir(abs)
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: error reading config file %s: %w", core.ErrConfiguration, cfgFile, err)
		}
	}

	// 3. Environment: QUERYGEN_QUERIES_DIR -> queries_dir
	if err := k.Load(env.Provider(sharedcfg.EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, sharedcfg.EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	fromFlags := map[string]bool{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := flagKey(f.Name)
			fromFlags[key] = true
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			ErrorUnused:      false,
		},
	}); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %w", core.ErrConfiguration, err)
	}

	// Flag paths are relative to the working directory, everything else to
	// the project root.
	cfg.ProjectRoot = projectRoot
	for _, key := range pathKeys {
		p := pathField(&cfg, key)
		if fromFlags[key] {
			*p = resolvePathRelativeTo(*p, cwd)
		} else {
			*p = resolvePathRelativeTo(*p, projectRoot)
		}
	}
	return &Loaded{Config: &cfg, File: cfgFile}, nil
}

func pathField(cfg *Config, key string) *string {
	switch key {
	case "schema":
		return &cfg.Schema
	case "queries_dir":
		return &cfg.QueriesDir
	case "output":
		return &cfg.Output
	default:
		return &cfg.StatePath
	}
}

// NewContext returns ctx carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by NewContext, or the defaults.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return &Config{
		Schema:         sharedcfg.DefaultSchema,
		SchemaKind:     sharedcfg.DefaultSchemaKind,
		QueriesDir:     sharedcfg.DefaultQueriesDir,
		Output:         sharedcfg.DefaultOutput,
		Format:         sharedcfg.DefaultFormat,
		PropertyNaming: sharedcfg.DefaultPropertyNaming,
		StatePath:      DefaultStateFile,
		History:        true,
		OutputFormat:   DefaultOutputFormat,
		Watch:          WatchConfig{Debounce: sharedcfg.DefaultDebounce, Extensions: []string{".sql", ".yaml", ".yml"}},
	}
}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
