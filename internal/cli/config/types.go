// Package config loads querygen CLI configuration from defaults, the
// project config file, QUERYGEN_ environment variables and flags.
package config

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/querygen/internal/annotation"
	sharedcfg "github.com/leapstack-labs/querygen/internal/config"
	"github.com/leapstack-labs/querygen/internal/engine"
	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// Config holds all CLI configuration options.
type Config struct {
	Schema         string      `koanf:"schema"`
	SchemaKind     string      `koanf:"schema_kind"`
	QueriesDir     string      `koanf:"queries_dir"`
	Output         string      `koanf:"output"`
	Format         string      `koanf:"format"`
	PropertyNaming string      `koanf:"property_naming"`
	StatePath      string      `koanf:"state_path"`
	History        bool        `koanf:"history"`
	Verbose        bool        `koanf:"verbose"`
	OutputFormat   string      `koanf:"output_format"`
	Watch          WatchConfig `koanf:"watch"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// WatchConfig tunes generate --watch.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
	// Extensions lists the file extensions that trigger a new run.
	Extensions []string `koanf:"extensions"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultStateFile    = sharedcfg.DefaultStateFile
	DefaultOutputFormat = sharedcfg.DefaultOutputFormat
)

// Settings are the validated, typed forms of the enumerated options.
type Settings struct {
	SchemaKind schema.Kind
	Format     engine.Format
	Naming     annotation.NamingStrategy
}

// Validate checks the enumerated options and returns their typed forms.
func (c *Config) Validate() (Settings, error) {
	var s Settings
	var err error
	if s.SchemaKind, err = schema.ParseKind(c.SchemaKind); err != nil {
		return s, err
	}
	if s.Format, err = engine.ParseFormat(c.Format); err != nil {
		return s, err
	}
	if s.Naming, err = annotation.ParseNamingStrategy(c.PropertyNaming); err != nil {
		return s, fmt.Errorf("%w: property_naming: %w", core.ErrConfiguration, err)
	}
	if c.QueriesDir == "" {
		return s, fmt.Errorf("%w: queries_dir is required", core.ErrConfiguration)
	}
	if c.Watch.Debounce < 0 {
		return s, fmt.Errorf("%w: watch.debounce must not be negative", core.ErrConfiguration)
	}
	return s, nil
}
