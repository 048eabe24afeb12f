// Package config holds the defaults shared by the CLI and the engine.
package config

import "time"

// Default configuration values.
const (
	DefaultSchema         = "schema"
	DefaultSchemaKind     = "auto"
	DefaultQueriesDir     = "queries"
	DefaultOutput         = "-"
	DefaultFormat         = "json"
	DefaultPropertyNaming = "lowerCamelCase"
	DefaultStateFile      = ".querygen/state.db"
	DefaultOutputFormat   = "auto" // TTY=text, non-TTY=markdown
	DefaultDebounce       = 300 * time.Millisecond
	DefaultHistoryLimit   = 20
)

// ConfigFileNames are the config file names looked up in a project root,
// in order of preference.
var ConfigFileNames = []string{"querygen.yaml", "querygen.yml"}

// EnvPrefix prefixes every environment variable read as configuration.
const EnvPrefix = "QUERYGEN_"
