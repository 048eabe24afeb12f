package schema

import (
	"fmt"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// ConfigError reports a schema source that cannot be used: a missing path,
// a directory where a file was expected, an empty directory or a file that
// is not SQL.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("schema %s: %s", e.Path, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes ConfigError match core.ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == core.ErrConfiguration
}
