package loader

import (
	"fmt"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// ParseError reports a malformed skeleton document.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// Is makes ParseError match core.ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == core.ErrParse
}

// UnknownFieldError reports a top-level key a skeleton document does not
// support.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in skeleton document", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}

// Is makes UnknownFieldError match core.ErrParse.
func (e *UnknownFieldError) Is(target error) bool {
	return target == core.ErrParse
}
