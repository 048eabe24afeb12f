package annotation

import (
	"fmt"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// ParseError reports malformed annotation syntax or an invalid value.
type ParseError struct {
	File      string
	Statement string
	Line      int
	Key       string
	Message   string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", e.Key, msg)
	}
	if e.Statement != "" {
		msg = fmt.Sprintf("statement %s: %s", e.Statement, msg)
	}
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

// Is makes ParseError match core.ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == core.ErrParse
}
