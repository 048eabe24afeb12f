package sharedresult

import (
	"fmt"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// MismatchError reports a statement whose fields differ from the canonical
// shape of its shared result.
type MismatchError struct {
	SharedResult string
	// Canonical is the statement that established the shape.
	Canonical string
	Statement string
	Field     string
	Message   string
}

func (e *MismatchError) Error() string {
	where := ""
	if e.Field != "" {
		where = fmt.Sprintf(" field %q:", e.Field)
	}
	return fmt.Sprintf("shared result %s: statement %s does not match %s:%s %s",
		e.SharedResult, e.Statement, e.Canonical, where, e.Message)
}

// Is makes MismatchError match core.ErrConsistency.
func (e *MismatchError) Is(target error) bool {
	return target == core.ErrConsistency
}

// ConflictError reports two statements declaring different values for the
// same shared-result declaration.
type ConflictError struct {
	SharedResult string
	Key          string
	First        string
	FirstValue   string
	Second       string
	SecondValue  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("shared result %s: %s conflict: statement %s declares %s, statement %s declares %s",
		e.SharedResult, e.Key, e.First, e.FirstValue, e.Second, e.SecondValue)
}

// Is makes ConflictError match core.ErrConsistency.
func (e *ConflictError) Is(target error) bool {
	return target == core.ErrConsistency
}
