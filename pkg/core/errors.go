package core

import "errors"

// Error categories. Every error that aborts a generation run matches one of
// these with errors.Is.
var (
	// ErrConfiguration indicates a broken build setup (missing schema, bad paths).
	ErrConfiguration = errors.New("querygen: configuration error")
	// ErrParse indicates malformed SQL skeletons or annotation syntax.
	ErrParse = errors.New("querygen: parse error")
	// ErrConsistency indicates statements or annotations that contradict each other.
	ErrConsistency = errors.New("querygen: consistency error")
)
