// Package state records the history of generation runs in a small SQLite
// database next to the project.
package state

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded generation run.
type Run struct {
	ID            string
	Status        RunStatus
	SchemaPath    string
	QueriesDir    string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Statements    int
	SharedResults int
	Error         string
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunStats is what a finished run reports.
type RunStats struct {
	Statements    int
	SharedResults int
}

// Store persists run history.
type Store interface {
	StartRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, stats RunStats) error
	FailRun(ctx context.Context, id string, cause error) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}
