// Package store records the history of pipeline waits.
package store

import (
	"context"
	"fmt"

	"bbpipe/src/contracts"
)

// Store defines the interface for persisting wait runs.
type Store interface {
	// CreateRun records a run in the waiting state.
	CreateRun(ctx context.Context, run contracts.Run) error

	// CompleteRun marks a run finished with an outcome, or errored when
	// errMsg is non-empty.
	CompleteRun(ctx context.Context, runID, outcome, errMsg string) error

	// GetRun returns a single run.
	GetRun(ctx context.Context, runID string) (*contracts.Run, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]contracts.Run, error)

	// Close closes the store connection
	Close() error
}

// ErrNotFound is returned when a run does not exist.
type ErrNotFound struct {
	RunID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// completedStatus picks the terminal status for CompleteRun.
func completedStatus(errMsg string) string {
	if errMsg != "" {
		return contracts.RunStatusErrored
	}
	return contracts.RunStatusFinished
}
