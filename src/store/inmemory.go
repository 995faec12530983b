package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bbpipe/src/contracts"
)

// InMemoryStore is a thread-safe in-memory implementation of Store.
// Used when no database is configured and by the MCP server.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*contracts.Run
	now  func() time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]*contracts.Run),
		now:  time.Now,
	}
}

// CreateRun records run in the waiting state.
func (s *InMemoryStore) CreateRun(ctx context.Context, run contracts.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return fmt.Errorf("run already exists: %s", run.RunID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	run.Status = contracts.RunStatusWaiting
	s.runs[run.RunID] = &run
	return nil
}

// CompleteRun records the end of a run.
func (s *InMemoryStore) CompleteRun(ctx context.Context, runID, outcome, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound{RunID: runID}
	}
	completed := s.now()
	run.Status = completedStatus(errMsg)
	run.Outcome = outcome
	run.Error = errMsg
	run.CompletedAt = &completed
	return nil
}

// GetRun returns a copy of a run.
func (s *InMemoryStore) GetRun(ctx context.Context, runID string) (*contracts.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound{RunID: runID}
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryStore) ListRuns(ctx context.Context, limit int) ([]contracts.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]contracts.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].RunID > runs[j].RunID
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close is a no-op for in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
