package mcp

import (
	"context"
	"sync"

	"bbpipe/src/contracts"
)

// EventCache keeps the latest event per pipeline. It is handed to every wait
// as an extra publisher so pipeline_status can report what the server saw.
type EventCache struct {
	mu     sync.RWMutex
	latest map[string]contracts.PipelineEvent
}

// NewEventCache creates an empty cache.
func NewEventCache() *EventCache {
	return &EventCache{latest: make(map[string]contracts.PipelineEvent)}
}

// PublishPipelineEvent records ev as the latest for its pipeline.
func (c *EventCache) PublishPipelineEvent(ctx context.Context, ev contracts.PipelineEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest[ev.PipelineID] = ev
	return nil
}

// Get returns the latest event for a pipeline.
func (c *EventCache) Get(pipelineID string) (contracts.PipelineEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ev, ok := c.latest[pipelineID]
	return ev, ok
}

// Waiting returns the ids of pipelines whose latest event is not final.
func (c *EventCache) Waiting() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, ev := range c.latest {
		if !ev.Final {
			ids = append(ids, id)
		}
	}
	return ids
}
