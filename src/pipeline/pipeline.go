// Package pipeline wires the Bitbucket client to the event broker and the
// run history. It is shared by the CLI and the MCP server.
package pipeline

import (
	"context"
	"fmt"

	"bbpipe/src/bitbucket"
	"bbpipe/src/broker"
	"bbpipe/src/config"
	"bbpipe/src/logger"
	"bbpipe/src/store"
)

// Mode selects where events and history go.
type Mode int

const (
	// LocalMode keeps history in memory and publishes no events.
	LocalMode Mode = iota
	// DistributedMode publishes to Redpanda and/or records to Postgres.
	DistributedMode
)

func (m Mode) String() string {
	if m == DistributedMode {
		return "distributed"
	}
	return "local"
}

// DetectMode picks DistributedMode when any external backend is configured.
func DetectMode(cfg *config.Config) Mode {
	if len(cfg.RedpandaBrokers) > 0 || cfg.PostgresDSN != "" {
		return DistributedMode
	}
	return LocalMode
}

// Backend holds the optional broker and the history store.
type Backend struct {
	Mode   Mode
	Broker broker.Broker
	Store  store.Store
}

// Open connects to whatever cfg enables. Without Redpanda the backend has no
// broker; without Postgres history is kept in memory for this process.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	b := &Backend{Mode: DetectMode(cfg)}

	if len(cfg.RedpandaBrokers) > 0 {
		rp, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		b.Broker = rp
		log.Debug("publishing pipeline events to %v", cfg.RedpandaBrokers)
	}

	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to create Postgres store: %w", err)
		}
		b.Store = pg
		log.Debug("recording runs to Postgres")
	} else {
		b.Store = store.NewInMemoryStore()
	}

	return b, nil
}

// Events returns the publisher for the configured broker, or nil.
func (b *Backend) Events() bitbucket.EventPublisher {
	if b.Broker == nil {
		return nil
	}
	return broker.NewPublisher(b.Broker)
}

// Close shuts down the broker and the store.
func (b *Backend) Close() error {
	var firstErr error
	if b.Broker != nil {
		if err := b.Broker.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
