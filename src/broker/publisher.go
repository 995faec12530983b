package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bbpipe/src/contracts"
)

// Publisher sends pipeline events through a Broker as JSON, keyed by
// pipeline id so every event of one build lands on the same partition.
type Publisher struct {
	broker Broker
	topic  string
}

// NewPublisher publishes to contracts.TopicPipelineStatus.
func NewPublisher(b Broker) *Publisher {
	return &Publisher{broker: b, topic: contracts.TopicPipelineStatus}
}

// PublishPipelineEvent encodes and publishes ev.
func (p *Publisher) PublishPipelineEvent(ctx context.Context, ev contracts.PipelineEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline event: %w", err)
	}
	if err := p.broker.Publish(ctx, p.topic, ev.PipelineID, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// DecodePipelineEvent parses a message published by Publisher.
func DecodePipelineEvent(msg Message) (contracts.PipelineEvent, error) {
	var ev contracts.PipelineEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return contracts.PipelineEvent{}, fmt.Errorf("failed to decode pipeline event at offset %d: %w", msg.Offset, err)
	}
	return ev, nil
}

// EventPublisher is anything that accepts pipeline events.
type EventPublisher interface {
	PublishPipelineEvent(ctx context.Context, ev contracts.PipelineEvent) error
}

// Fanout delivers each event to every publisher, attempting all of them even
// when some fail.
type Fanout []EventPublisher

// PublishPipelineEvent implements EventPublisher.
func (f Fanout) PublishPipelineEvent(ctx context.Context, ev contracts.PipelineEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishPipelineEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
