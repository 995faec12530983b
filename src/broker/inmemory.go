package broker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("broker is closed")

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// InMemoryBroker fans messages out to subscribers within one process. A
// subscriber whose buffer is full misses the message rather than stalling
// the publisher.
type InMemoryBroker struct {
	mu      sync.RWMutex
	subs    map[string][]chan Message
	offsets map[string]int64
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs:    make(map[string][]chan Message),
		offsets: make(map[string]int64),
		done:    make(chan struct{}),
	}
}

// Publish delivers value to every current subscriber of topic.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Write lock: offsets and dropped are updated, and channels must not be
	// closed mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    b.offsets[topic],
		Timestamp: time.Now().UnixMilli(),
	}
	b.offsets[topic]++

	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			b.dropped++
		}
	}
	return nil
}

// Subscribe registers a new subscriber on topic. The channel is closed when
// ctx is done or the broker is closed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, subscriberBuffer)
	b.subs[topic] = append(b.subs[topic], ch)

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(topic, ch)
		case <-b.done:
		}
	}()

	return ch, nil
}

func (b *InMemoryBroker) unsubscribe(topic string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, c := range subs {
		if c == ch {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (b *InMemoryBroker) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close closes every subscriber channel. Further calls are no-ops.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
