package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTopicIsolation verifies subscribers on different topics do not receive wrong messages.
func TestTopicIsolation(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	chA, err := broker.Subscribe(ctx, "topic-a", "g")
	if err != nil {
		t.Fatalf("Subscribe to topic-a failed: %v", err)
	}
	chB, err := broker.Subscribe(ctx, "topic-b", "g")
	if err != nil {
		t.Fatalf("Subscribe to topic-b failed: %v", err)
	}

	testMsg := []byte("message for topic-a")
	if err := broker.Publish(ctx, "topic-a", "k", testMsg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case received := <-chA:
		if string(received.Value) != string(testMsg) {
			t.Errorf("Expected %q, got %q", testMsg, received.Value)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for message on topic-a")
	}

	select {
	case msg := <-chB:
		t.Errorf("Topic B should not receive message, but got: %q", msg.Value)
	case <-time.After(100 * time.Millisecond):
		// Expected: no message received
	}
}

func TestOffsetsIncreasePerTopic(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	ch, _ := broker.Subscribe(ctx, "t", "g")
	for i := 0; i < 3; i++ {
		_ = broker.Publish(ctx, "t", "k", []byte("m"))
	}
	_ = broker.Publish(ctx, "other", "k", []byte("m"))

	for want := int64(0); want < 3; want++ {
		msg := <-ch
		if msg.Offset != want {
			t.Errorf("Offset = %d, want %d", msg.Offset, want)
		}
	}
}

// TestConcurrentPublishSubscribe verifies the mutex correctly protects the subscribers map.
func TestConcurrentPublishSubscribe(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const numGoroutines = 50
	var wg sync.WaitGroup

	// Half goroutines publish, half subscribe
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		if i%2 == 0 {
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_ = broker.Publish(ctx, "concurrent-topic", "k", []byte("msg"))
				}
			}()
		} else {
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_, _ = broker.Subscribe(ctx, "concurrent-topic", "g")
				}
			}()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success - no race conditions
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout - possible deadlock in concurrent access")
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	if _, err := broker.Subscribe(ctx, "t", "g"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			_ = broker.Publish(ctx, "t", "k", []byte("m"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := broker.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, "t", "g")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// Publishing afterwards must not panic on the closed channel.
	if err := broker.Publish(context.Background(), "t", "k", []byte("m")); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}

// TestCloseGracefulShutdown verifies broker.Close() correctly closes all subscriber channels.
func TestCloseGracefulShutdown(t *testing.T) {
	broker := NewInMemoryBroker()

	ctx := context.Background()
	ch1, err := broker.Subscribe(ctx, "topic-1", "g")
	if err != nil {
		t.Fatalf("Subscribe to topic-1 failed: %v", err)
	}
	ch2, err := broker.Subscribe(ctx, "topic-2", "g")
	if err != nil {
		t.Fatalf("Subscribe to topic-2 failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for range ch1 {
		}
	}()
	go func() {
		defer wg.Done()
		for range ch2 {
		}
	}()

	if err := broker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := broker.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success - both goroutines exited
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout - goroutines did not exit, channels may not be closed")
	}
}
