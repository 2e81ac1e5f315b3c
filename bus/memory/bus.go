// Package memory provides an in-process bus for tests and single-node
// deployments.
package memory

import (
	"context"
	"sync"

	"github.com/journeyhq/journey/bus"
)

// Bus fans published messages out to per-topic subscribers and keeps
// everything it has published, so tests can assert on delivery without
// racing a consumer goroutine.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]chan bus.Message
	published []bus.Message
	closed    bool
}

// NewBus creates an empty in-memory bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan bus.Message)}
}

// Publish implements bus.Publisher. Subscribers with full buffers are
// skipped rather than blocked.
func (b *Bus) Publish(_ context.Context, topic, partitionKey string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	msg := bus.Message{Topic: topic, PartitionKey: partitionKey, Payload: payload}
	b.published = append(b.published, msg)

	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a buffered channel of messages for topic and an
// unsubscribe function.
func (b *Bus) Subscribe(topic string) (<-chan bus.Message, func()) {
	ch := make(chan bus.Message, 64)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Published returns a copy of every message published so far.
func (b *Bus) Published() []bus.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]bus.Message, len(b.published))
	copy(out, b.published)
	return out
}

// Close stops accepting publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
