// Package bus defines the outbound messaging contract the outbox relay
// publishes through, plus in-memory and Redis Streams implementations in
// subpackages.
package bus

import "context"

// Message is one published event as consumers see it.
type Message struct {
	Topic        string
	PartitionKey string
	Payload      []byte
}

// Publisher hands events to the transport. Delivery is at-least-once
// from the relay's perspective; consumers must deduplicate.
type Publisher interface {
	Publish(ctx context.Context, topic, partitionKey string, payload []byte) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, topic, partitionKey string, payload []byte) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, topic, partitionKey string, payload []byte) error {
	return f(ctx, topic, partitionKey, payload)
}
