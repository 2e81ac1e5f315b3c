// Package redisstream publishes events onto Redis Streams, one stream
// per topic. Consumers read with XREAD/XREADGROUP; the partition key
// travels as a field so consumer groups can shard on it.
package redisstream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher implements bus.Publisher over Redis Streams.
type Publisher struct {
	client redis.UniversalClient

	// prefix namespaces stream keys, e.g. "journey:" yields streams
	// like "journey:journey.instances".
	prefix string

	// maxLen caps each stream with approximate trimming (XADD MAXLEN ~).
	// Zero means unbounded.
	maxLen int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the stream key namespace.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithMaxLen caps streams at approximately n entries.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// NewPublisher creates a Redis Streams publisher over an existing client.
func NewPublisher(client redis.UniversalClient, opts ...Option) *Publisher {
	p := &Publisher{client: client, prefix: "journey:"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish appends the event to the topic's stream.
func (p *Publisher) Publish(ctx context.Context, topic, partitionKey string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: p.prefix + topic,
		Values: map[string]any{
			"partition_key": partitionKey,
			"payload":       payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisstream: publish to %s: %w", topic, err)
	}
	return nil
}
