// Package redis provides a latch.Source implementation for Redis keys
// using keyspace notifications.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Source watches a Redis key holding a status document and emits its value
// whenever it changes, using keyspace notifications. Requires Redis to
// have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
type Source struct {
	client *redis.Client
	key    string
}

// Option configures a Source.
type Option func(*Source)

// New creates a new Source for the given Redis key.
func New(client *redis.Client, key string, opts ...Option) *Source {
	s := &Source{
		client: client,
		key:    key,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching the Redis key and returns a channel that emits the
// key's value whenever it changes. The current value is emitted immediately
// to support the initial mirror.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	// Subscribe to keyspace notifications for this key
	channel := fmt.Sprintf("__keyspace@0__:%s", s.key)
	pubsub := s.client.Subscribe(ctx, channel)

	// Verify subscription worked
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		// Emit initial value
		val, err := s.client.Get(ctx, s.key).Bytes()
		if err != nil && err != redis.Nil {
			return
		}
		if err != redis.Nil {
			select {
			case out <- val:
			case <-ctx.Done():
				return
			}
		}

		// Watch for changes
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				// Only react to set operations
				switch msg.Payload {
				case "set", "hset", "mset", "setex", "psetex", "setnx":
					val, err := s.client.Get(ctx, s.key).Bytes()
					if err != nil {
						continue
					}
					select {
					case out <- val:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}
