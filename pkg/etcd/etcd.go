// Package etcd provides a latch.Source implementation for etcd keys
// using the native Watch API.
package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Source watches an etcd key holding a status document, using the Watch
// API.
type Source struct {
	client *clientv3.Client
	key    string
}

// Option configures a Source.
type Option func(*Source)

// New creates a new Source for the given etcd key.
func New(client *clientv3.Client, key string, opts ...Option) *Source {
	s := &Source{
		client: client,
		key:    key,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching the etcd key and returns a channel that emits the
// key's value whenever it changes. The current value is emitted immediately
// to support the initial mirror.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	// Get initial value
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		// Emit initial value if key exists
		if len(resp.Kvs) > 0 {
			select {
			case out <- resp.Kvs[0].Value:
			case <-ctx.Done():
				return
			}
		}

		// Watch for changes starting from current revision
		watchChan := s.client.Watch(ctx, s.key, clientv3.WithRev(resp.Header.Revision+1))

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					continue
				}

				for _, event := range watchResp.Events {
					// Only emit on PUT events (not DELETE)
					if event.Type == clientv3.EventTypePut {
						select {
						case out <- event.Kv.Value:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return out, nil
}
