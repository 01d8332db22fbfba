package latch

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// WatchOption configures a single Watch subscription.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
}

// WatchDebounce coalesces rapid transitions on one subscription: delivery
// waits until the state has been quiet for d, then emits the latest value.
// The initial state is always delivered immediately. Use this to suppress
// spinner flicker when an operation flaps between states faster than a UI
// should react.
func WatchDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// Watch subscribes to the call state of the operation under key. The
// returned channel first delivers the state current at subscription time,
// then the state after each effective transition. Delivery is conflated: a
// consumer that falls behind skips intermediate states and receives the
// latest one next, so the register's writers are never blocked by slow
// consumers. The channel is closed when the context is canceled.
//
// Keys never written are watchable; such a subscription first delivers
// Init.
func (r *Register) Watch(ctx context.Context, key string, opts ...WatchOption) (<-chan CallState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cfg watchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := newSubscriber()

	// Registering and seeding under the same lock orders the initial value
	// before any offer from a later Apply batch.
	r.mu.Lock()
	r.watchers[key] = append(r.watchers[key], sub)
	sub.offer(r.states[key])
	r.mu.Unlock()

	out := make(chan CallState)
	go sub.forward(ctx, out, r.clock, cfg, func() { r.dropSubscriber(key, sub) })

	return out, nil
}

// dropSubscriber removes a finished subscription from the watcher list.
func (r *Register) dropSubscriber(key string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.watchers[key]
	for i, s := range subs {
		if s == sub {
			r.watchers[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.watchers[key]) == 0 {
		delete(r.watchers, key)
	}
}

// subscriber is the producer end of one Watch subscription. Its inbox
// holds at most one undelivered state; offering replaces whatever is
// pending, so the consumer always receives the latest value next.
type subscriber struct {
	in chan CallState
}

func newSubscriber() *subscriber {
	return &subscriber{in: make(chan CallState, 1)}
}

// offer replaces any undelivered state with s. It never blocks.
func (s *subscriber) offer(state CallState) {
	for {
		select {
		case s.in <- state:
			return
		default:
			// Inbox full: evict the stale value and retry.
			select {
			case <-s.in:
			default:
			}
		}
	}
}

// forward pumps states from the inbox to out until ctx is done, applying
// the subscription's debounce. The first delivery bypasses the debounce so
// subscribers see the current value immediately. done runs on exit, after
// out is closed.
func (s *subscriber) forward(ctx context.Context, out chan<- CallState, clock clockz.Clock, cfg watchConfig, done func()) {
	defer done()
	defer close(out)

	deliver := func(state CallState) bool {
		select {
		case out <- state:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		timer      clockz.Timer
		pending    CallState
		hasPending bool
		delivered  bool
	)

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case state := <-s.in:
			if !delivered || cfg.debounce <= 0 {
				if !deliver(state) {
					return
				}
				delivered = true
				continue
			}

			pending = state
			hasPending = true

			// Reset or start debounce timer
			if timer == nil {
				timer = clock.NewTimer(cfg.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(cfg.debounce)
			}

		case <-timerC:
			if hasPending {
				if !deliver(pending) {
					return
				}
				hasPending = false
			}
		}
	}
}
