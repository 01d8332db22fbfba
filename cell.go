package latch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// Cell is a single-operation latch: the scalar counterpart of Register for
// code that tracks exactly one asynchronous operation. Reads are lock-free
// and writes follow the same semantics as Register.Apply for one key.
//
// Chainable configuration methods must be called before the cell is shared.
type Cell struct {
	name    string
	clock   clockz.Clock
	metrics MetricsProvider

	state atomic.Pointer[cellState]

	mu   sync.Mutex
	subs []*subscriber
}

// cellState pairs a call state with the instant it was entered.
type cellState struct {
	state   CallState
	entered time.Time
}

// NewCell creates a Cell for the named operation, reading as Init. The
// name is the operation key used in signals, metrics, and Export; use
// latch.Default for the single unnamed slot.
func NewCell(name string) *Cell {
	c := &Cell{
		name:  name,
		clock: clockz.RealClock,
	}
	c.state.Store(&cellState{})
	return c
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic duration testing.
// Must be called before the cell is shared.
func (c *Cell) Clock(clock clockz.Clock) *Cell {
	c.clock = clock
	return c
}

// Metrics sets a metrics provider for observability integration.
// Must be called before the cell is shared.
func (c *Cell) Metrics(provider MetricsProvider) *Cell {
	c.metrics = provider
	return c
}

// Name returns the operation name the cell reports under.
func (c *Cell) Name() string { return c.name }

// State returns the current call state.
func (c *Cell) State() CallState { return c.state.Load().state }

// Loading reports whether the operation is in flight.
func (c *Cell) Loading() bool { return c.State().Loading() }

// Loaded reports whether the operation completed successfully.
func (c *Cell) Loaded() bool { return c.State().Loaded() }

// Failed reports whether the operation completed with an error.
func (c *Cell) Failed() bool { return c.State().Failed() }

// Message returns the failure message, or the empty string for any
// non-failed state.
func (c *Cell) Message() string { return c.State().Message() }

// SetLoading records that the operation is in flight.
func (c *Cell) SetLoading(ctx context.Context) { c.set(ctx, Loading()) }

// SetLoaded records that the operation completed successfully.
func (c *Cell) SetLoaded(ctx context.Context) { c.set(ctx, Loaded()) }

// SetError records that the operation failed with the given message.
// The message is stored verbatim.
func (c *Cell) SetError(ctx context.Context, message string) { c.set(ctx, Failed(message)) }

// set commits one transition. Writes that restate the current state are
// dropped without notifying anyone.
func (c *Cell) set(ctx context.Context, next CallState) {
	c.mu.Lock()
	prev := c.state.Load()
	if prev.state == next {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	var loading time.Duration
	if prev.state.Loading() {
		loading = now.Sub(prev.entered)
	}
	c.state.Store(&cellState{state: next, entered: now})

	subs := append([]*subscriber(nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.offer(c.State())
	}
	emitTransition(ctx, c.metrics, c.name, prev.state, next, loading)
}

// Watch subscribes to the cell's call state: the current value first, then
// each effective transition, conflated to the latest. Same contract as
// Register.Watch.
func (c *Cell) Watch(ctx context.Context, opts ...WatchOption) (<-chan CallState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cfg watchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := newSubscriber()

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	sub.offer(c.state.Load().state)
	c.mu.Unlock()

	out := make(chan CallState)
	go sub.forward(ctx, out, c.clock, cfg, func() { c.drop(sub) })

	return out, nil
}

// drop removes a finished subscription.
func (c *Cell) drop(sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Export projects the cell into its four flat status fields, named after
// the cell's operation name.
func (c *Cell) Export() map[string]any {
	out := make(map[string]any, 4)
	exportInto(out, c.name, c.State())
	return out
}

// Track runs fn under the cell's bookkeeping: Loading before fn runs, then
// Loaded on success or Failed carrying the error's text. The pipeline is
// rebuilt on every call; for stateful middleware across calls, track
// through a Register and its Tracker instead.
func (c *Cell) Track(ctx context.Context, fn func(context.Context) error, opts ...Option) error {
	c.SetLoading(ctx)

	pipeline := buildPipeline(trackTerminal(fn), opts)
	req := &Request{Key: c.name, Started: c.clock.Now()}
	if err := runPipeline(ctx, pipeline, req); err != nil {
		c.SetError(ctx, err.Error())
		return err
	}

	c.SetLoaded(ctx)
	return nil
}
