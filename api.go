// Package latch provides call-state tracking primitives for asynchronous
// operations.
//
// The core type is Register, a bank of named call states. Callers report
// lifecycle transitions for each operation they perform, and any number of
// readers observe consistent derived status without hand-rolled boolean
// flags per operation.
//
// # Call States
//
// Every operation is in exactly one of four phases:
//
//   - Init: never invoked
//   - Loading: in flight
//   - Loaded: completed successfully
//   - Failed: completed with an error, carrying the caller's message
//
// Transitions are caller-driven only. A register never invokes or awaits
// work, never times out on its own, and keeps no history: each write
// replaces the previous state, and a retry is simply a fresh Loading
// report for the same key.
//
// # Updates
//
// State changes are immutable patches produced by pure constructors and
// merged atomically:
//
//	reg := latch.New()
//	reg.Apply(ctx, latch.SetLoading("getArticle"))
//	// ... perform the call ...
//	reg.Apply(ctx, latch.SetError("getArticle", "Not Found"))
//
// # Derived Status
//
// Reads are pure projections of the latest applied state:
//
//	reg.Loading("getArticle") // false
//	reg.Failed("getArticle")  // true
//	reg.Message("getArticle") // "Not Found"
//
// Export() flattens the whole register into stable field names for
// templates and JSON payloads ("getArticleLoading", "getArticleError",
// or the bare "loading"/"error" for the Default key).
//
// # Watching
//
// Push-based consumers subscribe instead of polling:
//
//	states, _ := reg.Watch(ctx, "getArticle")
//	for s := range states {
//	    render(s)
//	}
//
// Delivery is conflated: a consumer that falls behind skips intermediate
// states and always receives the latest one next, so rendered status is
// never stale after the next receive.
//
// # Tracked Execution
//
// Track wraps a function call with the loading/loaded/failed bookkeeping,
// composing resilience middleware from pipz:
//
//	err := reg.Track(ctx, "getArticle", fetchArticle,
//	    latch.WithBackoff(3, 100*time.Millisecond),
//	    latch.WithTimeout(5*time.Second),
//	)
//
// # Feeding
//
// A register can mirror call states published by another process. Sources
// emit status documents (JSON or YAML maps of operation key to state)
// which are decoded, validated, and applied atomically; a document that
// fails either stage leaves the register untouched.
//
//	reg := latch.New()
//	err := reg.Feed(ctx, latch.NewFileSource("/run/worker/status.json"))
//
// # Sources
//
// The Source interface abstracts status publishers. The core package
// provides ChannelSource for testing and FileSource using fsnotify.
// Additional sources live in pkg/:
//
//   - pkg/redis: Redis keyspace notifications
//   - pkg/consul: Consul blocking queries
//   - pkg/etcd: etcd Watch API
//   - pkg/nats: NATS JetStream KV
//   - pkg/kubernetes: ConfigMap/Secret watch
//   - pkg/zookeeper: ZooKeeper node watch
//   - pkg/firestore: Firestore realtime listeners
//   - pkg/postgres: PostgreSQL LISTEN/NOTIFY
//
// # Observability
//
// latch never logs. Every effective transition emits capitan signals
// (OperationTransition, OperationLoaded, OperationFailed), and an optional
// MetricsProvider receives per-operation callbacks with Loading-phase
// durations. pkg/prometheus adapts the callbacks to Prometheus collectors.
package latch

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for feed processing.
const DefaultDebounce = 100 * time.Millisecond

// Register is a bank of named call states: a map from caller-chosen
// operation keys to the current CallState of each operation. Keys exist
// implicitly; any key never written reads as Init, and there is no removal.
//
// All methods are safe for concurrent use. Chainable configuration methods
// are the exception: call them before the register is shared or fed.
type Register struct {
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	codec          Codec
	metrics        MetricsProvider
	onStop         func(map[string]CallState)

	lastFailure atomic.Pointer[Failure]
	failures    *failureRing

	mu       sync.RWMutex
	states   map[string]CallState
	entered  map[string]time.Time
	watchers map[string][]*subscriber

	feedMu  sync.Mutex
	feeding bool

	// For sync mode: source channels for manual processing
	changes []<-chan []byte
}

// New creates an empty Register. Every key reads as Init until first
// written.
//
// Instance configuration uses chainable methods before the register is
// shared:
//
//	reg := latch.New().
//	    Codec(latch.YAMLCodec{}).
//	    Debounce(200 * time.Millisecond)
func New() *Register {
	return &Register{
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
		codec:    JSONCodec{},
		failures: newFailureRing(0),
		states:   make(map[string]CallState),
		entered:  make(map[string]time.Time),
		watchers: make(map[string][]*subscriber),
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the debounce duration for feed processing.
// Documents arriving within this duration are coalesced per source.
// Default: 100ms. Must be called before the register is shared or fed.
func (r *Register) Debounce(d time.Duration) *Register {
	r.debounce = d
	return r
}

// SyncMode enables synchronous feed processing for testing.
// In sync mode, documents are processed immediately without debouncing
// or async goroutines, making tests deterministic. Must be called before
// the register is fed.
func (r *Register) SyncMode() *Register {
	r.syncMode = true
	return r
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce and duration
// testing. Must be called before the register is shared or fed.
func (r *Register) Clock(clock clockz.Clock) *Register {
	r.clock = clock
	return r
}

// Codec sets the codec for deserializing status documents.
// Default: JSONCodec. Must be called before the register is fed.
func (r *Register) Codec(codec Codec) *Register {
	r.codec = codec
	return r
}

// StartupTimeout sets the maximum duration to wait for each source's
// initial status document. If a source fails to emit within this duration,
// Feed() returns an error.
// Default: no timeout (wait indefinitely). Must be called before the
// register is fed.
func (r *Register) StartupTimeout(d time.Duration) *Register {
	r.startupTimeout = d
	return r
}

// Metrics sets a metrics provider for observability integration.
// The provider receives callbacks on transitions, load success/failure,
// and feed events. Must be called before the register is shared or fed.
func (r *Register) Metrics(provider MetricsProvider) *Register {
	r.metrics = provider
	return r
}

// OnStop sets a callback that is invoked when a feeding register stops
// mirroring. The callback receives the final snapshot. This is useful for
// graceful shutdown scenarios where cleanup is needed. Must be called
// before the register is fed.
func (r *Register) OnStop(fn func(map[string]CallState)) *Register {
	r.onStop = fn
	return r
}

// FailureHistorySize sets the number of recent failures to retain.
// When set, Failures() returns up to this many recent records.
// Use 0 (default) to only retain the most recent failure via LastFailure().
// Must be called before the register is shared or fed.
func (r *Register) FailureHistorySize(n int) *Register {
	r.failures = newFailureRing(n)
	return r
}

// -----------------------------------------------------------------------------
// Derived Status
// -----------------------------------------------------------------------------

// State returns the current call state of the operation under key.
// Keys never written read as the Init state.
func (r *Register) State(key string) CallState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[key]
}

// Loading reports whether the operation under key is in flight.
func (r *Register) Loading(key string) bool { return r.State(key).Loading() }

// Loaded reports whether the operation under key completed successfully.
func (r *Register) Loaded(key string) bool { return r.State(key).Loaded() }

// Failed reports whether the operation under key completed with an error.
func (r *Register) Failed(key string) bool { return r.State(key).Failed() }

// Message returns the failure message of the operation under key, or the
// empty string for any non-failed state.
func (r *Register) Message(key string) string { return r.State(key).Message() }

// Keys returns the keys that have been written at least once, sorted.
func (r *Register) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.states))
	for k := range r.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys that have been written at least once.
func (r *Register) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// Snapshot returns a copy of every written key's call state. The copy is
// taken atomically: it never interleaves with a concurrent Apply batch.
func (r *Register) Snapshot() map[string]CallState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]CallState, len(r.states))
	for k, s := range r.states {
		snap[k] = s
	}
	return snap
}

// Export projects every written key into flat status fields suitable for
// templates and JSON payloads. Each key contributes four fields named by
// StateField, LoadingField, LoadedField, and ErrorField; the error field is
// nil unless the operation failed. Like Snapshot, the projection is
// atomic with respect to Apply batches.
func (r *Register) Export() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.states)*4)
	for k, s := range r.states {
		exportInto(out, k, s)
	}
	return out
}

// LastFailure returns the most recent failure recorded by the register and
// true, or the zero Failure and false if none has been recorded. Later
// successes do not clear it: it answers "what went wrong last", not "is
// anything wrong now".
func (r *Register) LastFailure() (Failure, bool) {
	ptr := r.lastFailure.Load()
	if ptr == nil {
		return Failure{}, false
	}
	return *ptr, true
}

// Failures returns the recent failure history, oldest first. Returns nil
// if failure history is not enabled (see FailureHistorySize). Status
// documents rejected during feeding are recorded under the "feed" key.
func (r *Register) Failures() []Failure {
	return r.failures.all()
}

// -----------------------------------------------------------------------------
// Applying Updates
// -----------------------------------------------------------------------------

// Apply merges updates into the register as one atomic batch: no reader or
// exported snapshot observes a partially applied batch. Updates for unseen
// keys create their entries; updates that restate the current state are
// dropped without notifying anyone; when a batch names one key twice, the
// last update wins.
//
// Signals, metrics callbacks, and watcher notifications run on the calling
// goroutine after the batch commits.
func (r *Register) Apply(ctx context.Context, updates ...Update) {
	if len(updates) == 0 {
		return
	}

	type transition struct {
		key      string
		old, new CallState
		loading  time.Duration
		subs     []*subscriber
	}

	now := r.clock.Now()

	r.mu.Lock()
	transitions := make([]transition, 0, len(updates))
	for _, u := range updates {
		old := r.states[u.key]
		if old == u.state {
			continue
		}

		var loading time.Duration
		if old.Loading() {
			if entered, ok := r.entered[u.key]; ok {
				loading = now.Sub(entered)
			}
		}

		r.states[u.key] = u.state
		r.entered[u.key] = now

		var subs []*subscriber
		if ws := r.watchers[u.key]; len(ws) > 0 {
			subs = append([]*subscriber(nil), ws...)
		}
		transitions = append(transitions, transition{
			key:     u.key,
			old:     old,
			new:     u.state,
			loading: loading,
			subs:    subs,
		})
	}
	r.mu.Unlock()

	for _, tr := range transitions {
		if len(tr.subs) > 0 {
			// Offer the state current at notification time so racing
			// writers cannot park a subscriber on a stale final value.
			current := r.State(tr.key)
			for _, sub := range tr.subs {
				sub.offer(current)
			}
		}
		r.recordTransition(ctx, tr.key, tr.old, tr.new, tr.loading, now)
	}
}

// recordTransition emits signals and metrics for one effective change and
// records failures.
func (r *Register) recordTransition(ctx context.Context, key string, old, next CallState, loading time.Duration, at time.Time) {
	emitTransition(ctx, r.metrics, key, old, next, loading)
	if next.Failed() {
		r.recordFailure(Failure{Key: key, Message: next.Message(), At: at})
	}
}

// recordFailure stores a failure atomically and adds it to the history.
func (r *Register) recordFailure(f Failure) {
	r.lastFailure.Store(&f)
	r.failures.push(f)
}

// emitTransition emits the transition signal plus the loaded or failed
// signal, mirrored to the metrics provider when one is set. Shared by
// Register and Cell.
func emitTransition(ctx context.Context, metrics MetricsProvider, key string, old, next CallState, loading time.Duration) {
	capitan.Emit(ctx, OperationTransition,
		KeyOperation.Field(key),
		KeyOldState.Field(old.String()),
		KeyNewState.Field(next.String()),
	)
	if metrics != nil {
		metrics.OnTransition(key, old.Phase(), next.Phase())
	}

	switch {
	case next.Loaded():
		capitan.Emit(ctx, OperationLoaded,
			KeyOperation.Field(key),
			KeyElapsed.Field(loading),
		)
		if metrics != nil {
			metrics.OnLoadSuccess(key, loading)
		}

	case next.Failed():
		capitan.Emit(ctx, OperationFailed,
			KeyOperation.Field(key),
			KeyError.Field(next.Message()),
		)
		if metrics != nil {
			metrics.OnLoadFailure(key, loading)
		}
	}
}
