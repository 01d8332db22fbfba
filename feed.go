package latch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// feedFailureKey is the pseudo-key under which rejected status documents
// are recorded in the failure history. It is not an operation key: the
// register's states never contain it unless a caller writes it.
const feedFailureKey = "feed"

// Feed begins mirroring status documents from sources into the register.
// It blocks until every source has emitted its initial document and the
// initial documents are applied, then continues mirroring asynchronously.
//
// Each document is authoritative for the keys it names and silent about
// the rest: keys absent from a document keep their current state, so fed
// keys and locally applied keys coexist in one register. A document that
// fails decoding or validation changes nothing; the rejection is recorded
// under the "feed" key and emitted as a signal.
//
// If an initial document is rejected, Feed returns the error but keeps
// mirroring in the background for valid updates.
//
// In sync mode, Feed only processes the initial documents. Use Process()
// to manually process subsequent ones.
//
// Feed can only be called once. Subsequent calls return an error.
func (r *Register) Feed(ctx context.Context, sources ...Source) error {
	r.feedMu.Lock()
	if r.feeding {
		r.feedMu.Unlock()
		return fmt.Errorf("register already feeding")
	}
	r.feeding = true
	r.feedMu.Unlock()

	if len(sources) == 0 {
		return fmt.Errorf("feed requires at least one source")
	}

	capitan.Emit(ctx, FeedStarted,
		KeyDebounce.Field(r.debounce),
		KeySources.Field(len(sources)),
	)

	// Start all source watchers
	r.changes = make([]<-chan []byte, len(sources))
	for i, src := range sources {
		ch, err := src.Watch(ctx)
		if err != nil {
			return fmt.Errorf("failed to start source %d: %w", i, err)
		}
		r.changes[i] = ch
	}

	// Wait for the initial document from each source
	// Wrap context with startup timeout if configured
	startupCtx := ctx
	if r.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = r.clock.WithTimeout(ctx, r.startupTimeout)
		defer cancel()
	}

	var initialErr error
	for i, ch := range r.changes {
		select {
		case <-startupCtx.Done():
			if r.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("startup timeout: source %d did not emit initial document within %v", i, r.startupTimeout)
			}
			return startupCtx.Err()
		case raw, ok := <-ch:
			if !ok {
				return fmt.Errorf("source %d closed before emitting initial document", i)
			}
			capitan.Emit(ctx, FeedChangeReceived,
				KeySource.Field(i),
			)
			if r.metrics != nil {
				r.metrics.OnChangeReceived()
			}
			if err := r.ingest(ctx, i, raw); err != nil && initialErr == nil {
				initialErr = err
			}
		}
	}

	if r.syncMode {
		return initialErr
	}

	// Continue mirroring asynchronously
	go r.mirror(ctx)

	return initialErr
}

// Process ingests pending documents from the sources, one per source at
// most. This is only available in sync mode and is used for deterministic
// testing. Returns true if at least one document was processed.
func (r *Register) Process(ctx context.Context) bool {
	if !r.syncMode {
		return false
	}

	processed := false
	for i, ch := range r.changes {
		select {
		case raw, ok := <-ch:
			if !ok {
				continue
			}
			capitan.Emit(ctx, FeedChangeReceived,
				KeySource.Field(i),
			)
			if r.metrics != nil {
				r.metrics.OnChangeReceived()
			}
			_ = r.ingest(ctx, i, raw) //nolint:errcheck // Rejections recorded via failure ring
			processed = true
		default:
		}
	}
	return processed
}

// ingest decodes, validates, and applies one status document. A document
// that fails either stage leaves the register untouched.
func (r *Register) ingest(ctx context.Context, source int, raw []byte) error {
	doc, err := decodeStatus(r.codec, raw)
	if err != nil {
		capitan.Emit(ctx, FeedDecodeFailed,
			KeySource.Field(source),
			KeyError.Field(err.Error()),
		)
		if r.metrics != nil {
			r.metrics.OnFeedFailure("decode")
		}
		r.recordFailure(Failure{Key: feedFailureKey, Message: err.Error(), At: r.clock.Now()})
		return fmt.Errorf("decode source %d failed: %w", source, err)
	}

	states, err := statusStates(doc)
	if err != nil {
		capitan.Emit(ctx, FeedValidationFailed,
			KeySource.Field(source),
			KeyError.Field(err.Error()),
		)
		if r.metrics != nil {
			r.metrics.OnFeedFailure("validate")
		}
		r.recordFailure(Failure{Key: feedFailureKey, Message: err.Error(), At: r.clock.Now()})
		return fmt.Errorf("validate source %d failed: %w", source, err)
	}

	r.applyStates(ctx, states)
	return nil
}

// applyStates merges fed call states as one Apply batch, in key order so
// transitions emit deterministically.
func (r *Register) applyStates(ctx context.Context, states map[string]CallState) {
	if len(states) == 0 {
		return
	}

	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := make([]Update, 0, len(keys))
	for _, k := range keys {
		batch = append(batch, Update{key: k, state: states[k]})
	}
	r.Apply(ctx, batch...)
}

// mirror processes documents from all sources with debouncing. The latest
// document per source is retained during the debounce window and ingested
// in source order when the window closes.
func (r *Register) mirror(ctx context.Context) {
	defer func() {
		capitan.Emit(ctx, FeedStopped)
		if r.onStop != nil {
			r.onStop(r.Snapshot())
		}
	}()

	type arrival struct {
		source int
		raw    []byte
	}

	// Fan-in channel: source goroutines forward documents as they arrive
	changed := make(chan arrival, len(r.changes))

	var wg sync.WaitGroup
	wg.Add(len(r.changes))

	for i, ch := range r.changes {
		go func(idx int, ch <-chan []byte) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-ch:
					if !ok {
						return
					}
					select {
					case changed <- arrival{source: idx, raw: raw}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, ch)
	}

	// Single goroutine handles debouncing and ingestion
	go func() {
		var (
			timer      clockz.Timer
			timerC     <-chan time.Time
			hasPending bool
		)
		pending := make([][]byte, len(r.changes))

		flush := func() {
			for i, raw := range pending {
				if raw == nil {
					continue
				}
				_ = r.ingest(ctx, i, raw) //nolint:errcheck // Rejections recorded via failure ring
				pending[i] = nil
			}
			hasPending = false
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case a, ok := <-changed:
				if !ok {
					// All sources closed; apply any pending documents
					if hasPending {
						flush()
					}
					return
				}

				capitan.Emit(ctx, FeedChangeReceived,
					KeySource.Field(a.source),
				)
				if r.metrics != nil {
					r.metrics.OnChangeReceived()
				}
				pending[a.source] = a.raw
				hasPending = true

				// Reset or start debounce timer
				if timer == nil {
					timer = r.clock.NewTimer(r.debounce)
					timerC = timer.C()
				} else {
					if !timer.Stop() {
						select {
						case <-timerC:
						default:
						}
					}
					timer.Reset(r.debounce)
				}

			case <-timerC:
				if hasPending {
					flush()
				}
			}
		}
	}()

	wg.Wait()
	close(changed)
}
