package latch

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/pipz"
)

// trackID names the terminal pipeline stage that invokes the tracked
// function.
const trackID pipz.Name = "track"

// Request carries tracking metadata through the processing pipeline built
// by Track and Tracker. Middleware stages can inspect which operation is
// running and when tracking began.
type Request struct {
	// Key is the operation key being tracked.
	Key string

	// Started is when tracking began, on the owning register's clock.
	Started time.Time

	mu  sync.Mutex
	err error
}

// setErr records the tracked function's result for the attempt that just
// ran.
func (r *Request) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// lastErr returns the error from the most recent attempt, or nil.
func (r *Request) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Track runs fn under the register's bookkeeping for key: Loading is
// applied before fn runs, then Loaded on success or Failed carrying the
// error's text on failure. The error is also returned to the caller.
//
// Pipeline options wrap fn with middleware. Retries happen inside a single
// Track call, so the key stays Loading across attempts and observers see
// one transition pair per call. The pipeline is rebuilt on every call;
// stateful middleware like WithCircuitBreaker only accumulates state
// across calls on a reusable Tracker.
func (r *Register) Track(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	return r.Tracker(key, fn, opts...).Do(ctx)
}

// Tracker is a reusable tracked operation. The pipeline, including
// stateful middleware like circuit breakers and rate limiters, is built
// once and shared by every Do call.
type Tracker struct {
	reg      *Register
	key      string
	pipeline pipz.Chainable[*Request]
}

// Tracker builds a reusable tracker that reports fn's lifecycle under key.
//
// Example:
//
//	fetch := reg.Tracker("getArticle", fetchArticle,
//	    latch.WithCircuitBreaker(5, 30*time.Second),
//	)
//	// per request:
//	err := fetch.Do(ctx)
func (r *Register) Tracker(key string, fn func(context.Context) error, opts ...Option) *Tracker {
	return &Tracker{
		reg:      r,
		key:      key,
		pipeline: buildPipeline(trackTerminal(fn), opts),
	}
}

// Key returns the operation key the tracker reports under.
func (t *Tracker) Key() string { return t.key }

// Do runs the tracked operation once: Loading, then the pipeline, then
// Loaded or Failed.
//
// On failure the error returned (and stored as the failure message) is the
// one produced by the tracked function itself whenever it ran; pipeline
// wrapping from middleware is only surfaced when the function never got to
// report, such as a circuit breaker rejecting the call.
func (t *Tracker) Do(ctx context.Context) error {
	t.reg.Apply(ctx, SetLoading(t.key))

	req := &Request{Key: t.key, Started: t.reg.clock.Now()}
	if err := runPipeline(ctx, t.pipeline, req); err != nil {
		t.reg.Apply(ctx, SetError(t.key, err.Error()))
		return err
	}

	t.reg.Apply(ctx, SetLoaded(t.key))
	return nil
}

// trackTerminal wraps a tracked function as the pipeline's terminal stage,
// recording its result on the request as it runs.
func trackTerminal(fn func(context.Context) error) pipz.Chainable[*Request] {
	return pipz.Effect(trackID, func(ctx context.Context, req *Request) error {
		err := fn(ctx)
		req.setErr(err)
		return err
	})
}

// runPipeline processes one request, preferring the tracked function's own
// error over the pipeline's wrapped form.
func runPipeline(ctx context.Context, pipeline pipz.Chainable[*Request], req *Request) error {
	if _, perr := pipeline.Process(ctx, req); perr != nil {
		if err := req.lastErr(); err != nil {
			return err
		}
		return perr
	}
	return nil
}

// Run executes fn under Track bookkeeping and returns its value. Result
// data stays with the caller; the register records only the lifecycle.
//
//	article, err := latch.Run(ctx, reg, "getArticle", func(ctx context.Context) (Article, error) {
//	    return client.Fetch(ctx, id)
//	})
func Run[T any](ctx context.Context, r *Register, key string, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := r.Track(ctx, key, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}
