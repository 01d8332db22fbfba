package latch

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Option configures the processing pipeline for Track, Tracker, and Run.
// Pipeline options wrap the tracked function with middleware for retry,
// timeout, circuit breaking, and other reliability patterns.
//
// Instance configuration (debounce, sync mode, codec, etc.) is handled via
// chainable methods on the Register.
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline(terminal pipz.Chainable[*Request], opts []Option) pipz.Chainable[*Request] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// -----------------------------------------------------------------------------
// Pipeline Options - Wrapping (With*)
// -----------------------------------------------------------------------------
// These options wrap the entire pipeline, providing protection at the boundary.
// Use for resilience patterns that should apply to the whole tracked call.

// WithRetry wraps the pipeline with retry logic.
// Failed calls are retried immediately up to maxAttempts times. The
// operation stays Loading across attempts.
// For exponential backoff between retries, use WithBackoff instead.
func WithRetry(maxAttempts int) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRetry("retry", p, maxAttempts)
	}
}

// WithBackoff wraps the pipeline with exponential backoff retry logic.
// Failed calls are retried with increasing delays: baseDelay, 2*baseDelay,
// 4*baseDelay, etc.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewBackoff("backoff", p, maxAttempts, baseDelay)
	}
}

// WithTimeout wraps the pipeline with a timeout.
// If the tracked call takes longer than the specified duration, it fails
// with a timeout error and the operation transitions to Failed.
func WithTimeout(d time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout("timeout", p, d)
	}
}

// WithFallback wraps the pipeline with fallback processors.
// If the primary pipeline fails, each fallback is tried in order until one
// succeeds; the operation only transitions to Failed when all of them fail.
func WithFallback(fallbacks ...pipz.Chainable[*Request]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		all := append([]pipz.Chainable[*Request]{p}, fallbacks...)
		return pipz.NewFallback("fallback", all...)
	}
}

// WithCircuitBreaker wraps the pipeline with circuit breaker protection.
// After 'failures' consecutive failures, the circuit opens and rejects
// further calls until 'recovery' time has passed.
//
// The circuit breaker has three states:
//   - Closed: Normal operation, calls pass through
//   - Open: After threshold failures, calls are rejected immediately
//   - Half-Open: After recovery timeout, one call is allowed to test recovery
//
// Note: Circuit breaker is stateful; build it into a reusable Tracker so
// the state survives across calls. There is no Use* equivalent - it only
// makes sense as a wrapper.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker("circuit-breaker", p, failures, recovery)
	}
}

// WithErrorHandler adds error observation to the pipeline.
// Errors are passed to the handler for logging, metrics, or alerting,
// but the error still propagates and the operation still transitions to
// Failed. Use this for observability, not recovery.
//
// Note: There is no Use* equivalent - error handling wraps the pipeline.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Request]]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewHandle("error-handler", p, handler)
	}
}

// -----------------------------------------------------------------------------
// Pipeline Options - Middleware Composition
// -----------------------------------------------------------------------------

// WithMiddleware wraps the pipeline with a sequence of processors.
// Processors execute in order, with the tracked function last.
//
// Use the Use* functions to create processors for common patterns,
// or provide custom pipz.Chainable implementations directly.
//
// Example:
//
//	reg.Track(ctx, "getArticle", fetchArticle,
//	    latch.WithMiddleware(
//	        latch.UseEffect("audit", auditFn),
//	        latch.UseRateLimit(10, 5),
//	    ),
//	    latch.WithTimeout(5*time.Second),
//	)
func WithMiddleware(processors ...pipz.Chainable[*Request]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		all := make([]pipz.Chainable[*Request], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence("middleware", all...)
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors - Adapters (Use*)
// -----------------------------------------------------------------------------
// These create processors for use inside WithMiddleware.
// They transform or observe the request as it flows through the pipeline.

// UseTransform creates a processor that transforms the request.
// Cannot fail. Use for pure transformations that always succeed.
func UseTransform(name string, fn func(context.Context, *Request) *Request) pipz.Chainable[*Request] {
	return pipz.Transform(pipz.Name(name), fn)
}

// UseApply creates a processor that can transform the request and fail.
// A failure here aborts the tracked call before the function runs.
func UseApply(name string, fn func(context.Context, *Request) (*Request, error)) pipz.Chainable[*Request] {
	return pipz.Apply(pipz.Name(name), fn)
}

// UseEffect creates a processor that performs a side effect.
// The request passes through unchanged. Use for audit hooks, metrics,
// or notifications that should not affect the tracked call.
func UseEffect(name string, fn func(context.Context, *Request) error) pipz.Chainable[*Request] {
	return pipz.Effect(pipz.Name(name), fn)
}

// UseMutate creates a processor that conditionally transforms the request.
// The transformer is only applied if the condition returns true.
func UseMutate(name string, transformer func(context.Context, *Request) *Request, condition func(context.Context, *Request) bool) pipz.Chainable[*Request] {
	return pipz.Mutate(pipz.Name(name), transformer, condition)
}

// UseEnrich creates a processor that attempts optional enhancement.
// If the enrichment fails, processing continues with the original request.
// Use for non-critical enhancements.
func UseEnrich(name string, fn func(context.Context, *Request) (*Request, error)) pipz.Chainable[*Request] {
	return pipz.Enrich(pipz.Name(name), fn)
}

// -----------------------------------------------------------------------------
// Middleware Processors - Wrapping (Use*)
// -----------------------------------------------------------------------------
// These wrap another processor with reliability logic.

// UseRetry wraps a processor with retry logic.
// Failed operations are retried immediately up to maxAttempts times.
func UseRetry(maxAttempts int, processor pipz.Chainable[*Request]) pipz.Chainable[*Request] {
	return pipz.NewRetry("retry", processor, maxAttempts)
}

// UseBackoff wraps a processor with exponential backoff retry logic.
// Failed operations are retried with increasing delays.
func UseBackoff(maxAttempts int, baseDelay time.Duration, processor pipz.Chainable[*Request]) pipz.Chainable[*Request] {
	return pipz.NewBackoff("backoff", processor, maxAttempts, baseDelay)
}

// UseTimeout wraps a processor with a deadline.
// If processing takes longer than the specified duration, the operation fails.
func UseTimeout(d time.Duration, processor pipz.Chainable[*Request]) pipz.Chainable[*Request] {
	return pipz.NewTimeout("timeout", processor, d)
}

// UseFallback wraps a processor with fallback alternatives.
// If the primary fails, each fallback is tried in order.
func UseFallback(primary pipz.Chainable[*Request], fallbacks ...pipz.Chainable[*Request]) pipz.Chainable[*Request] {
	all := append([]pipz.Chainable[*Request]{primary}, fallbacks...)
	return pipz.NewFallback("fallback", all...)
}

// UseFilter wraps a processor with a condition.
// If the condition returns false, the request passes through unchanged.
func UseFilter(name string, condition func(context.Context, *Request) bool, processor pipz.Chainable[*Request]) pipz.Chainable[*Request] {
	return pipz.NewFilter(pipz.Name(name), condition, processor)
}

// -----------------------------------------------------------------------------
// Middleware Processors - Standalone (Use*)
// -----------------------------------------------------------------------------
// These create standalone processors that don't wrap anything.

// UseRateLimit creates a rate limiting processor.
// Uses a token bucket algorithm with the specified rate (tokens per second)
// and burst size. When tokens are exhausted, tracked calls wait for
// availability while the operation reads as Loading.
func UseRateLimit(rate float64, burst int) pipz.Chainable[*Request] {
	return pipz.NewRateLimiter[*Request]("rate-limiter", rate, burst)
}
