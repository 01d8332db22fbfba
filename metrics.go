package latch

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key call-state events.
// Callbacks run synchronously on the goroutine applying the update, so
// implementations must be fast and safe for concurrent use.
type MetricsProvider interface {
	// OnTransition is called once per effective state change, after the new
	// state is visible to readers. Writes that restate the current state do
	// not report.
	OnTransition(key string, from, to Phase)

	// OnLoadSuccess is called when an operation transitions to Loaded.
	// Duration is the time the operation spent in the Loading phase on the
	// store's clock, or zero if it was never Loading.
	OnLoadSuccess(key string, duration time.Duration)

	// OnLoadFailure is called when an operation transitions to Failed.
	// Duration is the time spent in the Loading phase, or zero if the
	// operation was never Loading.
	OnLoadFailure(key string, duration time.Duration)

	// OnFeedFailure is called when a received status document is rejected.
	// Stage indicates where the rejection occurred: "decode" or "validate".
	OnFeedFailure(stage string)

	// OnChangeReceived is called when a raw status document is received
	// from a source.
	OnChangeReceived()
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnTransition(_ string, _, _ Phase)       {}
func (NoOpMetricsProvider) OnLoadSuccess(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnLoadFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnFeedFailure(_ string)                  {}
func (NoOpMetricsProvider) OnChangeReceived()                       {}
