package latch

import "github.com/zoobzio/capitan"

// Operation lifecycle signals.
var (
	// OperationTransition is emitted once per effective call-state change.
	OperationTransition = capitan.NewSignal(
		"latch.operation.transition",
		"Call state transition",
	)

	// OperationLoaded is emitted when an operation transitions to Loaded.
	OperationLoaded = capitan.NewSignal(
		"latch.operation.loaded",
		"Operation completed successfully",
	)

	// OperationFailed is emitted when an operation transitions to Failed.
	OperationFailed = capitan.NewSignal(
		"latch.operation.failed",
		"Operation failed",
	)
)

// Feed processing signals.
var (
	// FeedStarted is emitted when a Register begins feeding from sources.
	FeedStarted = capitan.NewSignal(
		"latch.feed.started",
		"Feeding from sources started",
	)

	// FeedStopped is emitted when a feeding Register stops mirroring.
	FeedStopped = capitan.NewSignal(
		"latch.feed.stopped",
		"Feeding from sources stopped",
	)

	// FeedChangeReceived is emitted when a raw status document is received
	// from a source.
	FeedChangeReceived = capitan.NewSignal(
		"latch.feed.change.received",
		"Raw status document received",
	)

	// FeedDecodeFailed is emitted when a status document cannot be decoded.
	FeedDecodeFailed = capitan.NewSignal(
		"latch.feed.decode.failed",
		"Status document decode failed",
	)

	// FeedValidationFailed is emitted when a decoded status document fails
	// validation.
	FeedValidationFailed = capitan.NewSignal(
		"latch.feed.validation.failed",
		"Status document validation failed",
	)
)
