package latch

import "github.com/zoobzio/capitan"

// Field keys for latch events.
var (
	// KeyOperation is the operation key a state change applies to.
	KeyOperation = capitan.NewStringKey("operation")

	// KeyOldState is the previous call state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new call state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the message when an operation fails or a status document
	// is rejected.
	KeyError = capitan.NewStringKey("error")

	// KeyElapsed is the time an operation spent in the Loading phase.
	KeyElapsed = capitan.NewDurationKey("elapsed")

	// KeyDebounce is the configured feed debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeySource is the index of the source a feed event refers to.
	KeySource = capitan.NewIntKey("source")

	// KeySources is the number of sources a feeding Register mirrors.
	KeySources = capitan.NewIntKey("sources")
)
