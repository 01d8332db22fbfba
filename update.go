package latch

// Default is the operation key of the single unnamed operation slot.
// Callers tracking exactly one operation can ignore keys entirely by
// passing Default everywhere; its exported field names are the bare
// "callState", "loading", "loaded", and "error".
const Default = ""

// Update is an immutable patch that sets the call state of one operation
// key. Updates are produced by SetLoading, SetLoaded, and SetError and
// merged into a register by Apply; constructing one has no effect on any
// store.
type Update struct {
	key   string
	state CallState
}

// SetLoading produces an update that marks the operation as in flight.
// Report it immediately before starting the underlying call, including on
// retries of a previously failed operation.
func SetLoading(key string) Update {
	return Update{key: key, state: Loading()}
}

// SetLoaded produces an update that marks the operation as completed
// successfully.
func SetLoaded(key string) Update {
	return Update{key: key, state: Loaded()}
}

// SetError produces an update that marks the operation as failed with the
// given message. The message is stored verbatim; extract display text from
// the error value before calling.
func SetError(key, message string) Update {
	return Update{key: key, state: Failed(message)}
}

// Key returns the operation key the update targets.
func (u Update) Key() string { return u.key }

// State returns the call state the update applies.
func (u Update) State() CallState { return u.state }
