package latch

import "context"

// Source observes a publisher of status documents and emits raw bytes on a
// channel. Implementations must emit the current document immediately upon
// Watch() being called so feeding registers can complete their initial
// mirror before Feed returns.
type Source interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when the published document changes. The channel is closed
	// when the context is canceled or an unrecoverable error occurs.
	//
	// Implementations should emit the current document immediately to
	// support the initial mirror.
	Watch(ctx context.Context) (<-chan []byte, error)
}
