// Package testing provides test utilities and helpers for latch register testing.
package testing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/latch"
)

// Doc builds a status document from the given call states. The document
// uses the JSON wire form that registers decode by default.
func Doc(t *testing.T, states map[string]latch.CallState) []byte {
	t.Helper()
	data, err := json.Marshal(states)
	if err != nil {
		t.Fatalf("failed to marshal status document: %v", err)
	}
	return data
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForPhase waits until the operation under key reaches the expected
// phase or timeout occurs.
func WaitForPhase(t *testing.T, r *latch.Register, key string, expected latch.Phase, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return r.State(key).Phase() == expected
	})
}

// RequirePhase fails the test immediately if the operation under key is not
// in the expected phase.
func RequirePhase(t *testing.T, r *latch.Register, key string, expected latch.Phase) {
	t.Helper()
	if got := r.State(key).Phase(); got != expected {
		t.Fatalf("expected phase %s for %q, got %s", expected, key, got)
	}
}

// RequireFailed fails the test unless the operation under key failed with
// the given message.
func RequireFailed(t *testing.T, r *latch.Register, key, message string) {
	t.Helper()
	s := r.State(key)
	if !s.Failed() {
		t.Fatalf("expected %q to be failed, got %s", key, s.Phase())
	}
	if got := s.Message(); got != message {
		t.Fatalf("expected failure message %q for %q, got %q", message, key, got)
	}
}

// NewTestRegister creates a sync-mode register fed by a channel source.
// An empty initial document is consumed during Feed, so the register starts
// with no keys written. Send status documents on the returned channel and
// call Process to ingest them.
func NewTestRegister(t *testing.T) (*latch.Register, chan<- []byte) {
	t.Helper()
	ch := make(chan []byte, 10)
	ch <- []byte(`{}`)
	r := latch.New().SyncMode()
	if err := r.Feed(context.Background(), latch.NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("failed to feed register: %v", err)
	}
	return r, ch
}

// Transition records one state change reported to a RecordingMetrics.
type Transition struct {
	Key      string
	From, To latch.Phase
}

// RecordingMetrics is a MetricsProvider that records every callback for
// later assertion. Safe for concurrent use.
type RecordingMetrics struct {
	mu              sync.Mutex
	transitions     []Transition
	loadSuccesses   []string
	loadFailures    []string
	feedFailures    []string
	changesReceived int
}

// OnTransition records the state change.
func (m *RecordingMetrics) OnTransition(key string, from, to latch.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, Transition{Key: key, From: from, To: to})
}

// OnLoadSuccess records the key of the loaded operation.
func (m *RecordingMetrics) OnLoadSuccess(key string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadSuccesses = append(m.loadSuccesses, key)
}

// OnLoadFailure records the key of the failed operation.
func (m *RecordingMetrics) OnLoadFailure(key string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadFailures = append(m.loadFailures, key)
}

// OnFeedFailure records the stage of the rejected document.
func (m *RecordingMetrics) OnFeedFailure(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedFailures = append(m.feedFailures, stage)
}

// OnChangeReceived counts a received status document.
func (m *RecordingMetrics) OnChangeReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changesReceived++
}

// Transitions returns the recorded state changes in order.
func (m *RecordingMetrics) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.transitions...)
}

// LoadSuccesses returns the keys of loaded operations in order.
func (m *RecordingMetrics) LoadSuccesses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadSuccesses...)
}

// LoadFailures returns the keys of failed operations in order.
func (m *RecordingMetrics) LoadFailures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadFailures...)
}

// FeedFailures returns the stages of rejected documents in order.
func (m *RecordingMetrics) FeedFailures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.feedFailures...)
}

// ChangesReceived returns the number of status documents received.
func (m *RecordingMetrics) ChangesReceived() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changesReceived
}
