package latch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestRegister_Feed_BasicJSON(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)

	reg := New().SyncMode()

	ch <- []byte(`{
		"getArticle": {"state": "loading"},
		"updateUser": {"state": "failed", "error": "Conflict"}
	}`)

	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if !reg.Loading("getArticle") {
		t.Errorf("expected getArticle loading, got %v", reg.State("getArticle"))
	}
	if !reg.Failed("updateUser") {
		t.Errorf("expected updateUser failed, got %v", reg.State("updateUser"))
	}
	if reg.Message("updateUser") != "Conflict" {
		t.Errorf("expected message 'Conflict', got %q", reg.Message("updateUser"))
	}
}

func TestRegister_Feed_BasicYAML(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)

	reg := New().SyncMode().Codec(YAMLCodec{})

	ch <- []byte("getArticle:\n  state: loaded\n")

	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if !reg.Loaded("getArticle") {
		t.Errorf("expected getArticle loaded, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_InvalidDocumentRejected(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)

	reg := New().SyncMode()

	ch <- []byte("not valid json")

	err := reg.Feed(ctx, NewSyncChannelSource(ch))
	if err == nil {
		t.Fatal("expected decode error")
	}

	// Rejection leaves the register untouched
	if reg.Len() != 0 {
		t.Errorf("expected no keys after rejection, got %d", reg.Len())
	}

	f, ok := reg.LastFailure()
	if !ok {
		t.Fatal("expected rejection recorded as failure")
	}
	if f.Key != "feed" {
		t.Errorf("expected failure under 'feed' key, got %q", f.Key)
	}
	if !strings.Contains(f.Message, "unmarshal failed") {
		t.Errorf("expected unmarshal message, got %q", f.Message)
	}
}

func TestRegister_Feed_ValidationRejectionKeepsPriorStates(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)

	reg := New().SyncMode()

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Document with an unknown state is rejected whole
	ch <- []byte(`{"getArticle": {"state": "pending"}}`)
	reg.Process(ctx)

	if !reg.Loaded("getArticle") {
		t.Errorf("expected prior state retained, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_PartialDocumentKeepsUnnamedKeys(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)

	reg := New().SyncMode()

	ch <- []byte(`{
		"getArticle": {"state": "loading"},
		"updateUser": {"state": "loaded"}
	}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Later document names only one key
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	reg.Process(ctx)

	if !reg.Loaded("getArticle") {
		t.Errorf("expected getArticle updated, got %v", reg.State("getArticle"))
	}
	if !reg.Loaded("updateUser") {
		t.Errorf("expected updateUser untouched, got %v", reg.State("updateUser"))
	}
}

func TestRegister_Feed_DocumentCanResetToInit(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)

	reg := New().SyncMode()

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{"getArticle": {"state": "init"}}`)
	reg.Process(ctx)

	if reg.State("getArticle") != Init() {
		t.Errorf("expected init after reset, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_CoexistsWithLocalApplies(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)

	reg := New().SyncMode()

	ch <- []byte(`{"workerSync": {"state": "loading"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Local operations share the register with mirrored ones
	reg.Apply(ctx, SetError("getArticle", "Not Found"))

	if !reg.Loading("workerSync") {
		t.Errorf("expected mirrored key loading, got %v", reg.State("workerSync"))
	}
	if !reg.Failed("getArticle") {
		t.Errorf("expected local key failed, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_ProcessDrainsOnePerSource(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 3)

	reg := New().SyncMode()

	ch <- []byte(`{"getArticle": {"state": "loading"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	ch <- []byte(`{"getArticle": {"state": "failed", "error": "boom"}}`)

	if !reg.Process(ctx) {
		t.Fatal("expected Process to report progress")
	}
	if !reg.Loaded("getArticle") {
		t.Errorf("expected one document processed, got %v", reg.State("getArticle"))
	}

	if !reg.Process(ctx) {
		t.Fatal("expected Process to report progress")
	}
	if !reg.Failed("getArticle") {
		t.Errorf("expected second document processed, got %v", reg.State("getArticle"))
	}

	if reg.Process(ctx) {
		t.Error("expected Process to report no pending documents")
	}
}

func TestRegister_Feed_ProcessReturnsFalseInAsyncMode(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)

	reg := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Feed(ctx, NewChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if reg.Process(ctx) {
		t.Error("expected Process to return false when not in sync mode")
	}
}

func TestRegister_Feed_RequiresSource(t *testing.T) {
	reg := New().SyncMode()

	if err := reg.Feed(context.Background()); err == nil {
		t.Fatal("expected error for missing sources")
	}
}

func TestRegister_Feed_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)

	reg := New().SyncMode()

	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err == nil {
		t.Fatal("expected error on second Feed call")
	}
}

// errorSource is a Source that returns an error on Watch.
type errorSource struct {
	err error
}

func (s *errorSource) Watch(_ context.Context) (<-chan []byte, error) {
	return nil, s.err
}

func TestRegister_Feed_SourceError(t *testing.T) {
	reg := New().SyncMode()

	err := reg.Feed(context.Background(), &errorSource{err: errors.New("source failed")})
	if err == nil {
		t.Fatal("expected source error")
	}
}

func TestRegister_Feed_SourceClosedBeforeInitial(t *testing.T) {
	ch := make(chan []byte)
	close(ch)

	reg := New().SyncMode()

	err := reg.Feed(context.Background(), NewSyncChannelSource(ch))
	if err == nil {
		t.Fatal("expected error for source closed before initial document")
	}
}

func TestRegister_Feed_StartupTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte) // unbuffered, will block forever

	reg := New().SyncMode().StartupTimeout(100 * time.Millisecond).Clock(clock)

	errCh := make(chan error, 1)
	go func() {
		errCh <- reg.Feed(context.Background(), NewSyncChannelSource(ch))
	}()

	// Wait for timeout context to register with the fake clock
	time.Sleep(10 * time.Millisecond)

	// Advance clock past timeout
	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected timeout error")
		}
		if !strings.Contains(err.Error(), "startup timeout") {
			t.Errorf("expected startup timeout error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Feed did not return after timeout")
	}
}

func TestRegister_Feed_StartupTimeout_SucceedsBeforeTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 1)

	reg := New().SyncMode().StartupTimeout(100 * time.Millisecond).Clock(clock)

	// Send document before feeding
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)

	if err := reg.Feed(context.Background(), NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !reg.Loaded("getArticle") {
		t.Errorf("expected loaded, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_NoStartupTimeout_WaitsOnContext(t *testing.T) {
	ch := make(chan []byte) // unbuffered, will block

	reg := New().SyncMode() // No startup timeout - should wait indefinitely

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := reg.Feed(ctx, NewSyncChannelSource(ch))
	// Should time out via context, not startup timeout
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestRegister_Feed_MultipleSources(t *testing.T) {
	ctx := context.Background()
	apiCh := make(chan []byte, 1)
	workerCh := make(chan []byte, 1)

	reg := New().SyncMode()

	apiCh <- []byte(`{"getArticle": {"state": "loaded"}}`)
	workerCh <- []byte(`{"workerSync": {"state": "loading"}}`)

	if err := reg.Feed(ctx, NewSyncChannelSource(apiCh), NewSyncChannelSource(workerCh)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	if !reg.Loaded("getArticle") {
		t.Errorf("expected getArticle from first source, got %v", reg.State("getArticle"))
	}
	if !reg.Loading("workerSync") {
		t.Errorf("expected workerSync from second source, got %v", reg.State("workerSync"))
	}
}

func TestRegister_Feed_InitialRejectionStillAppliesOtherSources(t *testing.T) {
	ctx := context.Background()
	badCh := make(chan []byte, 1)
	goodCh := make(chan []byte, 1)

	reg := New().SyncMode()

	badCh <- []byte("not valid json")
	goodCh <- []byte(`{"workerSync": {"state": "loaded"}}`)

	err := reg.Feed(ctx, NewSyncChannelSource(badCh), NewSyncChannelSource(goodCh))
	if err == nil {
		t.Fatal("expected error from rejected initial document")
	}

	// The valid source's document is still applied
	if !reg.Loaded("workerSync") {
		t.Errorf("expected workerSync loaded, got %v", reg.State("workerSync"))
	}
}

func TestRegister_Feed_Debounce_CoalescesRapidDocuments(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 10)
	ch <- []byte(`{"getArticle": {"state": "loading"}}`) // Initial document

	reg := New().Debounce(100 * time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Feed(ctx, NewChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Initial document applied immediately (no debounce on first)
	if !reg.Loading("getArticle") {
		t.Fatalf("expected loading after initial, got %v", reg.State("getArticle"))
	}

	// Send rapid updates
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	ch <- []byte(`{"getArticle": {"state": "loading"}}`)
	ch <- []byte(`{"getArticle": {"state": "failed", "error": "boom"}}`)

	// Allow goroutines to receive changes
	time.Sleep(10 * time.Millisecond)

	// No updates applied yet - debounce timer hasn't fired
	if !reg.Loading("getArticle") {
		t.Errorf("expected still loading (debouncing), got %v", reg.State("getArticle"))
	}

	// Advance clock past debounce duration
	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	// Allow goroutine to process timer
	time.Sleep(10 * time.Millisecond)

	// Only the latest document should have been applied
	if !reg.Failed("getArticle") {
		t.Errorf("expected failed after debounce, got %v", reg.State("getArticle"))
	}
	if reg.Message("getArticle") != "boom" {
		t.Errorf("expected message 'boom', got %q", reg.Message("getArticle"))
	}
}

func TestRegister_Feed_Debounce_ProcessesPendingOnClose(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 10)
	ch <- []byte(`{"getArticle": {"state": "loading"}}`) // Initial document

	reg := New().Debounce(100 * time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Feed(ctx, NewChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Send update
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	time.Sleep(10 * time.Millisecond)

	// Close channel before debounce fires
	close(ch)
	time.Sleep(10 * time.Millisecond)

	// Pending document should be applied immediately on close
	if !reg.Loaded("getArticle") {
		t.Errorf("expected loaded after close, got %v", reg.State("getArticle"))
	}
}

func TestRegister_Feed_OnStop_CalledOnContextCancel(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)

	stopCh := make(chan map[string]CallState, 1)

	reg := New().OnStop(func(snap map[string]CallState) {
		stopCh <- snap
	})

	ctx, cancel := context.WithCancel(context.Background())

	if err := reg.Feed(ctx, NewChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Cancel context to trigger stop
	cancel()

	select {
	case snap := <-stopCh:
		if snap["getArticle"] != Loaded() {
			t.Errorf("expected loaded in final snapshot, got %v", snap["getArticle"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected OnStop to be called")
	}
}

func TestRegister_Feed_OnStop_CalledOnSourceClose(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)

	stopCh := make(chan struct{}, 1)

	reg := New().OnStop(func(_ map[string]CallState) {
		stopCh <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Feed(ctx, NewChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	close(ch)

	select {
	case <-stopCh:
		// Success
	case <-time.After(100 * time.Millisecond):
		t.Error("expected OnStop to be called when source closes")
	}
}

func TestRegister_Feed_Metrics_DecodeFailure(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)
	metrics := &testMetricsProvider{}

	reg := New().SyncMode().Metrics(metrics)

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{invalid json}`)
	reg.Process(ctx)

	if len(metrics.feedFailures) != 1 {
		t.Fatalf("expected 1 feed failure, got %d", len(metrics.feedFailures))
	}
	if metrics.feedFailures[0] != "decode" {
		t.Errorf("expected decode stage, got %s", metrics.feedFailures[0])
	}
}

func TestRegister_Feed_Metrics_ValidationFailure(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)
	metrics := &testMetricsProvider{}

	reg := New().SyncMode().Metrics(metrics)

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{"getArticle": {"state": "pending"}}`)
	reg.Process(ctx)

	if len(metrics.feedFailures) != 1 {
		t.Fatalf("expected 1 feed failure, got %d", len(metrics.feedFailures))
	}
	if metrics.feedFailures[0] != "validate" {
		t.Errorf("expected validate stage, got %s", metrics.feedFailures[0])
	}
}

func TestRegister_Feed_Metrics_ChangeReceived(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 3)
	metrics := &testMetricsProvider{}

	reg := New().SyncMode().Metrics(metrics)

	ch <- []byte(`{"getArticle": {"state": "loading"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	reg.Process(ctx)

	ch <- []byte(`{invalid}`) // rejected documents still count as received
	reg.Process(ctx)

	if metrics.changesReceived != 3 {
		t.Errorf("expected 3 changes received, got %d", metrics.changesReceived)
	}
}

func TestRegister_Feed_RejectionsRecordedInHistory(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 3)

	reg := New().SyncMode().FailureHistorySize(3)

	ch <- []byte(`{"getArticle": {"state": "loaded"}}`)
	if err := reg.Feed(ctx, NewSyncChannelSource(ch)); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	ch <- []byte(`{invalid}`)
	reg.Process(ctx)
	ch <- []byte(`{"getArticle": {"state": "pending"}}`)
	reg.Process(ctx)

	failures := reg.Failures()
	if len(failures) != 2 {
		t.Fatalf("expected 2 recorded rejections, got %d", len(failures))
	}
	for _, f := range failures {
		if f.Key != "feed" {
			t.Errorf("expected rejection under 'feed' key, got %q", f.Key)
		}
	}
}
