package latch

import "testing"

func TestOperationTransition(t *testing.T) {
	if OperationTransition.Name() != "latch.operation.transition" {
		t.Errorf("expected name 'latch.operation.transition', got %q", OperationTransition.Name())
	}
}

func TestOperationLoaded(t *testing.T) {
	if OperationLoaded.Name() != "latch.operation.loaded" {
		t.Errorf("expected name 'latch.operation.loaded', got %q", OperationLoaded.Name())
	}
}

func TestOperationFailed(t *testing.T) {
	if OperationFailed.Name() != "latch.operation.failed" {
		t.Errorf("expected name 'latch.operation.failed', got %q", OperationFailed.Name())
	}
}

func TestFeedStarted(t *testing.T) {
	if FeedStarted.Name() != "latch.feed.started" {
		t.Errorf("expected name 'latch.feed.started', got %q", FeedStarted.Name())
	}
}

func TestFeedStopped(t *testing.T) {
	if FeedStopped.Name() != "latch.feed.stopped" {
		t.Errorf("expected name 'latch.feed.stopped', got %q", FeedStopped.Name())
	}
}

func TestFeedChangeReceived(t *testing.T) {
	if FeedChangeReceived.Name() != "latch.feed.change.received" {
		t.Errorf("expected name 'latch.feed.change.received', got %q", FeedChangeReceived.Name())
	}
}

func TestFeedDecodeFailed(t *testing.T) {
	if FeedDecodeFailed.Name() != "latch.feed.decode.failed" {
		t.Errorf("expected name 'latch.feed.decode.failed', got %q", FeedDecodeFailed.Name())
	}
}

func TestFeedValidationFailed(t *testing.T) {
	if FeedValidationFailed.Name() != "latch.feed.validation.failed" {
		t.Errorf("expected name 'latch.feed.validation.failed', got %q", FeedValidationFailed.Name())
	}
}
