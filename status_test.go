package latch

import (
	"strings"
	"testing"
)

func TestDecodeStatus_JSON(t *testing.T) {
	raw := []byte(`{
		"getArticle": {"state": "loaded"},
		"updateUser": {"state": "failed", "error": "Conflict"}
	}`)

	doc, err := decodeStatus(JSONCodec{}, raw)
	if err != nil {
		t.Fatalf("decodeStatus() error = %v", err)
	}

	if len(doc) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(doc))
	}
	if doc["getArticle"].State != "loaded" {
		t.Errorf("expected state 'loaded', got %q", doc["getArticle"].State)
	}
	if doc["updateUser"].Error != "Conflict" {
		t.Errorf("expected error 'Conflict', got %q", doc["updateUser"].Error)
	}
}

func TestDecodeStatus_YAML(t *testing.T) {
	raw := []byte("getArticle:\n  state: loading\n")

	doc, err := decodeStatus(YAMLCodec{}, raw)
	if err != nil {
		t.Fatalf("decodeStatus() error = %v", err)
	}
	if doc["getArticle"].State != "loading" {
		t.Errorf("expected state 'loading', got %q", doc["getArticle"].State)
	}
}

func TestDecodeStatus_InvalidDocument(t *testing.T) {
	_, err := decodeStatus(JSONCodec{}, []byte(`{not json}`))
	if err == nil {
		t.Fatal("expected error for invalid document")
	}
	if !strings.Contains(err.Error(), "unmarshal failed") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestStatusStates_MapsAllPhases(t *testing.T) {
	doc := map[string]statusEntry{
		"a": {State: "init"},
		"b": {State: "loading"},
		"c": {State: "loaded"},
		"d": {State: "failed", Error: "boom"},
	}

	states, err := statusStates(doc)
	if err != nil {
		t.Fatalf("statusStates() error = %v", err)
	}

	if states["a"] != Init() {
		t.Errorf("expected init, got %v", states["a"])
	}
	if states["b"] != Loading() {
		t.Errorf("expected loading, got %v", states["b"])
	}
	if states["c"] != Loaded() {
		t.Errorf("expected loaded, got %v", states["c"])
	}
	if states["d"] != Failed("boom") {
		t.Errorf("expected failed, got %v", states["d"])
	}
}

func TestStatusStates_RejectsUnknownState(t *testing.T) {
	doc := map[string]statusEntry{
		"a": {State: "pending"},
	}

	if _, err := statusStates(doc); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestStatusStates_RejectsMissingState(t *testing.T) {
	doc := map[string]statusEntry{
		"a": {},
	}

	if _, err := statusStates(doc); err == nil {
		t.Fatal("expected error for missing state")
	}
}

func TestStatusStates_RejectsFailedWithoutError(t *testing.T) {
	doc := map[string]statusEntry{
		"a": {State: "failed"},
	}

	if _, err := statusStates(doc); err == nil {
		t.Fatal("expected error for failed entry without message")
	}
}

func TestStatusStates_RejectsErrorOnNonFailed(t *testing.T) {
	doc := map[string]statusEntry{
		"a": {State: "loaded", Error: "leftover"},
	}

	if _, err := statusStates(doc); err == nil {
		t.Fatal("expected error for message on non-failed entry")
	}
}

func TestStatusStates_SingleInvalidEntryRejectsDocument(t *testing.T) {
	doc := map[string]statusEntry{
		"good": {State: "loaded"},
		"bad":  {State: "nonsense"},
	}

	_, err := statusStates(doc)
	if err == nil {
		t.Fatal("expected error when any entry is invalid")
	}
	if !strings.Contains(err.Error(), `"bad"`) {
		t.Errorf("expected offending key in error, got %v", err)
	}
}

func TestStatusStates_EmptyDocument(t *testing.T) {
	states, err := statusStates(map[string]statusEntry{})
	if err != nil {
		t.Fatalf("statusStates() error = %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected no states, got %d", len(states))
	}
}
