package latch

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator for status document entries.
var validate = validator.New()

// statusEntry is the wire form of one operation's call state in a status
// document: the phase name plus, for failed operations, the error message.
// A document is a flat map of operation key to entry.
type statusEntry struct {
	State string `json:"state" yaml:"state" validate:"required,oneof=init loading loaded failed"`
	Error string `json:"error,omitempty" yaml:"error,omitempty" validate:"required_if=State failed,excluded_unless=State failed"`
}

// callState converts a validated wire entry to its CallState value.
func (e statusEntry) callState() CallState {
	switch e.State {
	case "loading":
		return Loading()
	case "loaded":
		return Loaded()
	case "failed":
		return Failed(e.Error)
	default:
		return Init()
	}
}

// decodeStatus unmarshals a raw status document into wire entries keyed by
// operation.
func decodeStatus(codec Codec, raw []byte) (map[string]statusEntry, error) {
	var doc map[string]statusEntry
	if err := codec.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return doc, nil
}

// statusStates validates every entry of a decoded document and converts it
// to call states. A single invalid entry rejects the whole document.
func statusStates(doc map[string]statusEntry) (map[string]CallState, error) {
	states := make(map[string]CallState, len(doc))
	for key, entry := range doc {
		if err := validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		states[key] = entry.callState()
	}
	return states, nil
}
