package latch

// Exported snapshots project each operation into four flat fields so
// downstream consumers (templates, JSON payloads, dashboards) can bind to
// stable names without knowing about CallState. The default key projects to
// the bare reference names; a named key K projects to K-prefixed names:
//
//	StateField   "callState"  or  K+"CallState"
//	LoadingField "loading"    or  K+"Loading"
//	LoadedField  "loaded"     or  K+"Loaded"
//	ErrorField   "error"      or  K+"Error"
//
// The projection is deterministic and collision-free across distinct keys,
// provided callers do not choose a key that spells another key's projection
// (for example "article" alongside "articleLoading").

// StateField returns the exported field name holding the phase of the
// operation under key.
func StateField(key string) string {
	if key == Default {
		return "callState"
	}
	return key + "CallState"
}

// LoadingField returns the exported field name of the loading projection.
func LoadingField(key string) string {
	if key == Default {
		return "loading"
	}
	return key + "Loading"
}

// LoadedField returns the exported field name of the loaded projection.
func LoadedField(key string) string {
	if key == Default {
		return "loaded"
	}
	return key + "Loaded"
}

// ErrorField returns the exported field name of the error projection.
func ErrorField(key string) string {
	if key == Default {
		return "error"
	}
	return key + "Error"
}

// exportInto writes the four projected fields of one operation into out.
// The error field is nil for non-failed states so encoded snapshots render
// it as null rather than an empty string.
func exportInto(out map[string]any, key string, s CallState) {
	out[StateField(key)] = s.Phase().String()
	out[LoadingField(key)] = s.Loading()
	out[LoadedField(key)] = s.Loaded()
	if s.Failed() {
		out[ErrorField(key)] = s.Message()
	} else {
		out[ErrorField(key)] = nil
	}
}
