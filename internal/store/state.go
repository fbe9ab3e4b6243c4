package store

// MergeState applies a patch onto a character's current_state. A nil patch
// value removes the key. The input map is not mutated.
func MergeState(current, patch map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(patch))
	for key, value := range current {
		out[key] = value
	}
	for key, value := range patch {
		if value == nil {
			delete(out, key)
			continue
		}
		out[key] = value
	}
	return out
}

// AppendNote pushes a free-text note onto a list-valued state key, creating
// the list when absent. Used for drift descriptors carried by the critic.
func AppendNote(state map[string]any, key, note string) map[string]any {
	out := MergeState(state, nil)
	switch current := out[key].(type) {
	case []string:
		values := make([]any, 0, len(current)+1)
		for _, item := range current {
			values = append(values, item)
		}
		out[key] = append(values, note)
	case []any:
		out[key] = append(current, note)
	case nil:
		out[key] = []any{note}
	default:
		out[key] = []any{current, note}
	}
	return out
}
