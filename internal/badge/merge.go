package badge

// MergeExtensions merges patch keys into the existing extension bag one key
// at a time. Keys absent from the patch keep their prior values; the bag is
// never replaced wholesale. Both engines' update paths share this routine so
// merge semantics cannot diverge.
func MergeExtensions(existing, patch map[string]any) map[string]any {
	if len(existing) == 0 && len(patch) == 0 {
		return nil
	}
	merged := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// CloneExtensions returns a shallow copy so stored bags cannot be mutated
// through the caller's map.
func CloneExtensions(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
