package schema

// Fragment helpers treat schema fragments as immutable value trees: merges
// and clones always produce new maps, never mutate their inputs.

// Clone deep-copies a schema value tree.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Clone(val)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

// CloneMap deep-copies a fragment, returning nil for nil input.
func CloneMap(fragment map[string]any) map[string]any {
	if fragment == nil {
		return nil
	}
	return Clone(fragment).(map[string]any)
}

// DeepMerge combines two fragments into a new tree. Keys from src win;
// nested maps are merged recursively, everything else (arrays included) is
// replaced wholesale.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := CloneMap(dst)
	if out == nil {
		out = map[string]any{}
	}
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]any); ok {
			if dstMap, ok := out[key].(map[string]any); ok {
				out[key] = DeepMerge(dstMap, srcMap)
				continue
			}
		}
		out[key] = Clone(srcVal)
	}
	return out
}

// ReadString returns the string under key, or "" when absent or mistyped.
func ReadString(fragment map[string]any, key string) string {
	if fragment == nil {
		return ""
	}
	value, ok := fragment[key]
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}

// ReadBool returns the bool under key, or false when absent or mistyped.
func ReadBool(fragment map[string]any, key string) bool {
	if fragment == nil {
		return false
	}
	value, ok := fragment[key]
	if !ok {
		return false
	}
	b, _ := value.(bool)
	return b
}

// ReadMap returns the nested fragment under key, or nil.
func ReadMap(fragment map[string]any, key string) map[string]any {
	if fragment == nil {
		return nil
	}
	value, ok := fragment[key]
	if !ok {
		return nil
	}
	m, _ := value.(map[string]any)
	return m
}

// ReadStringSlice reads a list of strings under key, accepting both []string
// and []any payloads.
func ReadStringSlice(fragment map[string]any, key string) []string {
	if fragment == nil {
		return nil
	}
	switch v := fragment[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// StripKey removes key from every mapping in the tree, in place. Used to
// keep internal bookkeeping keys out of exported schemas.
func StripKey(tree any, key string) {
	switch v := tree.(type) {
	case map[string]any:
		delete(v, key)
		for _, val := range v {
			StripKey(val, key)
		}
	case []any:
		for _, item := range v {
			StripKey(item, key)
		}
	}
}

// Dedupe removes duplicates from a string list while preserving order.
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Contains reports whether values includes target.
func Contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
