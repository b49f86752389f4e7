package router

import "strings"

// isPathLike heuristically identifies filesystem-path-shaped strings, per
// spec.md §4.6: a backslash, a drive letter prefix, or a UNC prefix, but
// never a URL, which takes precedence even when it happens to contain a
// backslash.
func isPathLike(s string) bool {
	if strings.Contains(s, "://") {
		return false
	}
	if strings.Contains(s, `\`) {
		return true
	}
	if hasDriveLetterPrefix(s) {
		return true
	}
	if strings.HasPrefix(s, `\\`) {
		return true
	}
	return false
}

// hasDriveLetterPrefix matches "C:\" or "C:/" style Windows roots.
func hasDriveLetterPrefix(s string) bool {
	if len(s) < 3 {
		return false
	}
	c := s[0]
	isLetter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
	return isLetter && s[1] == ':' && (s[2] == '\\' || s[2] == '/')
}

// normalizeValue recursively folds backslashes to forward slashes in every
// path-like string leaf of v, leaving maps/slices/other scalars untouched.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		if isPathLike(t) {
			return strings.ReplaceAll(t, `\`, "/")
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

// NormalizeArguments applies normalizeValue to every value in args, per
// spec.md §4.6's path-normalization hook.
func NormalizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out, _ := normalizeValue(args).(map[string]any)
	return out
}
