// Package strings cleans string lists read from configuration.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every value and drops blanks and repeats, keeping
// first-seen order. Env lists like "a, b,,a" come out as [a b].
func DedupeAndTrim(values []string) []string {
	return clean(values, strings.TrimSpace)
}

// RoutePrefixes normalizes route list entries to "/segment" form: leading
// slash added, trailing slashes dropped. A bare "/" is dropped because it
// would match every path.
func RoutePrefixes(values []string) []string {
	return clean(values, func(v string) string {
		v = strings.Trim(strings.TrimSpace(v), "/")
		if v == "" {
			return ""
		}
		return "/" + v
	})
}

func clean(values []string, normalize func(string) string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
