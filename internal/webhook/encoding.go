package webhook

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// NormalizeUTF8 walks a nested structure of maps, slices and scalars and
// re-encodes every string leaf that is not valid UTF-8 from ISO-8859-1.
// Structure and non-string leaves pass through untouched. The processor posts
// notifications in Latin-1 unless told otherwise, and stored payloads must be
// valid UTF-8.
func NormalizeUTF8(value any) any {
	switch v := value.(type) {
	case string:
		return normalizeString(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, val := range v {
			out[normalizeString(key)] = normalizeString(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[normalizeString(key)] = NormalizeUTF8(val)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, val := range v {
			out[i] = normalizeString(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = NormalizeUTF8(val)
		}
		return out
	default:
		return value
	}
}

// NormalizeValues normalizes a flat string map, returning a new map.
func NormalizeValues(values map[string]string) map[string]string {
	normalized, _ := NormalizeUTF8(values).(map[string]string)
	return normalized
}

func normalizeString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}
