package warehouse

import (
	"fmt"
	"strings"
)

// NormalizeKey converts a lookup key value to a canonical string form,
// suitable for in-memory resolver maps (e.g. "hamilton" or "2024").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps resolver maps consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
