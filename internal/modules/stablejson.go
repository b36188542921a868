package modules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// stableJSON renders v as JSON with object keys sorted ascending, so the
// same logical arguments always fingerprint identically regardless of map
// iteration order. Depth is bounded so pathological nesting cannot recurse
// unbounded: Go's decoded-JSON maps cannot hold true reference cycles, so a
// depth guard is all the cycle protection needed.
func stableJSON(v any) string {
	var b strings.Builder
	writeStable(&b, v, 0)
	return b.String()
}

const maxStableDepth = 64

func writeStable(b *strings.Builder, v any, depth int) {
	if depth > maxStableDepth {
		b.WriteString(`"<max-depth>"`)
		return
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeStable(b, t[k], depth+1)
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, e, depth+1)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(t))
	case nil:
		b.WriteString("null")
	default:
		b.WriteString(fmt.Sprintf("%v", t))
	}
}
