package modules

import "math"

// structuralMatch is the "when" predicate match for tool_policy rules:
// every key in want must appear in got and match recursively; sequences
// match pairwise with equal length; scalars compare by value (NaN never
// equals itself, per IEEE754).
func structuralMatch(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present || !structuralMatch(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !structuralMatch(w[i], g[i]) {
				return false
			}
		}
		return true
	case float64:
		g, ok := got.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(w) || math.IsNaN(g) {
			return false
		}
		return w == g
	default:
		return want == got
	}
}
