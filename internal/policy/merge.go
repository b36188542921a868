package policy

// deepMergeArguments merges src onto dst, recursively merging any key whose
// value is a map[string]any on both sides, and overwriting (not
// concatenating) every other value including sequences. Later callers win.
func deepMergeArguments(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				dst[key] = deepMergeArguments(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// applyPatch composes a decision's patch onto the accumulated transforms.
// Scalar slots use last-writer-wins; ToolArguments deep-merges.
func applyPatch(t *Transforms, p *Patch) {
	if p == nil {
		return
	}
	if p.RequestText != nil {
		t.RequestText = p.RequestText
	}
	if p.ToolResultText != nil {
		t.ToolResultText = p.ToolResultText
	}
	if p.ResponseText != nil {
		t.ResponseText = p.ResponseText
	}
	if p.ToolArguments != nil {
		t.ToolArguments = deepMergeArguments(t.ToolArguments, p.ToolArguments)
	}
}
