// Package modules implements the thirteen policy modules plus the
// always-allow audit wrapper.
package modules

import (
	"os"
	"path/filepath"
	"strings"
)

// canonicalize expands a leading "~" to home, makes the path absolute, and
// resolves symlinks with ancestor-fallback: walk up to the deepest existing
// ancestor, take its real path, then reattach the missing suffix. This
// makes non-existent target paths canonicalize too, which is load-bearing
// for fs_guard/tripwire_guard writes to new files.
func canonicalize(raw, home string) string {
	p := raw
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	p = filepath.Clean(p)

	var suffix []string
	cur := p
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if len(suffix) == 0 {
				return filepath.Clean(real)
			}
			// reattach suffix in original (not symlink-resolved) order
			rebuilt := real
			for i := len(suffix) - 1; i >= 0; i-- {
				rebuilt = filepath.Join(rebuilt, suffix[i])
			}
			return filepath.Clean(rebuilt)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// reached filesystem root without finding an existing ancestor
			return filepath.Clean(p)
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether target lies at or beneath base once both are
// canonical. A lookalike sibling like "/workspace-evil" against base
// "/workspace" must not match.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
