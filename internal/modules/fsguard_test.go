package modules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radiuskernel/radius/internal/policy"
)

func newFsGuardEvent(tool, pathKey, path string) *policy.Event {
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.ToolCall = &policy.ToolCall{Name: tool, Arguments: map[string]any{pathKey: path}}
	return e
}

func TestFsGuardModule_AllowsWithinAllowedPrefix(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "workspace")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{allowed}})

	d, err := m.Evaluate(context.Background(), newFsGuardEvent("Read", "file_path", filepath.Join(allowed, "a.txt")))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionAllow {
		t.Fatalf("want allow, got %s: %s", d.Action, d.Reason)
	}
}

// Blocked precedes allowed: a path under a blocked prefix must deny
// even when it also lies under an allowed prefix.
func TestFsGuardModule_BlockedTakesPrecedenceOverAllowed(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "workspace")
	blocked := filepath.Join(allowed, "secrets")
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{allowed}, BlockedPaths: []string{blocked}})

	d, err := m.Evaluate(context.Background(), newFsGuardEvent("Read", "file_path", filepath.Join(blocked, "key.pem")))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny || d.Severity != policy.SeverityCritical {
		t.Fatalf("want critical deny, got %s/%s: %s", d.Action, d.Severity, d.Reason)
	}
}

func TestFsGuardModule_RejectsLookalikeSibling(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "workspace")
	evil := filepath.Join(root, "workspace-evil")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(evil, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{allowed}})

	d, err := m.Evaluate(context.Background(), newFsGuardEvent("Read", "file_path", filepath.Join(evil, "a.txt")))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny {
		t.Fatalf("lookalike sibling must not be treated as within, got %s", d.Action)
	}
}

func TestFsGuardModule_BlockedBasenameDeniesRegardlessOfDirectory(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "workspace")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{allowed}, BlockedBasenames: []string{".env"}})

	d, err := m.Evaluate(context.Background(), newFsGuardEvent("Read", "file_path", filepath.Join(allowed, ".ENV")))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny || d.Severity != policy.SeverityCritical {
		t.Fatalf("want critical deny for blocked basename (case-insensitive), got %s/%s", d.Action, d.Severity)
	}
}

func TestFsGuardModule_DefaultDenyOutsideAllowedPrefixes(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "workspace")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{allowed}})

	d, err := m.Evaluate(context.Background(), newFsGuardEvent("Read", "file_path", "/etc/passwd"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny || d.Severity != policy.SeverityHigh {
		t.Fatalf("want high deny outside allowed prefixes, got %s/%s", d.Action, d.Severity)
	}
}

func TestFsGuardModule_IgnoresNonFsTools(t *testing.T) {
	m := NewFsGuardModule(FsGuardConfig{})
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "ls"}}
	d, err := m.Evaluate(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionAllow {
		t.Fatalf("non-fs tool must pass through, got %s", d.Action)
	}
}

func TestFsGuardModule_IgnoresCallsWithNoPathArgument(t *testing.T) {
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{"/workspace"}})
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.ToolCall = &policy.ToolCall{Name: "Glob", Arguments: map[string]any{"pattern": "*.go"}}
	d, err := m.Evaluate(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionAllow {
		t.Fatalf("missing path arg must pass through, got %s", d.Action)
	}
}

func TestFsGuardModule_Mode(t *testing.T) {
	if NewFsGuardModule(FsGuardConfig{}).Mode() != policy.ModeEnforce {
		t.Fatal("expected default mode enforce")
	}
	if NewFsGuardModule(FsGuardConfig{Mode: policy.ModeObserve}).Mode() != policy.ModeObserve {
		t.Fatal("expected configured mode to stick")
	}
}

func TestWithin_RejectsParentTraversal(t *testing.T) {
	if within("/workspace", "/") {
		t.Fatal("/ must not be within /workspace")
	}
	if !within("/workspace", "/workspace") {
		t.Fatal("a base must be within itself")
	}
	if !within("/workspace", "/workspace/sub/file.txt") {
		t.Fatal("nested descendant must be within")
	}
	if within("/workspace", "/workspace-evil/file.txt") {
		t.Fatal("lookalike sibling must not be within")
	}
}

func TestCanonicalize_TildeExpansion(t *testing.T) {
	home := t.TempDir()
	got := canonicalize("~/notes.txt", home)
	want := filepath.Join(home, "notes.txt")
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCanonicalize_NonExistentPathStillCanonicalizes(t *testing.T) {
	root := t.TempDir()
	got := canonicalize(filepath.Join(root, "does/not/exist.txt"), "")
	want := filepath.Join(root, "does/not/exist.txt")
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestFsGuardModule_ShellCommandTokenInBlockedPrefixDenies(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}
	m := NewFsGuardModule(FsGuardConfig{
		BlockedPaths: []string{"~/.ssh"},
		AllowedPaths: []string{"/workspace"},
		Home:         home,
	})
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "cat ~/.ssh/id_rsa"}}

	d, err := m.Evaluate(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny || d.Severity != policy.SeverityCritical {
		t.Fatalf("want critical deny, got %s/%s: %s", d.Action, d.Severity, d.Reason)
	}
	if !strings.Contains(d.Reason, "is in blocked prefix") {
		t.Fatalf("reason must name the blocked prefix, got %q", d.Reason)
	}
}

func TestFsGuardModule_ShellCommandAllowlistNotEnforcedOnTokens(t *testing.T) {
	m := NewFsGuardModule(FsGuardConfig{AllowedPaths: []string{"/workspace"}})
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "cat /etc/hostname"}}

	d, err := m.Evaluate(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionAllow {
		t.Fatalf("command tokens outside allowed prefixes must not deny, got %s: %s", d.Action, d.Reason)
	}
}
