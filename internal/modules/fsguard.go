package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/radiuskernel/radius/internal/policy"
)

var fsGuardTools = map[string]bool{
	"Read": true, "Write": true, "Edit": true, "Glob": true, "Grep": true, "NotebookEdit": true,
}

var fsGuardPathKeys = []string{"file_path", "path", "notebook_path"}

// FsGuardConfig configures FsGuardModule.
type FsGuardConfig struct {
	BlockedPaths     []string    `yaml:"blockedPaths"`
	BlockedBasenames []string    `yaml:"blockedBasenames"`
	AllowedPaths     []string    `yaml:"allowedPaths"`
	ShellTools       []string    `yaml:"shellTools"`
	Home             string      `yaml:"home"`
	Mode             policy.Mode `yaml:"mode"`
}

// FsGuardModule restricts file-tool access to an allowlist of
// directories, with the blocklist checked first so a blocked path denies
// even when it also sits under an allowed prefix.
type FsGuardModule struct {
	cfg              FsGuardConfig
	blockedPaths     []string
	allowedPaths     []string
	blockedBasenames map[string]bool
	shellTools       map[string]bool
}

func NewFsGuardModule(cfg FsGuardConfig) *FsGuardModule {
	m := &FsGuardModule{cfg: cfg, blockedBasenames: map[string]bool{}, shellTools: map[string]bool{}}
	for _, p := range cfg.BlockedPaths {
		m.blockedPaths = append(m.blockedPaths, canonicalize(p, cfg.Home))
	}
	for _, p := range cfg.AllowedPaths {
		m.allowedPaths = append(m.allowedPaths, canonicalize(p, cfg.Home))
	}
	for _, b := range cfg.BlockedBasenames {
		m.blockedBasenames[strings.ToLower(b)] = true
	}
	shellTools := cfg.ShellTools
	if len(shellTools) == 0 {
		shellTools = []string{"Bash"}
	}
	for _, t := range shellTools {
		m.shellTools[t] = true
	}
	return m
}

func (m *FsGuardModule) Name() string { return "fs_guard" }

func (m *FsGuardModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *FsGuardModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func extractPath(args map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func (m *FsGuardModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	// Shell commands get the blocklist checks only: path-like tokens in the
	// command string are denied when they canonicalize into a blocked
	// prefix or basename, but the allowlist is not enforced on them (a
	// command mentioning a path is not the same as a file tool opening it).
	if m.shellTools[event.ToolCall.Name] {
		if cmd, ok := event.ToolCall.Arguments["command"].(string); ok {
			for _, token := range pathLikeTokenRe.FindAllString(cmd, -1) {
				if d, denied := m.checkBlocked(canonicalize(token, m.cfg.Home)); denied {
					return d, nil
				}
			}
		}
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	if !fsGuardTools[event.ToolCall.Name] {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}
	raw, ok := extractPath(event.ToolCall.Arguments, fsGuardPathKeys)
	if !ok {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	target := canonicalize(raw, m.cfg.Home)

	if d, denied := m.checkBlocked(target); denied {
		return d, nil
	}

	for _, a := range m.allowedPaths {
		if within(a, target) {
			return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
		}
	}

	return policy.Decision{
		Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
		Reason: fmt.Sprintf("%q is outside all allowed prefixes", target),
	}, nil
}

func (m *FsGuardModule) checkBlocked(target string) (policy.Decision, bool) {
	for _, b := range m.blockedPaths {
		if within(b, target) {
			return policy.Decision{
				Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
				Reason: fmt.Sprintf("%q is in blocked prefix %q", target, b),
			}, true
		}
	}
	base := strings.ToLower(lastSegment(target))
	if m.blockedBasenames[base] {
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
			Reason: fmt.Sprintf("basename %q is blocked", base),
		}, true
	}
	return policy.Decision{}, false
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}
