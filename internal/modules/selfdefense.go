package modules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/radiuskernel/radius/internal/policy"
)

var mutatingTools = map[string]bool{
	"Write": true, "Edit": true, "NotebookEdit": true, "MultiEdit": true,
	"Delete": true, "Move": true, "Copy": true, "Rename": true, "Chmod": true, "Chown": true,
}

// ImmutableRule names a file (exact) or directory (prefix) that must not
// change after baseline capture.
type ImmutableRule struct {
	Path   string `yaml:"path"`
	Prefix bool   `yaml:"prefix"`
}

// SelfDefenseConfig configures SelfDefenseModule.
type SelfDefenseConfig struct {
	Targets         []ImmutableRule `yaml:"targets"`
	OnWriteAttempt  string          `yaml:"onWriteAttempt"` // "deny" (default) | "challenge"
	OnHashMismatch  string          `yaml:"onHashMismatch"` // "deny" (default) | "kill_switch"
	KillSwitchPath  string          `yaml:"killSwitchPath"`
	UnlockTokenPath string          `yaml:"unlockTokenPath"`
	UnlockTokenTTL  time.Duration   `yaml:"unlockTokenTtl"`
	Home            string          `yaml:"home"`
	Mode            policy.Mode     `yaml:"mode"`
}

// SelfDefenseModule protects its own configuration/hook artifacts from
// modification by the agent it is supervising.
type SelfDefenseModule struct {
	cfg       SelfDefenseConfig
	baselines map[string]string // canonical path/prefix -> digest
}

func NewSelfDefenseModule(cfg SelfDefenseConfig) *SelfDefenseModule {
	if cfg.OnWriteAttempt == "" {
		cfg.OnWriteAttempt = "deny"
	}
	if cfg.OnHashMismatch == "" {
		cfg.OnHashMismatch = "deny"
	}
	m := &SelfDefenseModule{cfg: cfg, baselines: map[string]string{}}
	m.captureBaseline()
	return m
}

func (m *SelfDefenseModule) captureBaseline() {
	for _, t := range m.cfg.Targets {
		canon := canonicalize(t.Path, m.cfg.Home)
		if t.Prefix {
			m.baselines[canon] = digestDir(canon)
		} else {
			m.baselines[canon] = digestFile(canon)
		}
	}
}

func digestFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func digestDir(dir string) string {
	var entries []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		entries = append(entries, path)
		return nil
	})
	sort.Strings(entries)
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		if data, err := os.ReadFile(e); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *SelfDefenseModule) Name() string { return "self_defense" }

func (m *SelfDefenseModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePreRequest, policy.PhasePreTool, policy.PhasePostTool}
}

func (m *SelfDefenseModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *SelfDefenseModule) unlocked() bool {
	if m.cfg.UnlockTokenPath == "" {
		return false
	}
	info, err := os.Stat(m.cfg.UnlockTokenPath)
	if err != nil {
		return false
	}
	if m.cfg.UnlockTokenTTL == 0 {
		return true
	}
	return time.Since(info.ModTime()) <= m.cfg.UnlockTokenTTL
}

func (m *SelfDefenseModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if m.unlocked() {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	if event.Phase == policy.PhasePreTool {
		if event.ToolCall == nil || !mutatingTools[event.ToolCall.Name] {
			return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
		}
		raw, ok := extractPath(event.ToolCall.Arguments, fsGuardPathKeys)
		if !ok {
			return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
		}
		canon := canonicalize(raw, m.cfg.Home)
		for _, t := range m.cfg.Targets {
			base := canonicalize(t.Path, m.cfg.Home)
			if (t.Prefix && within(base, canon)) || (!t.Prefix && base == canon) {
				reason := "attempted write to an immutable self-defense target"
				if m.cfg.OnWriteAttempt == "challenge" {
					return policy.Decision{
						Action: policy.ActionChallenge, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason,
						Challenge: &policy.Challenge{Channel: policy.ChannelOrchestrator, Prompt: "Approve modification of a protected file?", TimeoutSeconds: 300},
					}, nil
				}
				return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical, Reason: reason}, nil
			}
		}
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	// pre_request / post_tool: recompute digests and compare against baseline.
	for _, t := range m.cfg.Targets {
		canon := canonicalize(t.Path, m.cfg.Home)
		var current string
		if t.Prefix {
			current = digestDir(canon)
		} else {
			current = digestFile(canon)
		}
		if current != m.baselines[canon] {
			reason := "self-defense baseline digest mismatch: " + canon
			if m.cfg.OnHashMismatch == "kill_switch" && m.cfg.KillSwitchPath != "" {
				_ = os.WriteFile(m.cfg.KillSwitchPath, []byte(reason), 0o600)
			}
			return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical, Reason: reason}, nil
		}
	}

	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}
