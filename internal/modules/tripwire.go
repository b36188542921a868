package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/radiuskernel/radius/internal/policy"
)

// FileTripwireRule is an exact file or prefix ("/**"-suffixed) honeytoken.
type FileTripwireRule struct {
	Path   string `yaml:"path"` // exact path, or a directory when Prefix is true
	Prefix bool   `yaml:"prefix"`
	Action string `yaml:"action"` // alert|deny|kill_switch
}

// TripwireGuardConfig configures TripwireGuardModule.
type TripwireGuardConfig struct {
	FileRules      []FileTripwireRule `yaml:"fileRules"`
	EnvTokens      []string           `yaml:"envTokens"`
	KillSwitchPath string             `yaml:"killSwitchPath"`
	Home           string             `yaml:"home"`
	Mode           policy.Mode        `yaml:"mode"`
}

var pathLikeTokenRe = regexp.MustCompile(`(?:~|/)[\w./-]+`)

// TripwireGuardModule triggers a deterministic compromise signal when a
// honeytoken file or environment-variable name is touched.
type TripwireGuardModule struct {
	cfg CompiledTripwireConfig
}

type CompiledTripwireConfig struct {
	raw      TripwireGuardConfig
	exact    map[string]string // canonical path -> action
	prefixes []compiledPrefixRule
}

type compiledPrefixRule struct {
	base   string
	action string
}

func NewTripwireGuardModule(cfg TripwireGuardConfig) *TripwireGuardModule {
	compiled := CompiledTripwireConfig{raw: cfg, exact: map[string]string{}}
	for _, r := range cfg.FileRules {
		if r.Prefix {
			base := strings.TrimSuffix(r.Path, "/**")
			compiled.prefixes = append(compiled.prefixes, compiledPrefixRule{
				base:   canonicalize(base, cfg.Home),
				action: r.Action,
			})
		} else {
			compiled.exact[canonicalize(r.Path, cfg.Home)] = r.Action
		}
	}
	return &TripwireGuardModule{cfg: compiled}
}

func (m *TripwireGuardModule) Name() string { return "tripwire_guard" }

func (m *TripwireGuardModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *TripwireGuardModule) Mode() policy.Mode {
	if m.cfg.raw.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.raw.Mode
}

func (m *TripwireGuardModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}
	args := event.ToolCall.Arguments

	for _, candidate := range m.candidatePaths(args) {
		canon := canonicalize(candidate, m.cfg.raw.Home)
		if action, ok := m.cfg.exact[canon]; ok {
			return m.triggerDecision(action, fmt.Sprintf("tripwire file %q touched", canon))
		}
		for _, pr := range m.cfg.prefixes {
			if within(pr.base, canon) {
				return m.triggerDecision(pr.action, fmt.Sprintf("tripwire prefix %q touched (%q)", pr.base, canon))
			}
		}
	}

	if len(m.cfg.raw.EnvTokens) > 0 {
		payload, err := json.Marshal(args)
		if err == nil {
			s := string(payload)
			for _, tok := range m.cfg.raw.EnvTokens {
				if strings.Contains(s, tok) {
					return policy.Decision{
						Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
						Reason: fmt.Sprintf("env tripwire token %q present in arguments", tok),
					}, nil
				}
			}
		}
	}

	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}

func (m *TripwireGuardModule) candidatePaths(args map[string]any) []string {
	var out []string
	for _, k := range fsGuardPathKeys {
		if v, ok := args[k].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	if cmd, ok := args["command"].(string); ok {
		out = append(out, pathLikeTokenRe.FindAllString(cmd, -1)...)
	}
	return out
}

func (m *TripwireGuardModule) triggerDecision(action, reason string) (policy.Decision, error) {
	switch action {
	case "alert":
		return policy.Decision{Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason}, nil
	case "kill_switch":
		if m.cfg.raw.KillSwitchPath != "" {
			_ = os.WriteFile(m.cfg.raw.KillSwitchPath, []byte("tripwire: "+reason), 0o600)
		}
		return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical, Reason: reason}, nil
	default: // deny
		return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical, Reason: reason}, nil
	}
}
