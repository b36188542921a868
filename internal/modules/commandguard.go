package modules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/radiuskernel/radius/internal/policy"
)

var shellSegmentSplit = regexp.MustCompile(`&&|\|\||;|\|`)

// DefaultCommandDenyPatterns applies when no denyPatterns are configured.
var DefaultCommandDenyPatterns = []string{
	`(^|\s)sudo\s`,
	`rm\s+-rf\s+/`,
}

// EnvReadDenyPatterns catches shell reads of .env files through common
// commands. Stricter profiles layer these on top of the defaults.
var EnvReadDenyPatterns = []string{
	`(^|\s)(cat|less|more|head|tail|grep|awk|sed|strings|base64|xxd|cp|scp)\s.*\.env\b`,
	`(^|\s)(source|\.)\s+\S*\.env\b`,
}

// CommandGuardConfig configures CommandGuardModule.
type CommandGuardConfig struct {
	ShellTools    []string    `yaml:"shellTools"`
	DenyPatterns  []string    `yaml:"denyPatterns"`
	AllowPatterns []string    `yaml:"allowPatterns"`
	Mode          policy.Mode `yaml:"mode"`
}

// CommandGuardModule denies or requires allowlisted shell command segments.
type CommandGuardModule struct {
	shellTools map[string]bool
	deny       []*regexp.Regexp
	allow      []*regexp.Regexp
	mode       policy.Mode
}

func NewCommandGuardModule(cfg CommandGuardConfig) (*CommandGuardModule, error) {
	tools := cfg.ShellTools
	if len(tools) == 0 {
		tools = []string{"Bash"}
	}
	shellTools := map[string]bool{}
	for _, t := range tools {
		shellTools[t] = true
	}

	denyPatterns := cfg.DenyPatterns
	if len(denyPatterns) == 0 {
		denyPatterns = DefaultCommandDenyPatterns
	}

	m := &CommandGuardModule{shellTools: shellTools, mode: cfg.Mode}
	for _, p := range denyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("command_guard: bad deny pattern %q: %w", p, err)
		}
		m.deny = append(m.deny, re)
	}
	for _, p := range cfg.AllowPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("command_guard: bad allow pattern %q: %w", p, err)
		}
		m.allow = append(m.allow, re)
	}
	return m, nil
}

func (m *CommandGuardModule) Name() string { return "command_guard" }

func (m *CommandGuardModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *CommandGuardModule) Mode() policy.Mode {
	if m.mode == "" {
		return policy.ModeEnforce
	}
	return m.mode
}

func (m *CommandGuardModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil || !m.shellTools[event.ToolCall.Name] {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}
	cmd, _ := event.ToolCall.Arguments["command"].(string)
	if cmd == "" {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	for _, segment := range shellSegmentSplit.Split(cmd, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		for _, re := range m.deny {
			if re.MatchString(segment) {
				return policy.Decision{
					Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
					Reason: fmt.Sprintf("command segment %q matches deny pattern %q", segment, re.String()),
				}, nil
			}
		}
		if len(m.allow) > 0 {
			matched := false
			for _, re := range m.allow {
				if re.MatchString(segment) {
					matched = true
					break
				}
			}
			if !matched {
				return policy.Decision{
					Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
					Reason: fmt.Sprintf("command segment %q matches no allow pattern", segment),
				}, nil
			}
		}
	}

	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}
