package modules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/radiuskernel/radius/internal/policy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ArgConstraint constrains one argument key's value.
type ArgConstraint struct {
	Type      string   `yaml:"type"` // string|number|boolean|object|array
	Pattern   string   `yaml:"pattern"`
	MinLength *int     `yaml:"minLength"`
	MaxLength *int     `yaml:"maxLength"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Enum      []any    `yaml:"enum"`

	compiled *regexp.Regexp
	schema   *jsonschema.Schema
}

// EgressBinding is the tool-scoped egress binding a tool_policy rule may
// carry for egress_guard to derive.
type EgressBinding struct {
	Mode           string   `yaml:"mode"` // "intersect"
	BlockedDomains []string `yaml:"blockedDomains"`
	BlockedIPs     []string `yaml:"blockedIps"`
	BlockedPorts   []int    `yaml:"blockedPorts"`
	AllowedDomains []string `yaml:"allowedDomains"`
	AllowedIPs     []string `yaml:"allowedIps"`
	AllowedPorts   []int    `yaml:"allowedPorts"`
}

// ToolRule is one tool_policy rule.
type ToolRule struct {
	Tool              string                   `yaml:"tool"`
	When              map[string]any           `yaml:"when"`
	Action            policy.Action            `yaml:"action"` // allow|deny|challenge
	Channel           policy.Channel           `yaml:"channel"`
	Prompt            string                   `yaml:"prompt"`
	TimeoutSeconds    int                      `yaml:"timeoutSeconds"`
	RequiredArgs      []string                 `yaml:"requiredArgs"`
	AllowedArgs       []string                 `yaml:"allowedArgs"`
	ForbidUnknownArgs bool                     `yaml:"forbidUnknownArgs"`
	ArgConstraints    map[string]ArgConstraint `yaml:"argConstraints"`
	Egress            *EgressBinding           `yaml:"egress"`
}

// ToolPolicyConfig configures ToolPolicyModule.
type ToolPolicyConfig struct {
	Rules   []ToolRule    `yaml:"rules"`
	Default policy.Action `yaml:"default"` // allow|deny
	Mode    policy.Mode   `yaml:"mode"`
}

// ToolPolicyModule is the first-matching-rule tool allow/deny/challenge
// engine.
type ToolPolicyModule struct {
	cfg ToolPolicyConfig
}

// compileArgConstraintSchema builds a one-property JSON Schema document for
// a single argument constraint, letting jsonschema/v5 do type/format/range
// validation instead of hand-rolled type switches (DOMAIN STACK).
func compileArgConstraintSchema(key string, c ArgConstraint) (*jsonschema.Schema, error) {
	prop := map[string]any{}
	if c.Type != "" {
		prop["type"] = c.Type
	}
	if c.Pattern != "" {
		prop["pattern"] = c.Pattern
	}
	if c.MinLength != nil {
		prop["minLength"] = *c.MinLength
	}
	if c.MaxLength != nil {
		prop["maxLength"] = *c.MaxLength
	}
	if c.Min != nil {
		prop["minimum"] = *c.Min
	}
	if c.Max != nil {
		prop["maximum"] = *c.Max
	}
	if len(c.Enum) > 0 {
		prop["enum"] = c.Enum
	}

	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": map[string]any{key: prop},
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://tool_policy/%s.json", key)
	if err := compiler.AddResource(url, mapToReader(doc)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// NewToolPolicyModule pre-compiles every argConstraint's regex and JSON
// Schema at construction so evaluation never compiles anything per event.
func NewToolPolicyModule(cfg ToolPolicyConfig) (*ToolPolicyModule, error) {
	if cfg.Default == "" {
		cfg.Default = policy.ActionAllow
	}
	for i := range cfg.Rules {
		for key, c := range cfg.Rules[i].ArgConstraints {
			if c.Pattern != "" {
				re, err := regexp.Compile(c.Pattern)
				if err != nil {
					return nil, fmt.Errorf("tool_policy: rule %q arg %q: %w", cfg.Rules[i].Tool, key, err)
				}
				c.compiled = re
			}
			schema, err := compileArgConstraintSchema(key, c)
			if err != nil {
				return nil, fmt.Errorf("tool_policy: rule %q arg %q: %w", cfg.Rules[i].Tool, key, err)
			}
			c.schema = schema
			cfg.Rules[i].ArgConstraints[key] = c
		}
	}
	return &ToolPolicyModule{cfg: cfg}, nil
}

func (m *ToolPolicyModule) Name() string { return "tool_policy" }

func (m *ToolPolicyModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePreTool}
}

func (m *ToolPolicyModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *ToolPolicyModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}
	name := event.ToolCall.Name
	args := event.ToolCall.Arguments

	for _, rule := range m.cfg.Rules {
		if rule.Tool != name && rule.Tool != "*" {
			continue
		}
		if rule.When != nil && !structuralMatch(rule.When, map[string]any(args)) {
			continue
		}

		if deny, reason := m.checkSchema(rule, args); deny {
			return policy.Decision{
				Action: policy.ActionDeny, Module: m.Name(), Reason: reason,
				Severity: policy.SeverityHigh,
			}, nil
		}

		switch rule.Action {
		case policy.ActionDeny:
			reason := rule.Prompt
			if reason == "" {
				reason = fmt.Sprintf("tool %q denied by policy", name)
			}
			return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Reason: reason, Severity: policy.SeverityHigh}, nil
		case policy.ActionChallenge:
			prompt := rule.Prompt
			if prompt == "" {
				prompt = fmt.Sprintf("Approve execution of %q?", name)
			}
			timeout := rule.TimeoutSeconds
			if timeout == 0 {
				timeout = 300
			}
			return policy.Decision{
				Action: policy.ActionChallenge, Module: m.Name(), Reason: "challenge required by tool_policy rule",
				Severity: policy.SeverityMedium,
				Challenge: &policy.Challenge{Channel: rule.Channel, Prompt: prompt, TimeoutSeconds: timeout},
			}, nil
		default:
			return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
		}
	}

	return policy.Decision{Action: m.cfg.Default, Module: m.Name(), Reason: "no tool_policy rule matched"}, nil
}

func (m *ToolPolicyModule) checkSchema(rule ToolRule, args map[string]any) (bool, string) {
	if len(rule.RequiredArgs) == 0 && len(rule.AllowedArgs) == 0 && !rule.ForbidUnknownArgs && len(rule.ArgConstraints) == 0 {
		return false, ""
	}

	for _, req := range rule.RequiredArgs {
		if _, ok := args[req]; !ok {
			return true, fmt.Sprintf("missing required argument %q", req)
		}
	}

	allowed := map[string]bool{}
	for _, a := range rule.AllowedArgs {
		allowed[a] = true
	}
	if len(rule.AllowedArgs) == 0 && rule.ForbidUnknownArgs {
		for _, a := range rule.RequiredArgs {
			allowed[a] = true
		}
		for k := range rule.ArgConstraints {
			allowed[k] = true
		}
	}
	if len(allowed) > 0 {
		for k := range args {
			if !allowed[k] {
				return true, fmt.Sprintf("argument %q is not allowlisted", k)
			}
		}
	}

	for key, c := range rule.ArgConstraints {
		val, present := args[key]
		if !present {
			continue
		}
		if c.Pattern != "" && c.compiled != nil {
			s, ok := val.(string)
			if !ok || !c.compiled.MatchString(s) {
				return true, fmt.Sprintf("argument %q does not match required pattern", key)
			}
		}
		if c.schema != nil {
			if err := c.schema.Validate(map[string]any{key: val}); err != nil {
				return true, fmt.Sprintf("argument %q failed constraint: %s", key, err)
			}
		}
	}
	return false, ""
}
