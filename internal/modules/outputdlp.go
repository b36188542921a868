package modules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/radiuskernel/radius/internal/policy"
)

// builtin secret-shaped regexes, compiled once. All are RE2
// (non-backtracking), satisfying the catastrophic-backtracking requirement
// without a third-party regex engine.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                                  // AWS access key
	regexp.MustCompile(`gh[pousr]_[0-9A-Za-z]{20,}`),                        // GitHub token
	regexp.MustCompile(`(?i)api[_-]?key["'\s:=]+[0-9A-Za-z\-_]{16,}`),       // generic API key assignment
	regexp.MustCompile(`(?i)bearer\s+[0-9A-Za-z\-_.]{16,}`),                 // Bearer token
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |)PRIVATE KEY-----`), // PEM private key
	regexp.MustCompile(`xox[baprs]-[0-9A-Za-z-]{10,}`),                      // Slack token
	regexp.MustCompile(`(?i)secret["'\s:=]+[0-9A-Za-z\-_]{16,}`),            // generic secret assignment
}

// OutputDlpConfig configures OutputDlpModule.
type OutputDlpConfig struct {
	Action       string      `yaml:"action"` // deny|alert|redact
	KnownSecrets []string    `yaml:"knownSecrets"`
	UserPatterns []string    `yaml:"userPatterns"`
	Mode         policy.Mode `yaml:"mode"`
}

type OutputDlpModule struct {
	cfg      OutputDlpConfig
	patterns []*regexp.Regexp
}

func NewOutputDlpModule(cfg OutputDlpConfig) (*OutputDlpModule, error) {
	if cfg.Action == "" {
		cfg.Action = "deny"
	}
	m := &OutputDlpModule{cfg: cfg}
	m.patterns = append(m.patterns, builtinSecretPatterns...)
	for _, s := range cfg.KnownSecrets {
		m.patterns = append(m.patterns, regexp.MustCompile(regexp.QuoteMeta(s)))
	}
	for _, p := range cfg.UserPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("output_dlp: bad user pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *OutputDlpModule) Name() string { return "output_dlp" }

func (m *OutputDlpModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePostTool, policy.PhasePreResponse}
}

func (m *OutputDlpModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *OutputDlpModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	var text string
	switch event.Phase {
	case policy.PhasePostTool:
		if event.ToolResult == nil {
			return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
		}
		text = event.ToolResult.Text
	case policy.PhasePreResponse:
		text = event.ResponseText
	default:
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	var hit string
	for _, re := range m.patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			hit = re.String()
			break
		}
	}
	if hit == "" {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	switch m.cfg.Action {
	case "alert":
		return policy.Decision{
			Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityHigh,
			Reason: "output contains a secret-shaped value",
		}, nil
	case "redact":
		redacted := text
		for _, re := range m.patterns {
			redacted = re.ReplaceAllString(redacted, "[REDACTED]")
		}
		patch := &policy.Patch{}
		if event.Phase == policy.PhasePostTool {
			patch.ToolResultText = &redacted
		} else {
			patch.ResponseText = &redacted
		}
		return policy.Decision{
			Action: policy.ActionModify, Module: m.Name(), Severity: policy.SeverityMedium,
			Reason: "redacted secret-shaped value", Patch: patch,
		}, nil
	default: // deny
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
			Reason: "output contains a secret-shaped value",
		}, nil
	}
}
