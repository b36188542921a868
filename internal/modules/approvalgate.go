package modules

import (
	"context"
	"fmt"

	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// ApprovalRule resolves one tool's challenge channel, prompt, and timeout.
type ApprovalRule struct {
	Tool           string         `yaml:"tool"`    // exact name or "*"
	Channel        policy.Channel `yaml:"channel"` // explicit, or "" for auto
	Prompt         string         `yaml:"prompt"`
	TimeoutSeconds int            `yaml:"timeoutSeconds"`
}

// ApprovalGateConfig configures ApprovalGateModule.
type ApprovalGateConfig struct {
	Rules               []ApprovalRule                      `yaml:"rules"`
	MetadataChannelKeys []string                            `yaml:"metadataChannelKeys"`
	FrameworkDefault    map[policy.Framework]policy.Channel `yaml:"frameworkDefault"`
	GlobalDefault       policy.Channel                      `yaml:"globalDefault"`
	Mode                policy.Mode                         `yaml:"mode"`
}

// ApprovalGateModule converts a matched tool call into a challenge,
// resolving the delivery channel through metadata, framework default, then
// global default. Before issuing a challenge it checks the
// approval lease store; an active lease for this session+agent+tool
// short-circuits straight to allow, so a second evaluation within an
// approved_temporary lease's TTL never reaches a connector.
type ApprovalGateModule struct {
	cfg   ApprovalGateConfig
	store store.Store
}

func NewApprovalGateModule(cfg ApprovalGateConfig, st store.Store) *ApprovalGateModule {
	if len(cfg.MetadataChannelKeys) == 0 {
		cfg.MetadataChannelKeys = []string{"channel", "transportChannel", "messenger"}
	}
	if cfg.GlobalDefault == "" {
		cfg.GlobalDefault = policy.ChannelTelegram
	}
	return &ApprovalGateModule{cfg: cfg, store: st}
}

func (m *ApprovalGateModule) Name() string { return "approval_gate" }

func (m *ApprovalGateModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *ApprovalGateModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *ApprovalGateModule) Evaluate(ctx context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	var rule *ApprovalRule
	for i := range m.cfg.Rules {
		if m.cfg.Rules[i].Tool == event.ToolCall.Name || m.cfg.Rules[i].Tool == "*" {
			rule = &m.cfg.Rules[i]
			break
		}
	}
	if rule == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	if m.store != nil {
		if lease, ok, err := m.store.FindActiveLease(ctx, event.SessionID, event.AgentID, event.ToolCall.Name, store.NowMs()); err == nil && ok {
			return policy.Decision{
				Action: policy.ActionAllow, Module: m.Name(), Severity: policy.SeverityInfo,
				Reason: fmt.Sprintf("approval lease %q active", lease.ID),
			}, nil
		}
	}

	channel := m.resolveChannel(rule, event)

	prompt := rule.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("Approve execution of %q?", event.ToolCall.Name)
	}
	timeout := rule.TimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}

	return policy.Decision{
		Action: policy.ActionChallenge, Module: m.Name(), Severity: policy.SeverityMedium,
		Reason: fmt.Sprintf("approval required for %q", event.ToolCall.Name),
		Challenge: &policy.Challenge{Channel: channel, Prompt: prompt, TimeoutSeconds: timeout},
	}, nil
}

func (m *ApprovalGateModule) resolveChannel(rule *ApprovalRule, event *policy.Event) policy.Channel {
	if rule.Channel != "" {
		return rule.Channel
	}
	for _, key := range m.cfg.MetadataChannelKeys {
		if v, ok := event.Metadata[key].(string); ok && v != "" {
			return policy.Channel(v)
		}
	}
	if ch, ok := m.cfg.FrameworkDefault[event.Framework]; ok && ch != "" {
		return ch
	}
	return m.cfg.GlobalDefault
}
