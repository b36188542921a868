package modules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// RepetitionGuardConfig configures RepetitionGuardModule.
type RepetitionGuardConfig struct {
	CooldownSec int         `yaml:"cooldownSec"`
	Threshold   int         `yaml:"threshold"`
	OnRepeat    string      `yaml:"onRepeat"` // "deny" (default) | "alert"
	Mode        policy.Mode `yaml:"mode"`
}

// RepetitionGuardModule denies (or alerts on) a tool call repeated
// identically more than Threshold times within CooldownSec.
type RepetitionGuardModule struct {
	cfg   RepetitionGuardConfig
	store store.Store
}

func NewRepetitionGuardModule(cfg RepetitionGuardConfig, st store.Store) *RepetitionGuardModule {
	if cfg.CooldownSec == 0 {
		cfg.CooldownSec = 30
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	if cfg.OnRepeat == "" {
		cfg.OnRepeat = "deny"
	}
	return &RepetitionGuardModule{cfg: cfg, store: st}
}

func (m *RepetitionGuardModule) Name() string { return "repetition_guard" }

func (m *RepetitionGuardModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *RepetitionGuardModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *RepetitionGuardModule) Evaluate(ctx context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	fingerprint := fingerprintCall(event.ToolCall.Name, event.ToolCall.Arguments)
	bucket := fmt.Sprintf("%s|%s|%s|%s", event.Framework, event.SessionID, event.AgentID, event.UserID)

	res, err := m.store.ConsumeRepetition(ctx, bucket, fingerprint, m.cfg.CooldownSec, store.NowMs())
	if err != nil {
		return policy.Decision{}, fmt.Errorf("repetition_guard: %w", err)
	}

	if res.Count < m.cfg.Threshold {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	reason := fmt.Sprintf("tool call repeated %d times within cooldown", res.Count)
	if m.cfg.OnRepeat == "alert" {
		return policy.Decision{Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityMedium, Reason: reason}, nil
	}
	return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason}, nil
}

func fingerprintCall(tool string, args map[string]any) string {
	sum := sha256.Sum256([]byte(tool + ":" + stableJSON(args)))
	return hex.EncodeToString(sum[:])
}
