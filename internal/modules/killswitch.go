package modules

import (
	"context"
	"os"
	"strings"

	"github.com/radiuskernel/radius/internal/policy"
)

var killSwitchTruthy = map[string]bool{
	"1": true, "true": true, "on": true, "yes": true, "enabled": true,
}

// KillSwitchConfig configures KillSwitchModule.
type KillSwitchConfig struct {
	EnvVar     string         `yaml:"envVar"`
	FilePath   string         `yaml:"filePath"`
	DenyPhases []policy.Phase `yaml:"denyPhases"`
	Mode       policy.Mode    `yaml:"mode"`
}

// KillSwitchModule is the global emergency-stop control.
type KillSwitchModule struct {
	cfg KillSwitchConfig
}

func NewKillSwitchModule(cfg KillSwitchConfig) *KillSwitchModule {
	if cfg.EnvVar == "" {
		cfg.EnvVar = "RADIUS_KILL_SWITCH"
	}
	if len(cfg.DenyPhases) == 0 {
		cfg.DenyPhases = []policy.Phase{policy.PhasePreRequest, policy.PhasePreTool}
	}
	return &KillSwitchModule{cfg: cfg}
}

func (m *KillSwitchModule) Name() string { return "kill_switch" }

func (m *KillSwitchModule) Phases() []policy.Phase {
	return []policy.Phase{
		policy.PhasePreLoad, policy.PhasePreRequest, policy.PhasePreTool,
		policy.PhasePostTool, policy.PhasePreResponse,
	}
}

func (m *KillSwitchModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *KillSwitchModule) active() bool {
	if val := strings.ToLower(strings.TrimSpace(os.Getenv(m.cfg.EnvVar))); killSwitchTruthy[val] {
		return true
	}
	if m.cfg.FilePath != "" {
		if _, err := os.Stat(m.cfg.FilePath); err == nil {
			return true
		}
	}
	return false
}

func (m *KillSwitchModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if !m.active() {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	for _, ph := range m.cfg.DenyPhases {
		if ph == event.Phase {
			return policy.Decision{
				Action:   policy.ActionDeny,
				Module:   m.Name(),
				Reason:   "kill switch active",
				Severity: policy.SeverityCritical,
			}, nil
		}
	}

	return policy.Decision{
		Action:   policy.ActionAlert,
		Module:   m.Name(),
		Reason:   "kill switch active outside deny-phases",
		Severity: policy.SeverityHigh,
	}, nil
}
