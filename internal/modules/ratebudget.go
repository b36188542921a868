package modules

import (
	"context"
	"fmt"

	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// RateBudgetConfig configures RateBudgetModule.
type RateBudgetConfig struct {
	WindowSec         int         `yaml:"windowSec"`
	MaxCallsPerWindow int         `yaml:"maxCallsPerWindow"`
	Mode              policy.Mode `yaml:"mode"`
}

// RateBudgetModule enforces a per-session sliding-window call budget,
// backed by the shared store.Store abstraction (in-memory or SQLite).
// Counting is exact: each call is recorded with its timestamp and expired
// entries are pruned before the comparison, rather than approximating with
// a token bucket.
type RateBudgetModule struct {
	cfg   RateBudgetConfig
	store store.Store
}

func NewRateBudgetModule(cfg RateBudgetConfig, st store.Store) *RateBudgetModule {
	if cfg.WindowSec == 0 {
		cfg.WindowSec = 60
	}
	if cfg.MaxCallsPerWindow == 0 {
		cfg.MaxCallsPerWindow = 60
	}
	return &RateBudgetModule{cfg: cfg, store: st}
}

func (m *RateBudgetModule) Name() string { return "rate_budget" }

func (m *RateBudgetModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePreTool, policy.PhasePreRequest}
}

func (m *RateBudgetModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *RateBudgetModule) Evaluate(ctx context.Context, event *policy.Event) (policy.Decision, error) {
	key := event.SessionID
	res, err := m.store.ConsumeRateBudget(ctx, key, m.cfg.WindowSec, m.cfg.MaxCallsPerWindow, store.NowMs())
	if err != nil {
		return policy.Decision{}, fmt.Errorf("rate_budget: %w", err)
	}
	if !res.Allowed {
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d", res.Count, res.Max),
		}, nil
	}
	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}
