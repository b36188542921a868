package modules

import (
	"context"
	"testing"

	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

func newSessionEvent(sessionID string) *policy.Event {
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkGeneric)
	e.SessionID = sessionID
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "echo hi"}}
	return e
}

// A deny must only ever follow the full budget of allows in the window.
func TestRateBudgetModule_DeniesOnlyAfterNAllows(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewRateBudgetModule(RateBudgetConfig{WindowSec: 60, MaxCallsPerWindow: 2}, st)
	event := newSessionEvent("s1")

	for i := 0; i < 2; i++ {
		d, err := m.Evaluate(context.Background(), event)
		if err != nil {
			t.Fatal(err)
		}
		if d.Action != policy.ActionAllow {
			t.Fatalf("call %d should be allowed, got %s", i, d.Action)
		}
	}

	d, err := m.Evaluate(context.Background(), event)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != policy.ActionDeny || d.Severity != policy.SeverityHigh {
		t.Fatalf("3rd call should be denied high, got %s/%s", d.Action, d.Severity)
	}
}

func TestRateBudgetModule_Defaults(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewRateBudgetModule(RateBudgetConfig{}, st)
	if m.cfg.WindowSec != 60 || m.cfg.MaxCallsPerWindow != 60 {
		t.Fatalf("expected default 60/60, got %d/%d", m.cfg.WindowSec, m.cfg.MaxCallsPerWindow)
	}
}

func TestRateBudgetModule_IndependentSessions(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewRateBudgetModule(RateBudgetConfig{WindowSec: 60, MaxCallsPerWindow: 1}, st)

	d1, err := m.Evaluate(context.Background(), newSessionEvent("s1"))
	if err != nil {
		t.Fatal(err)
	}
	if d1.Action != policy.ActionAllow {
		t.Fatalf("want allow for s1, got %s", d1.Action)
	}

	d2, err := m.Evaluate(context.Background(), newSessionEvent("s2"))
	if err != nil {
		t.Fatal(err)
	}
	if d2.Action != policy.ActionAllow {
		t.Fatalf("want allow for independent session s2, got %s", d2.Action)
	}
}
