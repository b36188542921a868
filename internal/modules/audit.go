package modules

import (
	"context"

	"github.com/radiuskernel/radius/internal/policy"
)

// EventSink receives every evaluated event, independent of the pipeline's
// decision. Implemented by internal/audit.Logger.
type EventSink interface {
	RecordEvent(ctx context.Context, event *policy.Event)
}

// AuditModule always returns allow and forwards the event to a sink. It
// runs in observe mode so that even a sink failure can never affect the
// decision chain.
type AuditModule struct {
	sink EventSink
}

func NewAuditModule(sink EventSink) *AuditModule {
	return &AuditModule{sink: sink}
}

func (m *AuditModule) Name() string { return "audit" }

func (m *AuditModule) Phases() []policy.Phase {
	return []policy.Phase{
		policy.PhasePreLoad, policy.PhasePreRequest, policy.PhasePreTool,
		policy.PhasePostTool, policy.PhasePreResponse,
	}
}

func (m *AuditModule) Mode() policy.Mode { return policy.ModeObserve }

func (m *AuditModule) Evaluate(ctx context.Context, event *policy.Event) (policy.Decision, error) {
	if m.sink != nil {
		m.sink.RecordEvent(ctx, event)
	}
	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}
