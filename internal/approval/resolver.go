package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// Resolver folds a pipeline CHALLENGE decision into a final allow/deny/alert
// decision by dispatching to the channel-appropriate Connector and applying
// the configured timeout/error folding policy. It is the only component
// that calls store.Store.InsertLease.
type Resolver struct {
	cfg        config.ApprovalConnectorConfig
	connectors map[policy.Channel]Connector
	store      store.Store
}

func NewResolver(cfg config.ApprovalConnectorConfig, connectors map[policy.Channel]Connector, st store.Store) *Resolver {
	return &Resolver{cfg: cfg, connectors: connectors, store: st}
}

// Resolve turns challenge into a terminal Decision for event. It is the
// caller's responsibility (the runtime facade) to splice this decision into
// the pipeline result in place of the original CHALLENGE entry.
func (r *Resolver) Resolve(ctx context.Context, challenge *policy.Challenge, event *policy.Event, moduleName string) policy.Decision {
	if r.cfg.Mode != "" && r.cfg.Mode != "sync_wait" {
		return r.fold(Outcome{Status: StatusError, Reason: fmt.Sprintf("approval mode not implemented: %s", r.cfg.Mode)}, challenge.Channel, event, moduleName)
	}

	connector, ok := r.connectors[challenge.Channel]
	if !ok || connector == nil {
		return r.fold(Outcome{Status: StatusError, Reason: fmt.Sprintf("no connector configured for channel %q", challenge.Channel)}, challenge.Channel, event, moduleName)
	}

	timeout := time.Duration(challenge.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	rctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	approvalID := uuid.NewString()
	outcome := connector.Resolve(rctx, approvalID, challenge.Prompt, deadline, event)
	if rctx.Err() != nil && outcome.Status != StatusApproved && outcome.Status != StatusApprovedTemporary && outcome.Status != StatusDenied {
		outcome = Outcome{Status: StatusTimeout, Reason: "approval deadline exceeded"}
	}

	return r.fold(outcome, challenge.Channel, event, moduleName)
}

func (r *Resolver) fold(outcome Outcome, channel policy.Channel, event *policy.Event, moduleName string) policy.Decision {
	switch outcome.Status {
	case StatusApproved:
		return policy.Decision{
			Action: policy.ActionAllow, Module: moduleName, Severity: policy.SeverityInfo,
			Reason: "approved",
		}

	case StatusApprovedTemporary:
		ttl := outcome.TTLSec
		maxTTL := r.cfg.MaxTemporaryTTLSec
		if maxTTL <= 0 {
			maxTTL = 1800
		}
		if ttl <= 0 || ttl > maxTTL {
			ttl = maxTTL
		}
		if ttl < 1 {
			ttl = 1
		}

		if r.store != nil {
			lease := store.Lease{
				ID:          uuid.NewString(),
				SessionID:   event.SessionID,
				AgentName:   event.AgentID,
				Tool:        "*",
				ExpiresAtMs: store.NowMs() + int64(ttl)*1000,
				Reason:      "approved_temporary",
			}
			_ = r.store.InsertLease(context.Background(), lease)
		}

		return policy.Decision{
			Action: policy.ActionAllow, Module: moduleName, Severity: policy.SeverityInfo,
			Reason: fmt.Sprintf("approved for %ds", ttl),
		}

	case StatusDenied:
		reason := outcome.Reason
		if reason == "" {
			reason = "denied"
		}
		return policy.Decision{
			Action: policy.ActionDeny, Module: moduleName, Severity: policy.SeverityHigh,
			Reason: fmt.Sprintf("%s: %s", channel, reason),
		}

	case StatusTimeout:
		return r.terminalFold(r.cfg.OnTimeout, "approval timed out", moduleName)

	default: // StatusError
		reason := outcome.Reason
		if reason == "" {
			reason = "approval connector error"
		}
		return r.terminalFold(r.cfg.OnConnectorError, reason, moduleName)
	}
}

func (r *Resolver) terminalFold(policyName, reason, moduleName string) policy.Decision {
	if policyName == "alert" {
		return policy.Decision{
			Action: policy.ActionAlert, Module: moduleName, Severity: policy.SeverityMedium,
			Reason: reason,
		}
	}
	return policy.Decision{
		Action: policy.ActionDeny, Module: moduleName, Severity: policy.SeverityHigh,
		Reason: reason,
	}
}
