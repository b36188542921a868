package policy

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultAction is the action the pipeline falls back to when no module
// applies to an event's phase.
type DefaultAction string

const (
	DefaultActionAllow DefaultAction = "allow"
	DefaultActionDeny  DefaultAction = "deny"
)

// Pipeline evaluates an ordered list of modules against events, enforcing
// the composition, short-circuit, fail-closed, and observe-mode semantics.
type Pipeline struct {
	modules       []Module
	defaultAction DefaultAction
	logger        *slog.Logger
}

// New constructs a Pipeline from an ordered module list and the
// caller-supplied default action (config's global.defaultAction).
func New(modules []Module, defaultAction DefaultAction, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		modules:       modules,
		defaultAction: defaultAction,
		logger:        logger.With("component", "pipeline"),
	}
}

// Run executes the pipeline for one event: filter modules by phase, invoke
// each in order, short-circuit on deny/challenge, compose modify patches,
// and fail closed when an enforce-mode module errors.
func (p *Pipeline) Run(ctx context.Context, event *Event) *PipelineResult {
	result := &PipelineResult{}

	applicable := p.filterByPhase(event.Phase)

	for _, m := range applicable {
		decision, err := p.safeEvaluate(ctx, m, event)

		if err != nil {
			if m.Mode() == ModeEnforce {
				failClosed := Decision{
					Action:   ActionDeny,
					Module:   m.Name(),
					Reason:   fmt.Sprintf("module error (fail-closed): %s", err),
					Severity: SeverityCritical,
				}
				result.Chain = append(result.Chain, failClosed)
				result.FinalAction = ActionDeny
				result.FinalReason = failClosed.Reason
				recordDecision(m.Name(), ActionDeny)
				p.logger.Error("module evaluation failed, fail-closed deny",
					"module", m.Name(), "error", err)
				return result
			}
			alert := fmt.Sprintf("[%s] observe-mode error: %s", m.Name(), err)
			result.Alerts = append(result.Alerts, alert)
			recordDecision(m.Name(), ActionAlert)
			p.logger.Warn("observe-mode module error", "module", m.Name(), "error", err)
			continue
		}

		recordDecision(m.Name(), decision.Action)

		if m.Mode() == ModeObserve {
			switch decision.Action {
			case ActionDeny, ActionChallenge, ActionModify:
				alert := fmt.Sprintf("observe-mode would %s: %s", decision.Action, decision.Reason)
				result.Alerts = append(result.Alerts, alert)
				result.Chain = append(result.Chain, decision)
			case ActionAlert:
				result.Alerts = append(result.Alerts, fmt.Sprintf("[%s] %s", m.Name(), decision.Reason))
			}
			continue
		}

		switch decision.Action {
		case ActionDeny, ActionChallenge:
			result.Chain = append(result.Chain, decision)
			result.FinalAction = decision.Action
			result.FinalReason = decision.Reason
			return result
		case ActionModify:
			result.Chain = append(result.Chain, decision)
			applyPatch(&result.Transforms, decision.Patch)
		case ActionAlert:
			result.Alerts = append(result.Alerts, fmt.Sprintf("[%s] %s", m.Name(), decision.Reason))
		case ActionAllow:
			// continue
		}
	}

	if len(applicable) > 0 {
		result.FinalAction = ActionAllow
		result.FinalReason = "allow after module evaluation"
		return result
	}

	result.FinalAction = Action(p.defaultAction)
	result.FinalReason = "no applicable modules"
	return result
}

func (p *Pipeline) filterByPhase(phase Phase) []Module {
	var out []Module
	for _, m := range p.modules {
		for _, ph := range m.Phases() {
			if ph == phase {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (p *Pipeline) safeEvaluate(ctx context.Context, m Module, event *Event) (decision Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Evaluate(ctx, event)
}
