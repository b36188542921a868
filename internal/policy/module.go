package policy

import "context"

// Mode controls whether a module's non-allow decisions are enforced or
// merely surfaced as alerts.
type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeObserve Mode = "observe"
)

// Module is a self-contained predicate producing exactly one decision per
// event. Implementations are constructed once from an untyped configuration
// mapping and evaluated repeatedly; they must be safe for concurrent use
// across disjoint events.
type Module interface {
	// Name is the module's stable identifier, used in decisions, config
	// keys, and the module registry.
	Name() string

	// Phases lists the phases this module participates in. The pipeline
	// filters modules by event phase before invoking Evaluate.
	Phases() []Phase

	// Mode returns whether this module's decisions are enforced or merely
	// observed.
	Mode() Mode

	// Evaluate produces a decision for the given event. Implementations may
	// return an error, which the pipeline treats as a fail-closed deny in
	// enforce mode and an alert in observe mode.
	Evaluate(ctx context.Context, event *Event) (Decision, error)
}
