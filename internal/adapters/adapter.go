// Package adapters translates between each supported orchestrator's wire
// shape and the canonical policy.Event, and renders a policy.PipelineResult
// back into that orchestrator's response envelope.
package adapters

import "github.com/radiuskernel/radius/internal/policy"

// Adapter is the uniform per-framework contract.
type Adapter interface {
	Framework() policy.Framework
	ToEvent(raw map[string]any) *policy.Event
	ToResponse(result *policy.PipelineResult, raw map[string]any) map[string]any
}

// routingHintKeys are the canonical metadata keys every adapter normalizes
// multi-agent routing hints into, regardless of the source framework's
// field names.
const (
	MetaChannel   = "channel"
	MetaModeHint  = "modeHint"
	MetaTaskType  = "taskType"
	MetaRouteTags = "routeTags"
)

// For returns the Adapter registered for framework, or the generic adapter
// if none is registered.
func For(framework policy.Framework) Adapter {
	switch framework {
	case policy.FrameworkOpenClaw:
		return OpenClawAdapter{}
	case policy.FrameworkNanobot:
		return NanobotAdapter{}
	case policy.FrameworkClaudeTelegram:
		return ClaudeTelegramAdapter{}
	default:
		return GenericAdapter{}
	}
}

// asString returns v as a string if it is one, else "".
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asStringSlice coerces a []any/[]string-shaped value into []string,
// tolerating malformed input by skipping non-string elements.
func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// firstString returns the first non-empty string found in m under any of
// keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// asMap coerces v into map[string]any, defaulting to an empty map.
func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
