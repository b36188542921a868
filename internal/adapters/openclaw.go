package adapters

import "github.com/radiuskernel/radius/internal/policy"

// openClawHookPhases maps every hook_type/hook_event_name spelling this
// adapter recognizes to its canonical phase. PreToolUse/PostToolUse are the
// two hooks the framework always sends; the rest extend the same
// vocabulary to the remaining three pipeline phases.
var openClawHookPhases = map[string]policy.Phase{
	"PreToolUse":       policy.PhasePreTool,
	"PostToolUse":      policy.PhasePostTool,
	"PreLoad":          policy.PhasePreLoad,
	"UserPromptSubmit": policy.PhasePreRequest,
	"PreRequest":       policy.PhasePreRequest,
	"PreResponse":      policy.PhasePreResponse,
	"Stop":             policy.PhasePreResponse,
}

// OpenClawAdapter implements the PreToolUse/PostToolUse hook envelope.
type OpenClawAdapter struct{}

func (OpenClawAdapter) Framework() policy.Framework { return policy.FrameworkOpenClaw }

func (OpenClawAdapter) ToEvent(raw map[string]any) *policy.Event {
	hookName := firstString(raw, "hook_type", "hook_event_name")
	phase, ok := openClawHookPhases[hookName]
	if !ok {
		phase = policy.PhasePreRequest
	}

	event := policy.NewEvent(phase, policy.FrameworkOpenClaw)
	if sid := asString(raw["session_id"]); sid != "" {
		event.SessionID = sid
	}
	event.AgentID = asString(raw["agent_name"])

	toolName := asString(raw["tool_name"])
	if toolName != "" {
		args := asMap(raw["tool_input"])
		if len(args) == 0 {
			args = asMap(raw["tool_arguments"])
		}
		event.ToolCall = &policy.ToolCall{Name: toolName, Arguments: args, Raw: raw}
	}

	if phase == policy.PhasePostTool {
		text := firstString(raw, "tool_output", "tool_response", "tool_result")
		isError, _ := raw["is_error"].(bool)
		event.ToolResult = &policy.ToolResult{Text: text, IsError: isError, Raw: raw["tool_output"]}
	}

	if channel := asString(raw["channel"]); channel != "" {
		event.Metadata[MetaChannel] = channel
	}
	if mode := asString(raw["mode"]); mode != "" {
		event.Metadata[MetaModeHint] = mode
	}
	if taskType := asString(raw["task_type"]); taskType != "" {
		event.Metadata[MetaTaskType] = taskType
	}
	if tags := asStringSlice(raw["tags"]); len(tags) > 0 {
		event.Metadata[MetaRouteTags] = tags
	}

	return event
}

func (OpenClawAdapter) ToResponse(result *policy.PipelineResult, raw map[string]any) map[string]any {
	resp := map[string]any{"decision": string(result.FinalAction)}

	switch result.FinalAction {
	case policy.ActionDeny:
		resp["decision"] = "deny"
		resp["reason"] = result.FinalReason
	case policy.ActionChallenge:
		resp["decision"] = "challenge"
		resp["reason"] = result.FinalReason
		if c := lastChallenge(result); c != nil {
			resp["challenge"] = map[string]any{
				"channel": string(c.Channel), "prompt": c.Prompt, "timeoutSeconds": c.TimeoutSeconds,
			}
		}
	default:
		resp["decision"] = "allow"
		if result.Transforms.ToolArguments != nil {
			resp["updatedInput"] = result.Transforms.ToolArguments
		}
	}
	return resp
}

func lastChallenge(result *policy.PipelineResult) *policy.Challenge {
	for i := len(result.Chain) - 1; i >= 0; i-- {
		if result.Chain[i].Challenge != nil {
			return result.Chain[i].Challenge
		}
	}
	return nil
}
