package adapters

import "github.com/radiuskernel/radius/internal/policy"

// NanobotAdapter implements the MCP-style tools/call envelope.
type NanobotAdapter struct{}

func (NanobotAdapter) Framework() policy.Framework { return policy.FrameworkNanobot }

func (NanobotAdapter) ToEvent(raw map[string]any) *policy.Event {
	direction := asString(raw["direction"])
	phase := policy.PhasePreTool
	if direction == "response" {
		phase = policy.PhasePostTool
	}

	event := policy.NewEvent(phase, policy.FrameworkNanobot)

	params := asMap(raw["params"])
	if agent := asString(params["agent"]); agent != "" {
		event.AgentID = agent
	}
	if sid := firstString(raw, "session_id", "sessionId"); sid != "" {
		event.SessionID = sid
	}

	if name := asString(params["name"]); name != "" {
		event.ToolCall = &policy.ToolCall{Name: name, Arguments: asMap(params["arguments"]), Raw: raw}
	}

	if phase == policy.PhasePostTool {
		result := asMap(raw["result"])
		text := ""
		if content, ok := result["content"].([]any); ok {
			for _, c := range content {
				if cm, ok := c.(map[string]any); ok {
					text += asString(cm["text"])
				}
			}
		}
		isError, _ := result["isError"].(bool)
		event.ToolResult = &policy.ToolResult{Text: text, IsError: isError, Raw: result}
	}

	if channel := asString(params["channel"]); channel != "" {
		event.Metadata[MetaChannel] = channel
	}

	return event
}

func (NanobotAdapter) ToResponse(result *policy.PipelineResult, raw map[string]any) map[string]any {
	resp := map[string]any{"accept": result.FinalAction == policy.ActionAllow}

	switch result.FinalAction {
	case policy.ActionDeny:
		resp["reason"] = result.FinalReason
	case policy.ActionChallenge:
		resp["reason"] = result.FinalReason
		if c := lastChallenge(result); c != nil {
			resp["challenge"] = map[string]any{
				"channel": string(c.Channel), "prompt": c.Prompt, "timeoutSeconds": c.TimeoutSeconds,
			}
		}
	default:
		if result.Transforms.ResponseText != nil {
			resp["message"] = *result.Transforms.ResponseText
		}
	}
	return resp
}
