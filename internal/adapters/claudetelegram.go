package adapters

import "github.com/radiuskernel/radius/internal/policy"

// ClaudeTelegramAdapter implements the beforeClaude/afterClaude chat hook
// envelope.
type ClaudeTelegramAdapter struct{}

func (ClaudeTelegramAdapter) Framework() policy.Framework { return policy.FrameworkClaudeTelegram }

func (ClaudeTelegramAdapter) ToEvent(raw map[string]any) *policy.Event {
	hook := asString(raw["hook"])
	phase := policy.PhasePreRequest
	if hook == "afterClaude" {
		phase = policy.PhasePreResponse
	}

	event := policy.NewEvent(phase, policy.FrameworkClaudeTelegram)

	ctx := asMap(raw["ctx"])
	if chatID := asString(ctx["chatId"]); chatID != "" {
		event.SessionID = chatID
	}
	event.UserID = asString(ctx["userId"])
	event.AgentID = asString(ctx["agentName"])

	if phase == policy.PhasePreRequest {
		event.RequestText = asString(raw["message"])
	} else {
		event.ResponseText = asString(raw["result"])
	}

	if profile := asString(ctx["profile"]); profile != "" {
		event.Metadata[MetaModeHint] = profile
	}
	if labels := asStringSlice(ctx["labels"]); len(labels) > 0 {
		event.Metadata[MetaRouteTags] = labels
	}
	event.Metadata[MetaChannel] = "telegram"

	return event
}

func (ClaudeTelegramAdapter) ToResponse(result *policy.PipelineResult, raw map[string]any) map[string]any {
	resp := map[string]any{"allow": result.FinalAction == policy.ActionAllow}

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
		} else if result.Transforms.RequestText != nil {
			resp["message"] = *result.Transforms.RequestText
		}
	}
	return resp
}
