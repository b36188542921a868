package adapters

import "github.com/radiuskernel/radius/internal/policy"

// GenericAdapter accepts and emits the canonical event shape directly, for
// callers that don't speak any of the three named framework dialects.
type GenericAdapter struct{}

func (GenericAdapter) Framework() policy.Framework { return policy.FrameworkGeneric }

func (GenericAdapter) ToEvent(raw map[string]any) *policy.Event {
	phase := policy.Phase(firstString(raw, "phase"))
	if phase == "" {
		phase = policy.PhasePreRequest
	}

	event := policy.NewEvent(phase, policy.FrameworkGeneric)
	if sid := firstString(raw, "sessionId"); sid != "" {
		event.SessionID = sid
	}
	event.AgentID = firstString(raw, "agentId")
	event.UserID = firstString(raw, "userId")
	event.RequestText = firstString(raw, "requestText")
	event.ResponseText = firstString(raw, "responseText")

	if tc := asMap(raw["toolCall"]); len(tc) > 0 {
		event.ToolCall = &policy.ToolCall{
			Name:      asString(tc["name"]),
			Arguments: asMap(tc["arguments"]),
			Raw:       tc["raw"],
		}
	}
	if tr := asMap(raw["toolResult"]); len(tr) > 0 {
		isError, _ := tr["isError"].(bool)
		event.ToolResult = &policy.ToolResult{Text: asString(tr["text"]), IsError: isError, Raw: tr["raw"]}
	}
	if a := asMap(raw["artifact"]); len(a) > 0 {
		signatureVerified, _ := a["signatureVerified"].(bool)
		versionPinned, _ := a["versionPinned"].(bool)
		event.Artifact = &policy.Artifact{
			Kind:              policy.ArtifactKind(asString(a["kind"])),
			Content:           asString(a["content"]),
			SourceURI:         asString(a["sourceUri"]),
			Hash:              asString(a["hash"]),
			SignatureVerified: signatureVerified,
			Signer:            asString(a["signer"]),
			SBOMURI:           asString(a["sbomUri"]),
			VersionPinned:     versionPinned,
		}
	}
	if md := asMap(raw["metadata"]); len(md) > 0 {
		event.Metadata = md
	}

	return event
}

func (GenericAdapter) ToResponse(result *policy.PipelineResult, raw map[string]any) map[string]any {
	resp := map[string]any{
		"finalAction": string(result.FinalAction),
		"reason":      result.FinalReason,
	}
	if result.FinalAction == policy.ActionChallenge {
		if c := lastChallenge(result); c != nil {
			resp["challenge"] = map[string]any{
				"channel": string(c.Channel), "prompt": c.Prompt, "timeoutSeconds": c.TimeoutSeconds,
			}
		}
	}
	if result.Transforms.ToolArguments != nil {
		resp["toolArguments"] = result.Transforms.ToolArguments
	}
	if result.Transforms.ResponseText != nil {
		resp["responseText"] = *result.Transforms.ResponseText
	}
	if result.Transforms.RequestText != nil {
		resp["requestText"] = *result.Transforms.RequestText
	}
	if len(result.Alerts) > 0 {
		resp["alerts"] = result.Alerts
	}
	return resp
}
