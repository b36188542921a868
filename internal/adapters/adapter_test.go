package adapters

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radiuskernel/radius/internal/policy"
)

func allowResult() *policy.PipelineResult {
	return &policy.PipelineResult{FinalAction: policy.ActionAllow, FinalReason: "allow after module evaluation"}
}

func TestFor_ReturnsFrameworkSpecificAdapter(t *testing.T) {
	require.Equal(t, policy.FrameworkOpenClaw, For(policy.FrameworkOpenClaw).Framework())
	require.Equal(t, policy.FrameworkNanobot, For(policy.FrameworkNanobot).Framework())
	require.Equal(t, policy.FrameworkClaudeTelegram, For(policy.FrameworkClaudeTelegram).Framework())
	require.Equal(t, policy.FrameworkGeneric, For(policy.Framework("something-else")).Framework())
}

// Malformed (empty) input must still produce a safe-default event, and an
// allow result must round-trip into the adapter's allow envelope.
func TestAdapters_EmptyInputRoundTrip(t *testing.T) {
	t.Run("openclaw", func(t *testing.T) {
		a := OpenClawAdapter{}
		event := a.ToEvent(map[string]any{})
		require.Equal(t, "unknown", event.SessionID)
		require.NotNil(t, event.Metadata)

		resp := a.ToResponse(allowResult(), map[string]any{})
		require.Equal(t, "allow", resp["decision"])
	})

	t.Run("nanobot", func(t *testing.T) {
		a := NanobotAdapter{}
		event := a.ToEvent(map[string]any{})
		require.Equal(t, "unknown", event.SessionID)

		resp := a.ToResponse(allowResult(), map[string]any{})
		require.Equal(t, true, resp["accept"])
	})

	t.Run("claude-telegram", func(t *testing.T) {
		a := ClaudeTelegramAdapter{}
		event := a.ToEvent(map[string]any{})
		require.Equal(t, "unknown", event.SessionID)

		resp := a.ToResponse(allowResult(), map[string]any{})
		require.Equal(t, true, resp["allow"])
	})

	t.Run("generic", func(t *testing.T) {
		a := GenericAdapter{}
		event := a.ToEvent(map[string]any{})
		require.Equal(t, "unknown", event.SessionID)

		resp := a.ToResponse(allowResult(), map[string]any{})
		require.Equal(t, "allow", resp["finalAction"])
	})
}

func TestOpenClawAdapter_PreToolEvent(t *testing.T) {
	a := OpenClawAdapter{}
	event := a.ToEvent(map[string]any{
		"hook_type":  "PreToolUse",
		"session_id": "s-1",
		"agent_name": "builder",
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": "ls"},
		"channel":    "discord",
		"mode":       "strict",
		"task_type":  "deploy",
		"tags":       []any{"prod", "urgent"},
	})

	require.Equal(t, policy.PhasePreTool, event.Phase)
	require.Equal(t, "s-1", event.SessionID)
	require.Equal(t, "builder", event.AgentID)
	require.NotNil(t, event.ToolCall)
	require.Equal(t, "Bash", event.ToolCall.Name)
	require.Equal(t, "ls", event.ToolCall.Arguments["command"])
	require.Equal(t, "discord", event.Metadata[MetaChannel])
	require.Equal(t, "strict", event.Metadata[MetaModeHint])
	require.Equal(t, "deploy", event.Metadata[MetaTaskType])
	require.Equal(t, []string{"prod", "urgent"}, event.Metadata[MetaRouteTags])
}

func TestOpenClawAdapter_PostToolEvent(t *testing.T) {
	a := OpenClawAdapter{}
	event := a.ToEvent(map[string]any{
		"hook_event_name": "PostToolUse",
		"tool_name":       "Bash",
		"tool_output":     "done",
		"is_error":        true,
	})

	require.Equal(t, policy.PhasePostTool, event.Phase)
	require.NotNil(t, event.ToolResult)
	require.Equal(t, "done", event.ToolResult.Text)
	require.True(t, event.ToolResult.IsError)
}

func TestOpenClawAdapter_DenyAndChallengeResponses(t *testing.T) {
	a := OpenClawAdapter{}

	deny := &policy.PipelineResult{FinalAction: policy.ActionDeny, FinalReason: "blocked"}
	resp := a.ToResponse(deny, nil)
	require.Equal(t, "deny", resp["decision"])
	require.Equal(t, "blocked", resp["reason"])

	challenge := &policy.PipelineResult{
		FinalAction: policy.ActionChallenge,
		FinalReason: "approval required",
		Chain: []policy.Decision{{
			Action: policy.ActionChallenge, Module: "approval_gate",
			Challenge: &policy.Challenge{Channel: policy.ChannelDiscord, Prompt: "ok?", TimeoutSeconds: 60},
		}},
	}
	resp = a.ToResponse(challenge, nil)
	require.Equal(t, "challenge", resp["decision"])
	payload, ok := resp["challenge"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "discord", payload["channel"])
	require.Equal(t, "ok?", payload["prompt"])
}

func TestOpenClawAdapter_AllowCarriesTransformedArguments(t *testing.T) {
	a := OpenClawAdapter{}
	result := allowResult()
	result.Transforms.ToolArguments = map[string]any{"command": "bwrap ..."}

	resp := a.ToResponse(result, nil)
	require.Equal(t, "allow", resp["decision"])
	require.Equal(t, map[string]any{"command": "bwrap ..."}, resp["updatedInput"])
}

func TestNanobotAdapter_RequestAndResponseDirections(t *testing.T) {
	a := NanobotAdapter{}

	req := a.ToEvent(map[string]any{
		"direction": "request",
		"method":    "tools/call",
		"params": map[string]any{
			"name":      "Fetch",
			"arguments": map[string]any{"url": "https://example.com"},
			"agent":     "researcher",
		},
		"session_id": "s-2",
	})
	require.Equal(t, policy.PhasePreTool, req.Phase)
	require.Equal(t, "s-2", req.SessionID)
	require.Equal(t, "researcher", req.AgentID)
	require.Equal(t, "Fetch", req.ToolCall.Name)

	resp := a.ToEvent(map[string]any{
		"direction": "response",
		"params":    map[string]any{"name": "Fetch"},
		"result": map[string]any{
			"content": []any{map[string]any{"text": "hello "}, map[string]any{"text": "world"}},
			"isError": false,
		},
	})
	require.Equal(t, policy.PhasePostTool, resp.Phase)
	require.Equal(t, "hello world", resp.ToolResult.Text)
}

func TestNanobotAdapter_DenyResponse(t *testing.T) {
	a := NanobotAdapter{}
	resp := a.ToResponse(&policy.PipelineResult{FinalAction: policy.ActionDeny, FinalReason: "nope"}, nil)
	require.Equal(t, false, resp["accept"])
	require.Equal(t, "nope", resp["reason"])
}

func TestClaudeTelegramAdapter_BeforeAndAfterHooks(t *testing.T) {
	a := ClaudeTelegramAdapter{}

	before := a.ToEvent(map[string]any{
		"hook":    "beforeClaude",
		"message": "please deploy",
		"ctx": map[string]any{
			"chatId": "42", "userId": "7", "agentName": "ops",
			"profile": "balanced", "labels": []any{"infra"},
		},
	})
	require.Equal(t, policy.PhasePreRequest, before.Phase)
	require.Equal(t, "42", before.SessionID)
	require.Equal(t, "7", before.UserID)
	require.Equal(t, "please deploy", before.RequestText)
	require.Equal(t, "balanced", before.Metadata[MetaModeHint])
	require.Equal(t, "telegram", before.Metadata[MetaChannel])

	after := a.ToEvent(map[string]any{
		"hook":   "afterClaude",
		"result": "deployed",
		"ctx":    map[string]any{"chatId": "42"},
	})
	require.Equal(t, policy.PhasePreResponse, after.Phase)
	require.Equal(t, "deployed", after.ResponseText)
}

func TestGenericAdapter_CanonicalEventPassthrough(t *testing.T) {
	a := GenericAdapter{}
	event := a.ToEvent(map[string]any{
		"phase":     "pre_load",
		"sessionId": "s-3",
		"artifact": map[string]any{
			"kind":              "skill",
			"content":           "# skill",
			"sourceUri":         "https://example.com/skill@latest",
			"signatureVerified": true,
			"signer":            "acme",
		},
	})
	require.Equal(t, policy.PhasePreLoad, event.Phase)
	require.NotNil(t, event.Artifact)
	require.Equal(t, policy.ArtifactSkill, event.Artifact.Kind)
	require.True(t, event.Artifact.SignatureVerified)
	require.Equal(t, "acme", event.Artifact.Signer)
}

func TestGenericAdapter_ResponseCarriesAlertsAndTransforms(t *testing.T) {
	a := GenericAdapter{}
	text := "redacted"
	result := &policy.PipelineResult{
		FinalAction: policy.ActionAllow,
		Alerts:      []string{"[output_dlp] secret found"},
	}
	result.Transforms.ResponseText = &text

	resp := a.ToResponse(result, nil)
	require.Equal(t, "redacted", resp["responseText"])
	require.Equal(t, []string{"[output_dlp] secret found"}, resp["alerts"])
}
