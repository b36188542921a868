// Package policy defines the canonical event and decision model shared by
// every module in the pipeline, and the pipeline executor itself.
package policy

import "time"

// Phase is the lifecycle point at which an event is evaluated.
type Phase string

const (
	PhasePreLoad     Phase = "pre_load"
	PhasePreRequest  Phase = "pre_request"
	PhasePreTool     Phase = "pre_tool"
	PhasePostTool    Phase = "post_tool"
	PhasePreResponse Phase = "pre_response"
)

// Framework tags the orchestrator dialect an event originated from.
type Framework string

const (
	FrameworkOpenClaw       Framework = "openclaw"
	FrameworkNanobot        Framework = "nanobot"
	FrameworkClaudeTelegram Framework = "claude-telegram"
	FrameworkGeneric        Framework = "generic"
)

// ArtifactKind enumerates the kinds of pre_load artifacts.
type ArtifactKind string

const (
	ArtifactSkill        ArtifactKind = "skill"
	ArtifactPrompt       ArtifactKind = "prompt"
	ArtifactToolMetadata ArtifactKind = "tool_metadata"
	ArtifactConfig       ArtifactKind = "config"
)

// ToolCall carries a tool name, its semi-structured argument mapping, and
// the raw (framework-native) payload it was parsed from.
type ToolCall struct {
	Name      string
	Arguments map[string]any
	Raw       any
}

// ToolResult carries the observed output of a completed tool call.
type ToolResult struct {
	Text    string
	IsError bool
	Raw     any
}

// Artifact carries pre_load provenance metadata for a skill, prompt,
// tool-metadata bundle, or config document about to be installed.
type Artifact struct {
	Kind               ArtifactKind
	Content            string
	SourceURI          string
	Hash               string
	SignatureVerified  bool
	Signer             string
	SBOMURI            string
	VersionPinned      bool
}

// Event is the immutable canonical projection of an orchestrator payload
// that every module evaluates against. Adapters are the only producers.
type Event struct {
	Phase     Phase
	Framework Framework

	SessionID string
	AgentID   string
	UserID    string

	RequestText string

	ToolCall   *ToolCall
	ToolResult *ToolResult

	ResponseText string

	Artifact *Artifact

	Metadata map[string]any

	// Deadline, if non-zero, bounds how long suspending modules (connectors,
	// probes, remote sinks) may block before the pipeline must fail closed.
	Deadline time.Time
}

// NewEvent returns an Event with SessionID defaulted to "unknown" and
// Metadata initialized, matching the adapter safe-default contract.
func NewEvent(phase Phase, framework Framework) *Event {
	return &Event{
		Phase:     phase,
		Framework: framework,
		SessionID: "unknown",
		Metadata:  map[string]any{},
	}
}

// Action is a module's verdict.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionDeny      Action = "deny"
	ActionModify    Action = "modify"
	ActionChallenge Action = "challenge"
	ActionAlert     Action = "alert"
)

// Severity grades how serious a non-allow decision is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Channel is an approval-challenge delivery channel.
type Channel string

const (
	ChannelOrchestrator Channel = "orchestrator"
	ChannelTelegram     Channel = "telegram"
	ChannelDiscord      Channel = "discord"
	ChannelHTTP         Channel = "http"
)

// Patch is the set of transforms a modify decision may apply.
type Patch struct {
	RequestText    *string
	ToolArguments  map[string]any
	ToolResultText *string
	ResponseText   *string
}

// Challenge describes a request for human approval.
type Challenge struct {
	Channel        Channel
	Prompt         string
	TimeoutSeconds int
}

// Decision is a single module's verdict on an event.
type Decision struct {
	Action    Action
	Module    string
	Reason    string
	Severity  Severity
	Patch     *Patch
	Challenge *Challenge
}

// Transforms accumulates the composed patches of every modify decision in
// the chain: scalar slots are last-writer-wins, tool arguments deep-merge.
type Transforms struct {
	RequestText    *string
	ToolArguments  map[string]any
	ToolResultText *string
	ResponseText   *string
}

// PipelineResult is the outcome of running a module pipeline over one event.
type PipelineResult struct {
	FinalAction Action
	FinalReason string
	Transforms  Transforms
	Alerts      []string
	Chain       []Decision
}
