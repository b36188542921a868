// Package audit implements the append-only decision recorder.
package audit

import (
	"time"

	"github.com/radiuskernel/radius/internal/policy"
)

// Config configures the audit recorder.
type Config struct {
	Enabled          bool
	Sinks            []string // "file" | "stdout" | "webhook" | subset combined with OTLP
	File             string
	Webhook          string
	IncludeArguments bool
	IncludeResults   bool
	OTLP             bool
	BufferSize       int
	WebhookTimeout   time.Duration
}

// DecisionEntry is one {action, module, reason, severity} record in an
// entry's decision chain.
type DecisionEntry struct {
	Action   policy.Action   `json:"action"`
	Module   string          `json:"module"`
	Reason   string          `json:"reason"`
	Severity policy.Severity `json:"severity,omitempty"`
}

// ArtifactEntry carries the provenance fields worth recording for a
// pre_load event.
type ArtifactEntry struct {
	Kind              policy.ArtifactKind `json:"kind"`
	SourceURI         string              `json:"sourceUri,omitempty"`
	Hash              string              `json:"hash,omitempty"`
	SignatureVerified bool                `json:"signatureVerified"`
	Signer            string              `json:"signer,omitempty"`
	SBOMURI           string              `json:"sbomUri,omitempty"`
	VersionPinned     bool                `json:"versionPinned"`
}

// ToolResultSummary is the post_tool result summary.
type ToolResultSummary struct {
	IsError    bool `json:"isError"`
	TextLength int  `json:"textLength"`
}

// Entry is one audit log line.
type Entry struct {
	Timestamp     string             `json:"timestamp"`
	Phase         policy.Phase       `json:"phase"`
	Framework     policy.Framework   `json:"framework"`
	SessionID     string             `json:"sessionId"`
	UserID        string             `json:"userId,omitempty"`
	AgentName     string             `json:"agentName,omitempty"`
	ToolName      string             `json:"toolName,omitempty"`
	ToolArguments map[string]any     `json:"toolArguments,omitempty"`
	ToolResult    *ToolResultSummary `json:"toolResult,omitempty"`
	Artifact      *ArtifactEntry     `json:"artifact,omitempty"`
	Decisions     []DecisionEntry    `json:"decisions,omitempty"`
	TraceID       string             `json:"traceId,omitempty"`
	SpanID        string             `json:"spanId,omitempty"`
}
