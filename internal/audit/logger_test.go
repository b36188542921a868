package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiuskernel/radius/internal/policy"
)

func auditedEvent() *policy.Event {
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkOpenClaw)
	e.SessionID = "s-audit"
	e.UserID = "u-1"
	e.AgentID = "builder"
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "ls"}}
	return e
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestLogger_DisabledIsNoOp(t *testing.T) {
	l, err := NewLogger(Config{Enabled: false})
	require.NoError(t, err)
	l.RecordEvent(context.Background(), auditedEvent())
	require.NoError(t, l.Close())
}

func TestLogger_FileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(Config{
		Enabled: true, Sinks: []string{"file"}, File: path,
		IncludeArguments: true, IncludeResults: true,
	})
	require.NoError(t, err)

	event := auditedEvent()
	l.RecordEvent(context.Background(), event)

	result := &policy.PipelineResult{
		FinalAction: policy.ActionDeny,
		FinalReason: "blocked",
		Chain: []policy.Decision{{
			Action: policy.ActionDeny, Module: "fs_guard", Reason: "blocked", Severity: policy.SeverityCritical,
		}},
	}
	l.RecordResult(context.Background(), event, result)
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)

	first := entries[0]
	require.Equal(t, policy.PhasePreTool, first.Phase)
	require.Equal(t, policy.FrameworkOpenClaw, first.Framework)
	require.Equal(t, "s-audit", first.SessionID)
	require.Equal(t, "u-1", first.UserID)
	require.Equal(t, "builder", first.AgentName)
	require.Equal(t, "Bash", first.ToolName)
	require.Equal(t, "ls", first.ToolArguments["command"])
	require.Empty(t, first.Decisions)

	_, err = time.Parse("2006-01-02T15:04:05.000Z07:00", first.Timestamp)
	require.NoError(t, err, "timestamp must be ISO-8601 with millisecond precision")

	second := entries[1]
	require.Len(t, second.Decisions, 1)
	require.Equal(t, policy.ActionDeny, second.Decisions[0].Action)
	require.Equal(t, "fs_guard", second.Decisions[0].Module)
}

func TestLogger_ArgumentsOmittedUnlessIncluded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(Config{Enabled: true, Sinks: []string{"file"}, File: path})
	require.NoError(t, err)

	l.RecordEvent(context.Background(), auditedEvent())
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "Bash", entries[0].ToolName)
	require.Nil(t, entries[0].ToolArguments)
}

func TestLogger_ResultSummaryLengthOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(Config{Enabled: true, Sinks: []string{"file"}, File: path, IncludeResults: true})
	require.NoError(t, err)

	event := auditedEvent()
	event.Phase = policy.PhasePostTool
	event.ToolResult = &policy.ToolResult{Text: "twelve chars", IsError: true}
	l.RecordEvent(context.Background(), event)
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ToolResult)
	require.True(t, entries[0].ToolResult.IsError)
	require.Equal(t, len("twelve chars"), entries[0].ToolResult.TextLength)
}

func TestLogger_ArtifactProvenanceRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(Config{Enabled: true, Sinks: []string{"file"}, File: path})
	require.NoError(t, err)

	event := policy.NewEvent(policy.PhasePreLoad, policy.FrameworkGeneric)
	event.Artifact = &policy.Artifact{
		Kind: policy.ArtifactSkill, SourceURI: "https://example.com/s@v1.2.3",
		Hash: "abc", SignatureVerified: true, Signer: "acme", VersionPinned: true,
	}
	l.RecordEvent(context.Background(), event)
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Artifact)
	require.Equal(t, policy.ArtifactSkill, entries[0].Artifact.Kind)
	require.True(t, entries[0].Artifact.SignatureVerified)
	require.Equal(t, "acme", entries[0].Artifact.Signer)
}

func TestLogger_WebhookSinkPostsEntry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Entry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		require.Equal(t, "s-audit", e.SessionID)
		hits.Add(1)
	}))
	defer srv.Close()

	l, err := NewLogger(Config{Enabled: true, Sinks: []string{"webhook"}, Webhook: srv.URL})
	require.NoError(t, err)

	l.RecordEvent(context.Background(), auditedEvent())
	require.NoError(t, l.Close())

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestLogger_OTLPWrapsLineInResourceLogs(t *testing.T) {
	var payload atomic.Pointer[map[string]any]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		payload.Store(&m)
	}))
	defer srv.Close()

	l, err := NewLogger(Config{Enabled: true, Sinks: []string{"stdout"}, Webhook: srv.URL, OTLP: true})
	require.NoError(t, err)

	l.RecordEvent(context.Background(), auditedEvent())
	require.NoError(t, l.Close())

	require.Eventually(t, func() bool { return payload.Load() != nil }, 2*time.Second, 10*time.Millisecond)
	m := *payload.Load()

	resourceLogs, ok := m["resourceLogs"].([]any)
	require.True(t, ok)
	require.Len(t, resourceLogs, 1)
	scoped := resourceLogs[0].(map[string]any)
	scopeLogs := scoped["scopeLogs"].([]any)
	records := scopeLogs[0].(map[string]any)["logRecords"].([]any)
	body := records[0].(map[string]any)["body"].(map[string]any)

	var inner Entry
	require.NoError(t, json.Unmarshal([]byte(body["stringValue"].(string)), &inner))
	require.Equal(t, "s-audit", inner.SessionID)
}
