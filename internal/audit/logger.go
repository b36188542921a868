package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/radiuskernel/radius/internal/observability"
	"github.com/radiuskernel/radius/internal/policy"
)

// Logger is the append-only decision recorder: entries flow through a
// buffered channel into a single writer goroutine, and remote sinks are
// dispatched without awaiting completion so audit is never on the
// pipeline's critical path.
type Logger struct {
	cfg Config

	file   *os.File
	fileMu sync.Mutex

	fallback   []Entry
	fallbackMu sync.Mutex

	httpClient *http.Client

	ch   chan Entry
	done chan struct{}
	wg   sync.WaitGroup
}

// NewLogger constructs a Logger per cfg. A disabled config returns a
// no-op logger whose methods are safe to call but do nothing.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{cfg: cfg}, nil
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WebhookTimeout == 0 {
		cfg.WebhookTimeout = 5 * time.Second
	}

	l := &Logger{
		cfg:        cfg,
		httpClient: &http.Client{},
		ch:         make(chan Entry, cfg.BufferSize),
		done:       make(chan struct{}),
	}

	if l.hasSink("file") {
		path := cfg.File
		if path == "" {
			path = "./radius-audit.jsonl"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("audit: open file sink: %w", err)
		}
		l.file = f
	}

	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

func (l *Logger) hasSink(name string) bool {
	for _, s := range l.cfg.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Close drains the buffer and releases the file handle.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// RecordEvent logs the raw event prior to any decision being known
// (invoked by the audit module, which always allows).
func (l *Logger) RecordEvent(ctx context.Context, event *policy.Event) {
	l.record(ctx, event, nil)
}

// RecordResult logs the completed pipeline result's decision chain for
// event, emitted strictly after the event terminates.
func (l *Logger) RecordResult(ctx context.Context, event *policy.Event, result *policy.PipelineResult) {
	l.record(ctx, event, result)
}

func (l *Logger) record(ctx context.Context, event *policy.Event, result *policy.PipelineResult) {
	if !l.cfg.Enabled {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Phase:     event.Phase,
		Framework: event.Framework,
		SessionID: event.SessionID,
		UserID:    event.UserID,
		AgentName: event.AgentID,
		TraceID:   observability.GetTraceID(ctx),
		SpanID:    observability.GetSpanID(ctx),
	}

	if event.ToolCall != nil {
		entry.ToolName = event.ToolCall.Name
		if l.cfg.IncludeArguments {
			entry.ToolArguments = event.ToolCall.Arguments
		}
	}
	if event.ToolResult != nil && l.cfg.IncludeResults {
		entry.ToolResult = &ToolResultSummary{IsError: event.ToolResult.IsError, TextLength: len(event.ToolResult.Text)}
	}
	if event.Artifact != nil {
		entry.Artifact = &ArtifactEntry{
			Kind: event.Artifact.Kind, SourceURI: event.Artifact.SourceURI, Hash: event.Artifact.Hash,
			SignatureVerified: event.Artifact.SignatureVerified, Signer: event.Artifact.Signer,
			SBOMURI: event.Artifact.SBOMURI, VersionPinned: event.Artifact.VersionPinned,
		}
	}
	if result != nil {
		for _, d := range result.Chain {
			entry.Decisions = append(entry.Decisions, DecisionEntry{Action: d.Action, Module: d.Module, Reason: d.Reason, Severity: d.Severity})
		}
	}

	select {
	case l.ch <- entry:
	default:
		l.writeEntry(entry)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.ch:
			l.writeEntry(entry)
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case entry := <-l.ch:
			l.writeEntry(entry)
		default:
			return
		}
	}
}

func (l *Logger) writeEntry(entry Entry) {
	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal error: %s\n", err)
		return
	}

	if l.file != nil {
		l.flushFallback()
		if err := l.appendLine(line); err != nil {
			fmt.Fprintf(os.Stderr, "audit: file sink write failed: %s\n", err)
			l.fallbackMu.Lock()
			l.fallback = append(l.fallback, entry)
			l.fallbackMu.Unlock()
		}
	}

	if l.hasSink("stdout") {
		fmt.Fprintln(os.Stdout, string(line))
	}

	if l.hasSink("webhook") && l.cfg.Webhook != "" {
		go l.postWebhook(line)
	}

	if l.cfg.OTLP {
		go l.postOTLP(line)
	}
}

func (l *Logger) appendLine(line []byte) error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	_, err := l.file.Write(append(line, '\n'))
	return err
}

func (l *Logger) flushFallback() {
	l.fallbackMu.Lock()
	pending := l.fallback
	l.fallback = nil
	l.fallbackMu.Unlock()

	for _, e := range pending {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := l.appendLine(line); err != nil {
			l.fallbackMu.Lock()
			l.fallback = append(l.fallback, e)
			l.fallbackMu.Unlock()
			return
		}
	}
}

func (l *Logger) postWebhook(line []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WebhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.Webhook, bytes.NewReader(line))
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: webhook request build failed: %s\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.httpClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: webhook sink failed: %s\n", err)
		return
	}
	resp.Body.Close()
}

// postOTLP wraps the line's JSON string inside the OTLP-JSON
// resourceLogs/scopeLogs/logRecords envelope before posting.
func (l *Logger) postOTLP(line []byte) {
	if l.cfg.Webhook == "" {
		return
	}
	wrapped := map[string]any{
		"resourceLogs": []any{
			map[string]any{
				"resource": map[string]any{
					"attributes": []any{
						map[string]any{"key": "service.name", "value": map[string]any{"stringValue": "radius"}},
					},
				},
				"scopeLogs": []any{
					map[string]any{
						"logRecords": []any{
							map[string]any{"body": map[string]any{"stringValue": string(line)}},
						},
					},
				},
			},
		},
	}
	payload, err := json.Marshal(wrapped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: otlp marshal failed: %s\n", err)
		return
	}
	l.postWebhook(payload)
}
