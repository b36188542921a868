package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/policy"
)

// HTTPConnector resolves challenges against an external approval bridge:
// POST the challenge, then either receive a terminal verdict or a "pending"
// response carrying a pollUrl to GET until one arrives.
type HTTPConnector struct {
	cfg    config.HTTPConnectorConfig
	client *http.Client
}

func NewHTTPConnector(cfg config.HTTPConnectorConfig) *HTTPConnector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPConnector{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type httpRequestBody struct {
	ApprovalID string         `json:"approvalId"`
	Prompt     string         `json:"prompt"`
	TimeoutSec int            `json:"timeoutSec"`
	Event      map[string]any `json:"event"`
}

type httpResponseBody struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	TTLSec       int    `json:"ttlSec"`
	PollURL      string `json:"pollUrl"`
	RetryAfterMs int    `json:"retryAfterMs"`
}

func (c *HTTPConnector) Resolve(ctx context.Context, approvalID, prompt string, deadline time.Time, event *policy.Event) Outcome {
	effTimeout := c.cfg.Timeout
	remaining := time.Until(deadline)
	if effTimeout <= 0 || remaining < effTimeout {
		effTimeout = remaining
	}
	if effTimeout <= 0 {
		return Outcome{Status: StatusTimeout, Reason: "http: no time remaining before deadline"}
	}

	body := httpRequestBody{
		ApprovalID: approvalID,
		Prompt:     prompt,
		TimeoutSec: int(effTimeout.Seconds()),
	}
	if event != nil {
		body.Event = eventMetadataPayload(event)
	}

	resp, err := c.send(ctx, c.cfg.URL, body)
	if err != nil {
		return c.classifyError(err)
	}
	return c.follow(ctx, resp, deadline)
}

// follow resolves a response, polling pollUrl while status is "pending".
func (c *HTTPConnector) follow(ctx context.Context, resp httpResponseBody, deadline time.Time) Outcome {
	for {
		switch normalizeStatus(resp.Status) {
		case StatusApproved:
			return Outcome{Status: StatusApproved, Reason: resp.Reason}
		case StatusApprovedTemporary:
			return Outcome{Status: StatusApprovedTemporary, Reason: resp.Reason, TTLSec: resp.TTLSec}
		case StatusDenied:
			reason := resp.Reason
			if reason == "" {
				reason = "denied via http bridge"
			}
			return Outcome{Status: StatusDenied, Reason: reason}
		case StatusTimeout:
			return Outcome{Status: StatusTimeout, Reason: "http: bridge reported timeout"}
		case "pending":
			if resp.PollURL == "" {
				return Outcome{Status: StatusError, Reason: "http: pending response without pollUrl"}
			}
			wait := time.Duration(resp.RetryAfterMs) * time.Millisecond
			if wait <= 0 {
				wait = time.Second
			}
			if time.Now().Add(wait).After(deadline) {
				return Outcome{Status: StatusTimeout, Reason: "http: approval deadline exceeded while polling"}
			}
			select {
			case <-ctx.Done():
				return Outcome{Status: StatusTimeout, Reason: "http: approval deadline exceeded while polling"}
			case <-time.After(wait):
			}
			next, err := c.poll(ctx, resp.PollURL)
			if err != nil {
				return c.classifyError(err)
			}
			resp = next
		default:
			return Outcome{Status: StatusError, Reason: fmt.Sprintf("http: unrecognized status %q", resp.Status)}
		}
	}
}

func (c *HTTPConnector) send(ctx context.Context, url string, body httpRequestBody) (httpResponseBody, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return httpResponseBody{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return httpResponseBody{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return httpResponseBody{}, err
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *HTTPConnector) poll(ctx context.Context, url string) (httpResponseBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return httpResponseBody{}, err
	}
	if err := c.authorize(req); err != nil {
		return httpResponseBody{}, err
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *HTTPConnector) do(req *http.Request) (httpResponseBody, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return httpResponseBody{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResponseBody{}, err
	}
	if resp.StatusCode >= 400 {
		return httpResponseBody{}, fmt.Errorf("http: bridge returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out httpResponseBody
	if err := json.Unmarshal(data, &out); err != nil {
		return httpResponseBody{}, fmt.Errorf("http: decode response: %w", err)
	}
	return out, nil
}

func (c *HTTPConnector) authorize(req *http.Request) error {
	if c.cfg.JWTSecret == "" {
		return nil
	}
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	if c.cfg.JWTIssuer != "" {
		claims["iss"] = c.cfg.JWTIssuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("http: sign bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

func (c *HTTPConnector) classifyError(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusError, Reason: "http: unknown error"}
	}
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "AbortError") || strings.Contains(msg, "context canceled") {
		return Outcome{Status: StatusTimeout, Reason: "http: request aborted before deadline"}
	}
	return Outcome{Status: StatusError, Reason: fmt.Sprintf("http: %s", msg)}
}

// normalizeStatus canonicalizes the many spellings an external bridge might
// use for the same verdict.
func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "allow", "allowed", "approve":
		return StatusApproved
	case "approved_temporary", "approved-temporary", "temp", "temporary":
		return StatusApprovedTemporary
	case "denied", "deny", "block", "blocked":
		return StatusDenied
	case "timeout", "timed_out", "timed-out":
		return StatusTimeout
	case "pending", "wait", "waiting":
		return "pending"
	case "error", "failed", "failure":
		return StatusError
	default:
		return Status(raw)
	}
}

// eventMetadataPayload projects an Event into the JSON body sent to the
// http bridge, mirroring what the chat prompt conveys in text form.
func eventMetadataPayload(event *policy.Event) map[string]any {
	m := map[string]any{
		"phase":     string(event.Phase),
		"framework": string(event.Framework),
		"sessionId": event.SessionID,
		"agentId":   event.AgentID,
	}
	if event.ToolCall != nil {
		m["tool"] = event.ToolCall.Name
		m["arguments"] = event.ToolCall.Arguments
	}
	return m
}
