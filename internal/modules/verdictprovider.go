package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radiuskernel/radius/internal/policy"
)

// VerdictProviderEndpoint is one external verdict-bridge HTTP endpoint.
type VerdictProviderEndpoint struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// VerdictProviderConfig configures VerdictProviderModule.
type VerdictProviderConfig struct {
	Providers       []VerdictProviderEndpoint `yaml:"providers"`
	MinConfidence   float64                   `yaml:"minConfidence"`
	OnProviderError string                    `yaml:"onProviderError"` // "alert" (default) | "deny"
	Mode            policy.Mode               `yaml:"mode"`

	httpClient *http.Client
}

// normalizedVerdict is the canonical shape every provider response form is
// folded into.
type normalizedVerdict struct {
	Action     string
	Confidence float64
	Category   string
	Provider   string
}

// VerdictProviderModule delegates a decision to one or more external HTTP
// verdict providers, each called with an independent abort timer so one
// slow provider cannot exhaust the whole evaluation budget.
type VerdictProviderModule struct {
	cfg VerdictProviderConfig
}

func NewVerdictProviderModule(cfg VerdictProviderConfig) *VerdictProviderModule {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.5
	}
	if cfg.OnProviderError == "" {
		cfg.OnProviderError = "alert"
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	return &VerdictProviderModule{cfg: cfg}
}

func (m *VerdictProviderModule) Name() string { return "verdict_provider" }

func (m *VerdictProviderModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePreRequest, policy.PhasePreTool, policy.PhasePreResponse}
}

func (m *VerdictProviderModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *VerdictProviderModule) payload(event *policy.Event) any {
	switch event.Phase {
	case policy.PhasePreTool:
		if event.ToolCall == nil {
			return map[string]any{}
		}
		return map[string]any{"tool": event.ToolCall.Name, "arguments": event.ToolCall.Arguments}
	case policy.PhasePreResponse:
		return map[string]any{"content": event.ResponseText}
	default:
		return map[string]any{"content": event.RequestText}
	}
}

func (m *VerdictProviderModule) Evaluate(ctx context.Context, event *policy.Event) (policy.Decision, error) {
	if len(m.cfg.Providers) == 0 {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	body := m.payload(event)
	var findings []string
	var errs []string

	for _, provider := range m.cfg.Providers {
		verdict, err := m.callProvider(ctx, provider, body)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", provider.Name, err))
			continue
		}
		if verdict.Action == "deny" && verdict.Confidence >= m.cfg.MinConfidence {
			return policy.Decision{
				Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
				Reason: fmt.Sprintf("verdict provider %q denied (confidence %.2f, category %q)", provider.Name, verdict.Confidence, verdict.Category),
			}, nil
		}
		if verdict.Action != "" {
			findings = append(findings, fmt.Sprintf("%s: %s (%.2f)", provider.Name, verdict.Action, verdict.Confidence))
		}
	}

	if len(errs) > 0 && m.cfg.OnProviderError == "deny" {
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
			Reason: fmt.Sprintf("verdict provider error: %v", errs),
		}, nil
	}

	if len(findings) > 0 || len(errs) > 0 {
		return policy.Decision{
			Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityMedium,
			Reason: fmt.Sprintf("verdict provider findings=%v errors=%v", findings, errs),
		}, nil
	}

	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}

func (m *VerdictProviderModule) callProvider(ctx context.Context, provider VerdictProviderEndpoint, body any) (normalizedVerdict, error) {
	timeout := provider.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return normalizedVerdict{}, err
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, provider.URL, bytes.NewReader(payload))
	if err != nil {
		return normalizedVerdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.cfg.httpClient.Do(req)
	if err != nil {
		return normalizedVerdict{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return normalizedVerdict{}, err
	}
	if resp.StatusCode >= 300 {
		return normalizedVerdict{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return normalizeVerdictResponse(raw, provider.Name)
}

func normalizeVerdictResponse(raw []byte, providerName string) (normalizedVerdict, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return normalizedVerdict{}, err
	}

	if nested, ok := generic["verdict"].(map[string]any); ok {
		generic = nested
	}

	v := normalizedVerdict{Provider: providerName}

	if action, ok := generic["action"].(string); ok {
		v.Action = action
	} else if blocked, ok := generic["blocked"].(bool); ok {
		if blocked {
			v.Action = "deny"
		} else {
			v.Action = "allow"
		}
	}
	if conf, ok := generic["confidence"].(float64); ok {
		v.Confidence = conf
	}
	if cat, ok := generic["category"].(string); ok {
		v.Category = cat
	}
	return v, nil
}
