package modules

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/radiuskernel/radius/internal/policy"
)

var egressURLKeys = []string{"url", "uri", "endpoint", "api_url", "base_url", "webhook_url", "webhook"}
var egressHostKeys = []string{"host", "hostname", "domain", "address"}
var networkBinaries = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true, "ssh": true,
	"scp": true, "rsync": true, "ftp": true, "telnet": true,
}

var endpointFromCommandRe = regexp.MustCompile(`(?i)\b(?:https?://[^\s'"]+|(?:[\w.-]+@)?[\w.-]+\.[a-z]{2,}(?::\d+)?(?:/[^\s'"]*)?)\b`)

type endpoint struct {
	host   string
	domain string
	ip     net.IP
	port   int
}

// EgressGuard extracts network endpoints named by a tool call and checks
// them against blocklists, tool-scoped "intersect" bindings, and
// allowlists. Hosts are classified as IP or domain at extraction time so
// each list is only ever compared against its own kind.
type EgressGuardConfig struct {
	BlockedDomains []string                 `yaml:"blockedDomains"`
	BlockedIPs     []string                 `yaml:"blockedIps"`
	BlockedPorts   []int                    `yaml:"blockedPorts"`
	AllowedDomains []string                 `yaml:"allowedDomains"`
	AllowedIPs     []string                 `yaml:"allowedIps"`
	AllowedPorts   []int                    `yaml:"allowedPorts"`
	ToolBindings   map[string]EgressBinding `yaml:"toolBindings"` // intersect bindings, derived from tool_policy rules or configured directly
	Mode           policy.Mode              `yaml:"mode"`
}

type EgressGuardModule struct {
	cfg EgressGuardConfig
}

func NewEgressGuardModule(cfg EgressGuardConfig) *EgressGuardModule {
	return &EgressGuardModule{cfg: cfg}
}

func (m *EgressGuardModule) Name() string { return "egress_guard" }

func (m *EgressGuardModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *EgressGuardModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *EgressGuardModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}
	name := event.ToolCall.Name
	args := event.ToolCall.Arguments

	endpoints, extracted := extractEndpoints(name, args)
	binding, hasBinding := m.cfg.ToolBindings[name]

	if !extracted && hasBinding && binding.Mode == "intersect" {
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh,
			Reason: "endpoint could not be determined",
		}, nil
	}

	for _, ep := range endpoints {
		if blocked, reason := m.checkBlocked(ep, m.cfg.BlockedDomains, m.cfg.BlockedIPs, m.cfg.BlockedPorts); blocked {
			return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason}, nil
		}

		if hasBinding && binding.Mode == "intersect" {
			if blocked, reason := m.checkBlocked(ep, binding.BlockedDomains, binding.BlockedIPs, binding.BlockedPorts); blocked {
				return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason}, nil
			}
		}

		if allowed, reason := m.checkAllowlist(ep); !allowed {
			return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityHigh, Reason: reason}, nil
		}
	}

	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}

func (m *EgressGuardModule) checkBlocked(ep endpoint, domains, ips []string, ports []int) (bool, string) {
	for _, d := range domains {
		if domainMatches(d, ep.host) || domainMatches(d, ep.domain) {
			return true, fmt.Sprintf("endpoint host %q matches blocked domain %q", ep.host, d)
		}
	}
	if ep.ip != nil {
		for _, raw := range ips {
			if ip := net.ParseIP(raw); ip != nil && ip.Equal(ep.ip) {
				return true, fmt.Sprintf("endpoint IP %q is blocked", ep.ip.String())
			}
		}
	}
	if ep.port != 0 {
		for _, p := range ports {
			if p == ep.port {
				return true, fmt.Sprintf("endpoint port %d is blocked", ep.port)
			}
		}
	}
	return false, ""
}

func (m *EgressGuardModule) checkAllowlist(ep endpoint) (bool, string) {
	if len(m.cfg.AllowedDomains) > 0 || len(m.cfg.AllowedIPs) > 0 {
		ok := false
		for _, d := range m.cfg.AllowedDomains {
			if domainMatches(d, ep.host) {
				ok = true
				break
			}
		}
		if !ok && ep.ip != nil {
			for _, raw := range m.cfg.AllowedIPs {
				if ip := net.ParseIP(raw); ip != nil && ip.Equal(ep.ip) {
					ok = true
					break
				}
			}
		}
		if !ok {
			return false, fmt.Sprintf("endpoint host %q is not in allowedDomains/allowedIPs", ep.host)
		}
	}
	if len(m.cfg.AllowedPorts) > 0 {
		ok := false
		for _, p := range m.cfg.AllowedPorts {
			if ep.port == p {
				ok = true
				break
			}
		}
		if !ok {
			return false, fmt.Sprintf("endpoint port %d is not in allowedPorts", ep.port)
		}
	}
	return true, ""
}

// domainMatches supports exact match, subdomain-suffix match, and wildcard
// "*.base" (subdomains only, never the base itself).
func domainMatches(pattern, host string) bool {
	if host == "" {
		return false
	}
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)

	if strings.HasPrefix(pattern, "*.") {
		base := pattern[2:]
		return strings.HasSuffix(host, "."+base)
	}
	if host == pattern {
		return true
	}
	return strings.HasSuffix(host, "."+pattern)
}

func extractEndpoints(tool string, args map[string]any) ([]endpoint, bool) {
	var out []endpoint
	found := false

	for _, k := range egressURLKeys {
		if v, ok := args[k].(string); ok && v != "" {
			if ep, ok := endpointFromURL(v); ok {
				out = append(out, ep)
				found = true
			}
		}
	}

	hostVal, hostOK := extractPath(args, egressHostKeys)
	if hostOK {
		ep := endpoint{host: hostVal, domain: hostVal}
		if ip := net.ParseIP(hostVal); ip != nil {
			ep.ip = ip
		}
		if p, ok := args["port"]; ok {
			ep.port = toInt(p)
		}
		out = append(out, ep)
		found = true
	}

	if tool == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			first := firstWord(cmd)
			if networkBinaries[first] {
				for _, m := range endpointFromCommandRe.FindAllString(cmd, -1) {
					if ep, ok := endpointFromToken(m); ok {
						out = append(out, ep)
						found = true
					}
				}
			}
		}
	}

	return out, found
}

func endpointFromURL(raw string) (endpoint, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return endpoint{}, false
	}
	ep := endpoint{host: u.Hostname(), domain: u.Hostname()}
	if ip := net.ParseIP(u.Hostname()); ip != nil {
		ep.ip = ip
	}
	if p := u.Port(); p != "" {
		ep.port, _ = strconv.Atoi(p)
	} else {
		switch u.Scheme {
		case "https":
			ep.port = 443
		case "http":
			ep.port = 80
		}
	}
	return ep, true
}

func endpointFromToken(token string) (endpoint, bool) {
	if strings.Contains(token, "://") {
		return endpointFromURL(token)
	}
	t := token
	if idx := strings.Index(t, "@"); idx >= 0 {
		t = t[idx+1:]
	}
	host := t
	port := 0
	if idx := strings.LastIndex(t, ":"); idx >= 0 {
		host = t[:idx]
		if p, err := strconv.Atoi(t[idx+1:]); err == nil {
			port = p
		}
	}
	host = strings.TrimSuffix(strings.SplitN(host, "/", 2)[0], ".")
	if host == "" {
		return endpoint{}, false
	}
	ep := endpoint{host: host, domain: host, port: port}
	if ip := net.ParseIP(host); ip != nil {
		ep.ip = ip
	}
	return ep, true
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s
	}
	return s[:idx]
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
