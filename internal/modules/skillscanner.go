package modules

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/radiuskernel/radius/internal/policy"
)

var (
	htmlCommentInjectionRe = regexp.MustCompile(`(?is)<!--.*?(ignore|system|instruction|override).*?-->`)
	zeroWidthCharRe        = regexp.MustCompile("[\u200b\u200c\u200d\uFEFF]")
	decodeExecRe           = regexp.MustCompile(`(?i)(base64\s*-d|atob\(|eval\(|exec\()`)
	rawIPv4URLRe           = regexp.MustCompile(`https?://\d{1,3}(?:\.\d{1,3}){3}`)
	punycodeURLRe          = regexp.MustCompile(`https?://(?:[\w-]+\.)*xn--`)
	instructionTakeoverRe  = regexp.MustCompile(`(?i)(ignore (all|previous) instructions|disregard (all|your) (prior|previous) (instructions|rules)|you are now)`)

	exfilSecretMarkerRe = regexp.MustCompile(`(?i)(\.env|\.ssh|\.aws|api_key|token|secret|password)`)
	exfilSinkMarkerRe   = regexp.MustCompile(`(?i)(curl|wget|fetch|http|webhook)`)
)

var defaultShortenerDomains = []string{"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly"}

// SkillScannerConfig configures SkillScannerModule.
type SkillScannerConfig struct {
	EnforceKinds     []policy.ArtifactKind `yaml:"enforceKinds"`
	RequireSignature bool                  `yaml:"requireSignature"`
	TrustedSigners   []string              `yaml:"trustedSigners"`
	RequireSBOM      bool                  `yaml:"requireSbom"`
	RequirePinned    bool                  `yaml:"requirePinnedSource"`
	FailurePolicy    string                `yaml:"failurePolicy"` // deny|challenge|alert
	Base64MinLength  int                   `yaml:"base64MinLength"`
	BlockedDomains   []string              `yaml:"blockedDomains"`
	ShortenerDomains []string              `yaml:"shortenerDomains"`
	Mode             policy.Mode           `yaml:"mode"`
}

// SkillScannerModule applies supply-chain provenance checks to pre_load
// artifacts and a content heuristic bank to pre_load/pre_request text.
type SkillScannerModule struct {
	cfg SkillScannerConfig
}

func NewSkillScannerModule(cfg SkillScannerConfig) *SkillScannerModule {
	if len(cfg.EnforceKinds) == 0 {
		cfg.EnforceKinds = []policy.ArtifactKind{policy.ArtifactSkill}
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = "deny"
	}
	if cfg.Base64MinLength == 0 {
		cfg.Base64MinLength = 200
	}
	if len(cfg.ShortenerDomains) == 0 {
		cfg.ShortenerDomains = defaultShortenerDomains
	}
	return &SkillScannerModule{cfg: cfg}
}

func (m *SkillScannerModule) Name() string { return "skill_scanner" }

func (m *SkillScannerModule) Phases() []policy.Phase {
	return []policy.Phase{policy.PhasePreLoad, policy.PhasePreRequest}
}

func (m *SkillScannerModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

func (m *SkillScannerModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.Phase == policy.PhasePreLoad && event.Artifact != nil {
		if dec, ok := m.checkProvenance(event.Artifact); ok {
			return dec, nil
		}
	}

	var content string
	if event.Phase == policy.PhasePreLoad && event.Artifact != nil {
		content = event.Artifact.Content
	} else {
		content = event.RequestText
	}
	if content == "" {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	if finding, critical := m.scanContent(content); finding != "" {
		if critical {
			return m.failureDecision(finding, policy.SeverityCritical)
		}
		return policy.Decision{Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityHigh, Reason: finding}, nil
	}
	return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
}

func (m *SkillScannerModule) enforcesKind(k policy.ArtifactKind) bool {
	for _, ek := range m.cfg.EnforceKinds {
		if ek == k {
			return true
		}
	}
	return false
}

func (m *SkillScannerModule) checkProvenance(a *policy.Artifact) (policy.Decision, bool) {
	if !m.enforcesKind(a.Kind) {
		return policy.Decision{}, false
	}

	if m.cfg.RequireSignature && !a.SignatureVerified {
		dec, _ := m.failureDecision("missing_signature: artifact signature not verified", policy.SeverityCritical)
		return dec, true
	}
	if len(m.cfg.TrustedSigners) > 0 {
		if a.Signer == "" {
			dec, _ := m.failureDecision("missing_signer_identity: no signer present", policy.SeverityHigh)
			return dec, true
		}
		trusted := false
		for _, s := range m.cfg.TrustedSigners {
			if s == a.Signer {
				trusted = true
				break
			}
		}
		if !trusted {
			dec, _ := m.failureDecision("untrusted_signer: "+a.Signer, policy.SeverityCritical)
			return dec, true
		}
	}
	if m.cfg.RequireSBOM && a.SBOMURI == "" {
		dec, _ := m.failureDecision("missing_sbom: no SBOM URI present", policy.SeverityHigh)
		return dec, true
	}
	if m.cfg.RequirePinned && !a.VersionPinned {
		if floatingVersionRef(a.SourceURI) {
			dec, _ := m.failureDecision("floating_version_reference: "+a.SourceURI, policy.SeverityHigh)
			return dec, true
		}
		dec, _ := m.failureDecision("unpinned_source: "+a.SourceURI, policy.SeverityHigh)
		return dec, true
	}
	return policy.Decision{}, false
}

func floatingVersionRef(uri string) bool {
	for _, suffix := range []string{"latest", "main", "master", "head"} {
		if strings.HasSuffix(strings.ToLower(uri), suffix) {
			return true
		}
	}
	return false
}

// failureDecision applies the configured failure policy to a finding. The
// action comes from the policy; the severity stays the finding's own, so a
// deny over an unpinned source still grades high rather than critical.
func (m *SkillScannerModule) failureDecision(reason string, severity policy.Severity) (policy.Decision, error) {
	switch m.cfg.FailurePolicy {
	case "challenge":
		return policy.Decision{
			Action: policy.ActionChallenge, Module: m.Name(), Severity: severity, Reason: reason,
			Challenge: &policy.Challenge{Channel: policy.ChannelOrchestrator, Prompt: "Approve loading this artifact despite a provenance finding?", TimeoutSeconds: 300},
		}, nil
	case "alert":
		return policy.Decision{Action: policy.ActionAlert, Module: m.Name(), Severity: severity, Reason: reason}, nil
	default:
		return policy.Decision{Action: policy.ActionDeny, Module: m.Name(), Severity: severity, Reason: reason}, nil
	}
}

func (m *SkillScannerModule) scanContent(content string) (finding string, critical bool) {
	if htmlCommentInjectionRe.MatchString(content) {
		return "html-comment injection pattern detected", true
	}
	// zero-width chars and long base64 blobs are non-critical findings
	nonCritical := ""
	if zeroWidthCharRe.MatchString(content) {
		nonCritical = "zero-width characters detected"
	}
	if m.longBase64(content) {
		nonCritical = "base64 blob at or above configured minimum length detected"
	}
	if decodeExecRe.MatchString(content) {
		return "decode/exec pattern detected", true
	}
	if exfilPairPresent(content) {
		return "combined exfiltration markers detected", true
	}
	if rawIPv4URLRe.MatchString(content) || punycodeURLRe.MatchString(content) || m.shortenerURL(content) {
		if nonCritical == "" {
			nonCritical = "suspicious URL detected"
		}
	}
	if m.blockedDomain(content) {
		if nonCritical == "" {
			nonCritical = "blocked domain reference detected"
		}
	}
	if instructionTakeoverRe.MatchString(content) {
		return "instruction takeover phrase detected", true
	}
	return nonCritical, false
}

func (m *SkillScannerModule) longBase64(content string) bool {
	for _, tok := range strings.Fields(content) {
		if utf8.RuneCountInString(tok) >= m.cfg.Base64MinLength && isBase64ish(tok) {
			return true
		}
	}
	return false
}

func isBase64ish(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '/' || r == '=') {
			return false
		}
	}
	return true
}

func exfilPairPresent(content string) bool {
	secretLoc := exfilSecretMarkerRe.FindStringIndex(content)
	sinkLoc := exfilSinkMarkerRe.FindStringIndex(content)
	if secretLoc == nil || sinkLoc == nil {
		return false
	}
	var gap int
	if secretLoc[0] < sinkLoc[0] {
		gap = sinkLoc[0] - secretLoc[1]
	} else {
		gap = secretLoc[0] - sinkLoc[1]
	}
	return gap >= 0 && gap <= 100
}

func (m *SkillScannerModule) shortenerURL(content string) bool {
	for _, d := range m.cfg.ShortenerDomains {
		if strings.Contains(content, d) {
			return true
		}
	}
	return false
}

func (m *SkillScannerModule) blockedDomain(content string) bool {
	for _, d := range m.cfg.BlockedDomains {
		if strings.Contains(content, d) {
			return true
		}
	}
	return false
}
