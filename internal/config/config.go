// Package config implements the configuration resolver: YAML loading,
// profile defaulting, ${VAR} template expansion, and normalization.
package config

import "time"

// Profile is a canonical profile name. Aliases are resolved to these by
// the loader before the rest of the system ever sees a profile name.
type Profile string

const (
	ProfileLocal     Profile = "local"
	ProfileStandard  Profile = "standard"
	ProfileUnbounded Profile = "unbounded"
)

// profileAliases maps every accepted spelling to its canonical profile.
var profileAliases = map[string]Profile{
	"local":     ProfileLocal,
	"strict":    ProfileLocal,
	"bunker":    ProfileLocal,
	"standard":  ProfileStandard,
	"balanced":  ProfileStandard,
	"tactical":  ProfileStandard,
	"unbounded": ProfileUnbounded,
	"monitor":   ProfileUnbounded,
	"yolo":      ProfileUnbounded,
	"unleashed": ProfileUnbounded,
}

// ResolveProfile maps any accepted alias to its canonical profile name.
// An unknown name is a configuration error.
func ResolveProfile(name string) (Profile, bool) {
	p, ok := profileAliases[name]
	return p, ok
}

// DefaultActionFor returns the canonical per-profile default action.
func DefaultActionFor(p Profile) string {
	switch p {
	case ProfileUnbounded:
		return "allow"
	default:
		return "deny"
	}
}

// UndefinedTemplateVarPolicy controls template expansion on an undefined
// ${VAR}.
type UndefinedTemplateVarPolicy string

const (
	OnUndefinedError UndefinedTemplateVarPolicy = "error"
	OnUndefinedEmpty UndefinedTemplateVarPolicy = "empty"
)

// Global holds profile-independent runtime settings.
type Global struct {
	Version                int                        `yaml:"version"`
	Profile                string                     `yaml:"profile"`
	DefaultAction          string                     `yaml:"defaultAction"`
	Workspace              string                     `yaml:"workspace"`
	OnUndefinedTemplateVar UndefinedTemplateVarPolicy `yaml:"onUndefinedTemplateVar"`
}

// AuditConfig configures the audit recorder.
type AuditConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Sinks            []string `yaml:"sinks"`
	File             string   `yaml:"file"`
	Webhook          string   `yaml:"webhook"`
	IncludeArguments bool     `yaml:"includeArguments"`
	IncludeResults   bool     `yaml:"includeResults"`
	OTLP             bool     `yaml:"otlp"`
}

// LeaseStoreConfig selects and configures the persistent state store.
type LeaseStoreConfig struct {
	Backend  string `yaml:"backend"` // "memory" | "sqlite"
	Path     string `yaml:"path"`
	Required bool   `yaml:"required"`
}

// ApprovalConnectorConfig configures an approval channel connector.
type ApprovalConnectorConfig struct {
	Mode               string        `yaml:"mode"` // only "sync_wait" is implemented
	OnTimeout          string        `yaml:"onTimeout"`
	OnConnectorError   string        `yaml:"onConnectorError"`
	MaxTemporaryTTLSec int           `yaml:"maxTemporaryTtlSec"`
	Timeout            time.Duration `yaml:"timeout"`

	Chat ChatConnectorConfig `yaml:"chat"`
	HTTP HTTPConnectorConfig `yaml:"http"`
}

// ChatConnectorConfig configures the Telegram/Discord polling connector.
type ChatConnectorConfig struct {
	Transport     string   `yaml:"transport"` // "polling" (only implemented) | "webhook"
	Token         string   `yaml:"token"`
	ChatIDs       []string `yaml:"chatIds"`
	ApproverIDs   []string `yaml:"approverIds"`
	PollTimeout   time.Duration `yaml:"pollTimeout"`
}

// HTTPConnectorConfig configures the HTTP approval bridge connector.
type HTTPConnectorConfig struct {
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	JWTSecret    string            `yaml:"jwtSecret"`
	JWTIssuer    string            `yaml:"jwtIssuer"`
	Timeout      time.Duration     `yaml:"timeout"`
}

// AdaptersConfig configures per-framework adapter behavior.
type AdaptersConfig struct {
	OpenClaw       map[string]any `yaml:"openclaw"`
	Nanobot        map[string]any `yaml:"nanobot"`
	ClaudeTelegram map[string]any `yaml:"claude-telegram"`
	Generic        map[string]any `yaml:"generic"`
}

// Config is the fully resolved, frozen configuration.
type Config struct {
	Global       Global                     `yaml:"global"`
	Audit        AuditConfig                `yaml:"audit"`
	Approval     ApprovalConnectorConfig    `yaml:"approval"`
	Store        LeaseStoreConfig           `yaml:"store"`
	Adapters     AdaptersConfig             `yaml:"adapters"`
	Modules      []string                   `yaml:"modules"`
	ModuleConfig map[string]map[string]any  `yaml:"moduleConfig"`
}
