package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/radiuskernel/radius/internal/modules"
)

const includeKey = "$include"

// defaultConfigNames are searched for in the working directory when no
// explicit path is given.
var defaultConfigNames = []string{"radius.yaml", "radius.yml", ".radius.yaml"}

// FindDefaultPath returns the first of the default config file names that
// exists in dir, or "" if none do.
func FindDefaultPath(dir string) string {
	for _, name := range defaultConfigNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the config at path (or returns built-in defaults if path is
// empty), deep-merges it over the built-in and profile defaults, expands
// ${VAR} templates, resolves the profile alias, and normalizes known key
// aliases. workspace, cwd, and home feed template expansion.
func Load(path, workspace, cwd, home string, lookupEnvVar func(string) (string, bool)) (*Config, error) {
	var raw map[string]any
	if strings.TrimSpace(path) != "" {
		var err error
		raw, err = loadRawRecursive(path, map[string]bool{})
		if err != nil {
			return nil, err
		}
	} else {
		raw = map[string]any{}
	}

	profileName := ""
	if g, ok := raw["global"].(map[string]any); ok {
		profileName, _ = g["profile"].(string)
	}
	if profileName == "" {
		profileName = "standard"
	}
	canonical, ok := ResolveProfile(profileName)
	if !ok {
		return nil, fmt.Errorf("unknown profile: %q", profileName)
	}

	merged := mergeMaps(builtinDefaults(), profileDefaults(canonical))
	merged = mergeMaps(merged, raw)

	if err := normalize(merged); err != nil {
		return nil, err
	}

	if err := expandTemplates(merged, workspace, cwd, home, lookupEnvVar); err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(merged)
	if err != nil {
		return nil, err
	}

	cfg.Global.Profile = string(canonical)
	if cfg.Global.DefaultAction == "" {
		cfg.Global.DefaultAction = DefaultActionFor(canonical)
	}
	if cfg.Global.Workspace == "" {
		cfg.Global.Workspace = workspace
	}
	if cfg.Global.OnUndefinedTemplateVar == "" {
		cfg.Global.OnUndefinedTemplateVar = OnUndefinedEmpty
	}
	if cfg.Global.Version == 0 {
		cfg.Global.Version = CurrentVersion
	}
	if err := ValidateVersion(cfg.Global.Version); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadRawRecursive loads a config file, resolving $include directives with
// cycle detection. Included files merge in listed order, the including
// document last.
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	raw, err := parseRawBytes(data, absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}

	merged = mergeMaps(merged, raw)
	return merged, nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var includeVal any
	if val, ok := raw[includeKey]; ok {
		includeVal = val
		delete(raw, includeKey)
	} else if val, ok := raw["include"]; ok {
		includeVal = val
		delete(raw, "include")
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

// mergeMaps deep-merges src onto dst, recursing into nested maps and
// overwriting everything else (including slices).
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// normalize applies key-alias normalization.
func normalize(raw map[string]any) error {
	adapters, ok := raw["adapters"].(map[string]any)
	if !ok {
		return nil
	}
	if val, ok := adapters["claudeTelegram"]; ok {
		delete(adapters, "claudeTelegram")
		if _, exists := adapters["claude-telegram"]; !exists {
			adapters["claude-telegram"] = val
		}
	}
	return nil
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// builtinDefaults returns the system's hard-coded baseline, before any
// profile or user document is merged in.
func builtinDefaults() map[string]any {
	return map[string]any{
		"global": map[string]any{
			"onUndefinedTemplateVar": "empty",
		},
		"audit": map[string]any{
			"enabled": true,
			"sinks":   []any{"file"},
			"file":    "./radius-audit.jsonl",
		},
		"approval": map[string]any{
			"mode":               "sync_wait",
			"onTimeout":          "deny",
			"onConnectorError":   "deny",
			"maxTemporaryTtlSec": 1800,
		},
		"store": map[string]any{
			"backend": "memory",
			"path":    "./.radius/state.db",
		},
		"modules": []any{
			"kill_switch", "tool_policy", "fs_guard", "command_guard",
			"egress_guard", "output_dlp", "rate_budget", "repetition_guard",
			"approval_gate", "audit",
		},
	}
}

// profileDefaults returns the per-profile override layer.
func profileDefaults(p Profile) map[string]any {
	switch p {
	case ProfileLocal:
		// The strict profile extends command_guard's baseline deny patterns
		// with the .env-read catches. The full list is spelled out because a
		// configured denyPatterns value replaces the module's built-ins.
		deny := make([]any, 0, len(modules.DefaultCommandDenyPatterns)+len(modules.EnvReadDenyPatterns))
		for _, pat := range modules.DefaultCommandDenyPatterns {
			deny = append(deny, pat)
		}
		for _, pat := range modules.EnvReadDenyPatterns {
			deny = append(deny, pat)
		}
		return map[string]any{
			"global": map[string]any{"defaultAction": "deny"},
			"moduleConfig": map[string]any{
				"command_guard": map[string]any{"denyPatterns": deny},
			},
		}
	case ProfileUnbounded:
		return map[string]any{
			"global": map[string]any{"defaultAction": "allow"},
		}
	default:
		return map[string]any{
			"global": map[string]any{"defaultAction": "deny"},
		}
	}
}
