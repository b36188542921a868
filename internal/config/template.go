package config

import (
	"fmt"
	"regexp"
)

var templateVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandTemplates recursively replaces every ${NAME} occurrence in string
// values, trying workspace, CWD, and HOME before falling back to a process
// env var named NAME. The undefined-var policy is read from
// global.onUndefinedTemplateVar (default "empty" if unset/invalid at this
// point in the merge).
func expandTemplates(raw map[string]any, workspace, cwd, home string, lookupEnvVar func(string) (string, bool)) error {
	policy := OnUndefinedEmpty
	if g, ok := raw["global"].(map[string]any); ok {
		if v, ok := g["onUndefinedTemplateVar"].(string); ok && v == string(OnUndefinedError) {
			policy = OnUndefinedError
		}
	}

	lookup := func(name string) (string, bool) {
		switch name {
		case "workspace":
			return workspace, true
		case "CWD":
			return cwd, true
		case "HOME":
			return home, true
		default:
			if lookupEnvVar == nil {
				return "", false
			}
			return lookupEnvVar(name)
		}
	}

	var walk func(v any) (any, error)
	walk = func(v any) (any, error) {
		switch typed := v.(type) {
		case string:
			return expandString(typed, lookup, policy)
		case map[string]any:
			for k, val := range typed {
				replaced, err := walk(val)
				if err != nil {
					return nil, err
				}
				typed[k] = replaced
			}
			return typed, nil
		case []any:
			for i, val := range typed {
				replaced, err := walk(val)
				if err != nil {
					return nil, err
				}
				typed[i] = replaced
			}
			return typed, nil
		default:
			return v, nil
		}
	}

	_, err := walk(raw)
	return err
}

func expandString(s string, lookup func(string) (string, bool), policy UndefinedTemplateVarPolicy) (string, error) {
	var outErr error
	result := templateVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if outErr != nil {
			return match
		}
		name := templateVarPattern.FindStringSubmatch(match)[1]
		val, ok := lookup(name)
		if !ok {
			if policy == OnUndefinedError {
				outErr = fmt.Errorf("undefined template variable: %s", name)
				return match
			}
			return ""
		}
		return val
	})
	if outErr != nil {
		return "", outErr
	}
	return result, nil
}
