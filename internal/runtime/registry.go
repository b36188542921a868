// Package runtime wires a resolved config.Config into a running pipeline:
// constructing the store, the module set named by config.Modules, the
// audit logger, and the approval resolver, then exposing Runtime.Handle as
// the single entry point adapters call.
package runtime

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/modules"
	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// decodeModuleConfig re-marshals a module's raw config map and decodes it
// into target, the same map-to-struct roundtrip internal/config uses to
// turn a generic document into Config.
func decodeModuleConfig(raw map[string]any, target any) error {
	if raw == nil {
		return nil
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal module config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode module config: %w", err)
	}
	return nil
}

// BuildModules constructs the named policy modules in cfg.Modules order,
// the order in which the pipeline filters and evaluates them per phase.
// st must be non-nil whenever rate_budget, repetition_guard, or
// approval_gate is named.
func BuildModules(cfg *config.Config, st store.Store, sink modules.EventSink) ([]policy.Module, error) {
	built := make([]policy.Module, 0, len(cfg.Modules))

	derivedBindings, err := deriveEgressBindings(cfg.ModuleConfig["tool_policy"])
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", "tool_policy", err)
	}

	for _, name := range cfg.Modules {
		raw := cfg.ModuleConfig[name]

		mod, err := buildOne(name, raw, st, sink, derivedBindings)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", name, err)
		}
		built = append(built, mod)
	}

	return built, nil
}

// deriveEgressBindings extracts the per-tool egress bindings that
// tool_policy rules may carry, so egress_guard can enforce them without
// its own toolBindings block.
func deriveEgressBindings(rawToolPolicy map[string]any) (map[string]modules.EgressBinding, error) {
	if rawToolPolicy == nil {
		return nil, nil
	}
	var tp modules.ToolPolicyConfig
	if err := decodeModuleConfig(rawToolPolicy, &tp); err != nil {
		return nil, err
	}
	bindings := map[string]modules.EgressBinding{}
	for _, rule := range tp.Rules {
		if rule.Egress == nil || rule.Tool == "" || rule.Tool == "*" {
			continue
		}
		if _, seen := bindings[rule.Tool]; seen {
			continue
		}
		bindings[rule.Tool] = *rule.Egress
	}
	if len(bindings) == 0 {
		return nil, nil
	}
	return bindings, nil
}

func buildOne(name string, raw map[string]any, st store.Store, sink modules.EventSink, derivedBindings map[string]modules.EgressBinding) (policy.Module, error) {
	switch name {
	case "kill_switch":
		var c modules.KillSwitchConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewKillSwitchModule(c), nil

	case "tool_policy":
		var c modules.ToolPolicyConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewToolPolicyModule(c)

	case "fs_guard":
		var c modules.FsGuardConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewFsGuardModule(c), nil

	case "command_guard":
		var c modules.CommandGuardConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewCommandGuardModule(c)

	case "exec_sandbox":
		var c modules.ExecSandboxConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewExecSandboxModule(c), nil

	case "egress_guard":
		var c modules.EgressGuardConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		if len(c.ToolBindings) == 0 && len(derivedBindings) > 0 {
			c.ToolBindings = derivedBindings
		}
		return modules.NewEgressGuardModule(c), nil

	case "output_dlp":
		var c modules.OutputDlpConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewOutputDlpModule(c)

	case "rate_budget":
		if st == nil {
			return nil, fmt.Errorf("requires a store")
		}
		var c modules.RateBudgetConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewRateBudgetModule(c, st), nil

	case "repetition_guard":
		if st == nil {
			return nil, fmt.Errorf("requires a store")
		}
		var c modules.RepetitionGuardConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewRepetitionGuardModule(c, st), nil

	case "tripwire_guard":
		var c modules.TripwireGuardConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewTripwireGuardModule(c), nil

	case "self_defense":
		var c modules.SelfDefenseConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewSelfDefenseModule(c), nil

	case "approval_gate":
		if st == nil {
			return nil, fmt.Errorf("requires a store")
		}
		var c modules.ApprovalGateConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewApprovalGateModule(c, st), nil

	case "skill_scanner":
		var c modules.SkillScannerConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewSkillScannerModule(c), nil

	case "verdict_provider":
		var c modules.VerdictProviderConfig
		if err := decodeModuleConfig(raw, &c); err != nil {
			return nil, err
		}
		return modules.NewVerdictProviderModule(c), nil

	case "audit":
		return modules.NewAuditModule(sink), nil

	default:
		return nil, fmt.Errorf("unknown module")
	}
}
