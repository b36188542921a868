package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radiuskernel/radius/internal/adapters"
	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/runtime"
)

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radius",
		Short: "Deterministic policy kernel for agent tool calls",
	}
	cmd.AddCommand(buildHookCmd(), buildServeCmd(), buildDoctorCmd())
	return cmd
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return config.FindDefaultPath(cwd)
}

func loadRuntime(configPath string) (*runtime.Runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}

	path := resolveConfigPath(configPath)
	cfg, err := config.Load(path, cwd, cwd, home, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return runtime.New(cfg, nil)
}

// =============================================================================
// Hook Command
// =============================================================================

// buildHookCmd creates the "hook" command: read one orchestrator payload
// from stdin, evaluate it, write the response to stdout. This is the
// integration point for frameworks that invoke radius as a subprocess hook
// rather than over HTTP.
func buildHookCmd() *cobra.Command {
	var (
		configPath string
		framework  string
	)

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Evaluate one orchestrator hook payload from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd.Context(), configPath, framework)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&framework, "framework", "f", "generic",
		"Orchestrator dialect: openclaw|nanobot|claude-telegram|generic")

	return cmd
}

func runHook(ctx context.Context, configPath, framework string) error {
	var raw map[string]any
	if err := json.NewDecoder(os.Stdin).Decode(&raw); err != nil {
		raw = map[string]any{}
	}

	rt, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	adapter := adapters.For(policy.Framework(framework))
	event := adapter.ToEvent(raw)
	result := rt.Handle(ctx, event)
	response := adapter.ToResponse(result, raw)

	return json.NewEncoder(os.Stdout).Encode(response)
}

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command. The HTTP surface itself
// (/check, /health) is out of core scope — this stub builds and
// self-checks the runtime so operators can validate wiring before standing
// up their own listener around runtime.Runtime.Handle.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build and self-check the runtime (HTTP listener not included)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			warnings := rt.SelfCheck(cmd.Context())
			for _, w := range warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			fmt.Println("runtime built successfully; /check and /health are not wired by this binary")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Doctor Command
// =============================================================================

func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report startup warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			warnings := rt.SelfCheck(cmd.Context())
			if len(warnings) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, w := range warnings {
				fmt.Println("warning:", w)
			}
			return fmt.Errorf("%d warning(s) found", len(warnings))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
