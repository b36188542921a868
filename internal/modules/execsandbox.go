package modules

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/radiuskernel/radius/internal/policy"
)

// NetworkPolicy honors childPolicy.network.
type NetworkPolicy string

const (
	NetworkInherit NetworkPolicy = "inherit"
	NetworkDeny    NetworkPolicy = "deny"
)

// ExecSandboxConfig configures ExecSandboxModule.
type ExecSandboxConfig struct {
	Engine         string        `yaml:"engine"` // "none" | "bwrap"
	Required       bool          `yaml:"required"`
	ShellTools     []string      `yaml:"shellTools"`
	Network        NetworkPolicy `yaml:"network"`
	ReadOnlyPaths  []string      `yaml:"readOnlyPaths"`
	ReadWritePaths []string      `yaml:"readWritePaths"`
	TmpfsPaths     []string      `yaml:"tmpfsPaths"`
	Shell          string        `yaml:"shell"`     // default "/bin/sh"
	ShellFlag      string        `yaml:"shellFlag"` // default "-c"
	Mode           policy.Mode   `yaml:"mode"`
}

// ExecSandboxModule prescribes (but does not itself execute) a bubblewrap
// wrapper invocation around shell commands: the original command is
// rewritten into a fully shell-quoted bwrap argument list and handed back
// as a modify patch.
type ExecSandboxModule struct {
	cfg        ExecSandboxConfig
	shellTools map[string]bool

	probeOnce      sync.Once
	probeAvailable bool
}

func NewExecSandboxModule(cfg ExecSandboxConfig) *ExecSandboxModule {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.ShellFlag == "" {
		cfg.ShellFlag = "-c"
	}
	tools := cfg.ShellTools
	if len(tools) == 0 {
		tools = []string{"Bash"}
	}
	shellTools := map[string]bool{}
	for _, t := range tools {
		shellTools[t] = true
	}
	return &ExecSandboxModule{cfg: cfg, shellTools: shellTools}
}

func (m *ExecSandboxModule) Name() string { return "exec_sandbox" }

func (m *ExecSandboxModule) Phases() []policy.Phase { return []policy.Phase{policy.PhasePreTool} }

func (m *ExecSandboxModule) Mode() policy.Mode {
	if m.cfg.Mode == "" {
		return policy.ModeEnforce
	}
	return m.cfg.Mode
}

// wrapperAvailable probes for bwrap once per process lifetime.
// Non-Linux hosts always report unavailable, which correctly fail-closes
// a required=true binding rather than guessing at bwrap's behavior there.
func (m *ExecSandboxModule) wrapperAvailable() bool {
	m.probeOnce.Do(func() {
		if runtime.GOOS != "linux" {
			m.probeAvailable = false
			return
		}
		path, err := exec.LookPath("bwrap")
		if err != nil {
			m.probeAvailable = false
			return
		}
		m.probeAvailable = exec.Command(path, "--version").Run() == nil
	})
	return m.probeAvailable
}

func (m *ExecSandboxModule) Evaluate(_ context.Context, event *policy.Event) (policy.Decision, error) {
	if event.ToolCall == nil || !m.shellTools[event.ToolCall.Name] {
		return policy.Decision{Action: policy.ActionAllow, Module: m.Name()}, nil
	}

	if m.cfg.Engine != "bwrap" {
		if m.cfg.Required {
			return policy.Decision{
				Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
				Reason: "exec_sandbox required but engine=none",
			}, nil
		}
		return policy.Decision{
			Action: policy.ActionAlert, Module: m.Name(), Severity: policy.SeverityMedium,
			Reason: "exec_sandbox not enforced (engine=none)",
		}, nil
	}

	if m.cfg.Required && !m.wrapperAvailable() {
		return policy.Decision{
			Action: policy.ActionDeny, Module: m.Name(), Severity: policy.SeverityCritical,
			Reason: "bwrap wrapper unavailable",
		}, nil
	}

	cmd, _ := event.ToolCall.Arguments["command"].(string)
	wrapped := m.buildWrapperCommand(cmd)

	return policy.Decision{
		Action: policy.ActionModify, Module: m.Name(), Severity: policy.SeverityInfo,
		Reason: "wrapped command in bwrap sandbox",
		Patch: &policy.Patch{
			ToolArguments: map[string]any{"command": wrapped},
		},
	}, nil
}

func (m *ExecSandboxModule) buildWrapperCommand(cmd string) string {
	args := []string{"bwrap",
		"--die-with-parent",
		"--new-session",
		"--unshare-all",
	}

	shareNet := m.cfg.Network == NetworkInherit
	if m.cfg.Network == "" {
		shareNet = false // default deny
	}
	if m.cfg.Network == NetworkDeny {
		shareNet = false
	}
	if shareNet {
		args = append(args, "--share-net")
	}

	args = append(args, "--proc", "/proc", "--dev", "/dev")

	for _, p := range m.cfg.ReadOnlyPaths {
		args = append(args, "--ro-bind", p, p)
	}
	for _, p := range m.cfg.ReadWritePaths {
		args = append(args, "--bind", p, p)
	}
	for _, p := range m.cfg.TmpfsPaths {
		args = append(args, "--tmpfs", p)
	}

	args = append(args,
		"--setenv", "HOME", "/tmp",
		"--setenv", "TMPDIR", "/tmp",
		m.cfg.Shell, m.cfg.ShellFlag, cmd,
	)

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shellQuote single-quotes a, escaping embedded single quotes.
func shellQuote(a string) string {
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
