package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/policy"
)

func bashEvent(session, command string) *policy.Event {
	e := policy.NewEvent(policy.PhasePreTool, policy.FrameworkOpenClaw)
	e.SessionID = session
	e.ToolCall = &policy.ToolCall{Name: "Bash", Arguments: map[string]any{"command": command}}
	return e
}

func baseConfig(modules []string, moduleConfig map[string]map[string]any) *config.Config {
	return &config.Config{
		Global:       config.Global{Profile: "standard", DefaultAction: "deny"},
		Audit:        config.AuditConfig{Enabled: false},
		Store:        config.LeaseStoreConfig{Backend: "memory"},
		Modules:      modules,
		ModuleConfig: moduleConfig,
	}
}

// Blocked-prefix shell reads deny through fs_guard.
func TestRuntime_BlockedPrefixShellReadDenies(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))

	cfg := baseConfig([]string{"fs_guard"}, map[string]map[string]any{
		"fs_guard": {
			"blockedPaths": []any{"~/.ssh"},
			"allowedPaths": []any{"/workspace"},
			"home":         home,
		},
	})
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	result := rt.Handle(context.Background(), bashEvent("s-deny", "cat ~/.ssh/id_rsa"))
	require.Equal(t, policy.ActionDeny, result.FinalAction)
	require.Contains(t, result.FinalReason, "is in blocked prefix")
}

// A sudo segment terminates the pipeline at command_guard and nowhere else.
func TestRuntime_SudoSegmentDeniesViaCommandGuard(t *testing.T) {
	cfg := baseConfig([]string{"fs_guard", "command_guard"}, map[string]map[string]any{
		"fs_guard": {"allowedPaths": []any{"/workspace"}},
	})
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	result := rt.Handle(context.Background(), bashEvent("s-sudo", "echo ok && sudo rm -rf /"))
	require.Equal(t, policy.ActionDeny, result.FinalAction)
	require.Contains(t, result.FinalReason, "sudo")
	require.Len(t, result.Chain, 1)
	require.Equal(t, "command_guard", result.Chain[0].Module)
}

// The sandbox wrapper rewrites the command in the accumulated transforms.
func TestRuntime_SandboxWrapsCommand(t *testing.T) {
	cfg := baseConfig([]string{"exec_sandbox"}, map[string]map[string]any{
		"exec_sandbox": {"engine": "bwrap", "required": false},
	})
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	result := rt.Handle(context.Background(), bashEvent("s-sbx", "echo 'sandboxed'"))
	require.Equal(t, policy.ActionAllow, result.FinalAction)

	wrapped, ok := result.Transforms.ToolArguments["command"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(wrapped, "'bwrap'"), "wrapped command must start with the wrapper binary, got %q", wrapped)
	require.Contains(t, wrapped, "--unshare-all")
}

// Channel auto-resolution reads the event's metadata channel.
func TestRuntime_ApprovalChannelResolvesFromMetadata(t *testing.T) {
	cfg := baseConfig([]string{"approval_gate"}, map[string]map[string]any{
		"approval_gate": {"rules": []any{map[string]any{"tool": "Bash"}}},
	})
	st, closeStore, err := buildStore(cfg.Store)
	require.NoError(t, err)
	defer closeStore()

	mods, err := BuildModules(cfg, st, nil)
	require.NoError(t, err)
	pipeline := policy.New(mods, policy.DefaultActionDeny, nil)

	event := bashEvent("s-chal", "deploy")
	event.Metadata["channel"] = "discord"

	result := pipeline.Run(context.Background(), event)
	require.Equal(t, policy.ActionChallenge, result.FinalAction)
	last := result.Chain[len(result.Chain)-1]
	require.NotNil(t, last.Challenge)
	require.Equal(t, policy.ChannelDiscord, last.Challenge.Channel)
}

// A temporary HTTP approval installs a lease; the second evaluation allows
// without a second bridge call.
func TestRuntime_TemporaryApprovalLeaseSkipsSecondChallenge(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"status": "approved_temporary", "ttlSec": 120})
	}))
	defer srv.Close()

	cfg := baseConfig([]string{"approval_gate"}, map[string]map[string]any{
		"approval_gate": {"rules": []any{map[string]any{
			"tool": "Bash", "channel": "http", "timeoutSeconds": 5,
		}}},
	})
	cfg.Approval = config.ApprovalConnectorConfig{
		Mode: "sync_wait", OnTimeout: "deny", OnConnectorError: "deny",
		HTTP: config.HTTPConnectorConfig{URL: srv.URL, Timeout: 5 * time.Second},
	}

	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	first := rt.Handle(context.Background(), bashEvent("s-lease", "ls"))
	require.Equal(t, policy.ActionAllow, first.FinalAction)
	require.EqualValues(t, 1, calls.Load())

	second := rt.Handle(context.Background(), bashEvent("s-lease", "ls -la"))
	require.Equal(t, policy.ActionAllow, second.FinalAction)
	require.EqualValues(t, 1, calls.Load(), "lease must suppress the second bridge call")
}

// A denied HTTP approval folds into a deny naming the channel.
func TestRuntime_DeniedApprovalFoldsToDeny(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "denied", "reason": "not today"})
	}))
	defer srv.Close()

	cfg := baseConfig([]string{"approval_gate"}, map[string]map[string]any{
		"approval_gate": {"rules": []any{map[string]any{
			"tool": "Bash", "channel": "http", "timeoutSeconds": 5,
		}}},
	})
	cfg.Approval = config.ApprovalConnectorConfig{
		HTTP: config.HTTPConnectorConfig{URL: srv.URL, Timeout: 5 * time.Second},
	}

	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	result := rt.Handle(context.Background(), bashEvent("s-denied", "ls"))
	require.Equal(t, policy.ActionDeny, result.FinalAction)
	require.Contains(t, result.FinalReason, "http: not today")
}

// The fourth call in the window denies with the exhausted budget in the
// reason, backed by the persistent store.
func TestRuntime_RateBudgetExhaustionWithSQLiteStore(t *testing.T) {
	cfg := baseConfig([]string{"rate_budget"}, map[string]map[string]any{
		"rate_budget": {"windowSec": 60, "maxCallsPerWindow": 3},
	})
	cfg.Store = config.LeaseStoreConfig{
		Backend: "sqlite",
		Path:    filepath.Join(t.TempDir(), "state.db"),
	}

	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	for i := 0; i < 3; i++ {
		result := rt.Handle(context.Background(), bashEvent("s-rate", "ls"))
		require.Equal(t, policy.ActionAllow, result.FinalAction, "call %d must be within budget", i+1)
	}

	result := rt.Handle(context.Background(), bashEvent("s-rate", "ls"))
	require.Equal(t, policy.ActionDeny, result.FinalAction)
	require.Contains(t, result.FinalReason, "rate limit exceeded: 3/3")
}

func TestRuntime_RequiredStoreRejectsMemoryBackend(t *testing.T) {
	cfg := baseConfig(nil, nil)
	cfg.Store = config.LeaseStoreConfig{Backend: "memory", Required: true}

	_, err := New(cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.required")
}

func TestRuntime_SelfCheckFlagsMissingApprovalWiring(t *testing.T) {
	cfg := baseConfig([]string{"approval_gate"}, map[string]map[string]any{
		"approval_gate": {"rules": []any{map[string]any{"tool": "Bash"}}},
	})
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	warnings := rt.SelfCheck(context.Background())
	require.NotEmpty(t, warnings)

	var sawConnector, sawDurability bool
	for _, w := range warnings {
		if strings.Contains(w, "no chat token or http bridge url") {
			sawConnector = true
		}
		if strings.Contains(w, "non-sqlite store") {
			sawDurability = true
		}
	}
	require.True(t, sawConnector)
	require.True(t, sawDurability)
}
