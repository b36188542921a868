package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radiuskernel/radius/internal/approval"
	"github.com/radiuskernel/radius/internal/approval/chat"
	"github.com/radiuskernel/radius/internal/audit"
	"github.com/radiuskernel/radius/internal/config"
	"github.com/radiuskernel/radius/internal/modules"
	"github.com/radiuskernel/radius/internal/policy"
	"github.com/radiuskernel/radius/internal/store"
)

// Runtime is the assembled kernel: one pipeline, one store, one audit
// logger, one approval resolver, built from a resolved config.Config.
// It is the single call site every adapter's dispatch loop goes through.
type Runtime struct {
	cfg      *config.Config
	pipeline *policy.Pipeline
	store    store.Store
	audit    *audit.Logger
	resolver *approval.Resolver
	logger   *slog.Logger

	closers []func() error
}

// New builds a Runtime from cfg. Callers must call Close when done.
func New(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, closeStore, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("runtime: build store: %w", err)
	}

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:          cfg.Audit.Enabled,
		Sinks:            cfg.Audit.Sinks,
		File:             cfg.Audit.File,
		Webhook:          cfg.Audit.Webhook,
		IncludeArguments: cfg.Audit.IncludeArguments,
		IncludeResults:   cfg.Audit.IncludeResults,
		OTLP:             cfg.Audit.OTLP,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: build audit logger: %w", err)
	}

	mods, err := BuildModules(cfg, st, auditLogger)
	if err != nil {
		return nil, fmt.Errorf("runtime: build modules: %w", err)
	}

	defaultAction := policy.DefaultActionAllow
	if cfg.Global.DefaultAction == "deny" {
		defaultAction = policy.DefaultActionDeny
	}
	pipeline := policy.New(mods, defaultAction, logger)

	connectors, closeConnectors, err := buildConnectors(cfg.Approval)
	if err != nil {
		return nil, fmt.Errorf("runtime: build approval connectors: %w", err)
	}
	resolver := approval.NewResolver(cfg.Approval, connectors, st)

	rt := &Runtime{
		cfg:      cfg,
		pipeline: pipeline,
		store:    st,
		audit:    auditLogger,
		resolver: resolver,
		logger:   logger.With("component", "runtime"),
		closers:  []func() error{closeStore, closeConnectors},
	}
	return rt, nil
}

func buildStore(cfg config.LeaseStoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		if cfg.Required {
			return nil, nil, fmt.Errorf("store.required is set but backend is %q, not sqlite", cfg.Backend)
		}
		s := store.NewMemoryStore()
		return s, s.Close, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "./radius.db"
		}
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildConnectors constructs a channel→Connector map from the approval
// config. Channels with no configured credentials are simply omitted;
// Resolver.Resolve then folds the resulting "no connector configured"
// error through onConnectorError.
func buildConnectors(cfg config.ApprovalConnectorConfig) (map[policy.Channel]approval.Connector, func() error, error) {
	connectors := map[policy.Channel]approval.Connector{}
	var closers []func() error

	if cfg.Chat.Token != "" {
		tg, err := chat.NewTelegramConnector(cfg.Chat.Token, cfg.Chat.ChatIDs, cfg.Chat.ApproverIDs, cfg.Chat.PollTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram connector: %w", err)
		}
		connectors[policy.ChannelTelegram] = tg

		if dc, err := chat.NewDiscordConnector(cfg.Chat.Token, cfg.Chat.ChatIDs, cfg.Chat.ApproverIDs, cfg.Chat.PollTimeout); err == nil {
			connectors[policy.ChannelDiscord] = dc
			closers = append(closers, dc.Close)
		}
	}

	if cfg.HTTP.URL != "" {
		connectors[policy.ChannelHTTP] = approval.NewHTTPConnector(cfg.HTTP)
	}

	closeAll := func() error {
		for _, c := range closers {
			_ = c()
		}
		return nil
	}
	return connectors, closeAll, nil
}

// Close releases the store, SQLite connections, and any open chat gateway
// sessions.
func (r *Runtime) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.audit != nil {
		if err := r.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handle runs event through the pipeline, resolving any CHALLENGE verdict
// through the approval resolver before returning, and records the event to
// the audit sink strictly after the event has terminated.
func (r *Runtime) Handle(ctx context.Context, event *policy.Event) *policy.PipelineResult {
	start := time.Now()
	result := r.pipeline.Run(ctx, event)

	if result.FinalAction == policy.ActionChallenge {
		result = r.resolveChallenge(ctx, result, event)
	}

	if r.audit != nil {
		r.audit.RecordResult(ctx, event, result)
	}

	r.logger.Debug("event handled",
		"phase", event.Phase, "action", result.FinalAction, "elapsed", time.Since(start))
	return result
}

func (r *Runtime) resolveChallenge(ctx context.Context, result *policy.PipelineResult, event *policy.Event) *policy.PipelineResult {
	var challenge *policy.Challenge
	var moduleName string
	for i := len(result.Chain) - 1; i >= 0; i-- {
		if result.Chain[i].Challenge != nil {
			challenge = result.Chain[i].Challenge
			moduleName = result.Chain[i].Module
			break
		}
	}
	if challenge == nil {
		result.FinalAction = policy.ActionDeny
		result.FinalReason = "challenge verdict with no challenge payload"
		return result
	}

	decision := r.resolver.Resolve(ctx, challenge, event, moduleName)
	result.Chain = append(result.Chain, decision)
	result.FinalAction = decision.Action
	result.FinalReason = decision.Reason
	if decision.Action == policy.ActionAlert {
		result.Alerts = append(result.Alerts, fmt.Sprintf("[%s] %s", moduleName, decision.Reason))
		result.FinalAction = policy.ActionAllow
	}
	return result
}

var _ modules.EventSink = (*audit.Logger)(nil)

// SelfCheck runs the doctor-style validation pass: config/store reachability
// and channel credential sanity, without sending any real challenge or
// touching an actual chat API. It never mutates state.
func (r *Runtime) SelfCheck(ctx context.Context) []string {
	var warnings []string

	if r.cfg.Global.DefaultAction == "" {
		warnings = append(warnings, "global.defaultAction is unset; profile default will be used")
	}
	if len(r.cfg.Modules) == 0 {
		warnings = append(warnings, "no modules configured; every event will fall through to the default action")
	}

	hasApprovalGate := false
	for _, name := range r.cfg.Modules {
		if name == "approval_gate" {
			hasApprovalGate = true
			break
		}
	}
	if hasApprovalGate {
		if r.cfg.Approval.Chat.Token == "" && r.cfg.Approval.HTTP.URL == "" {
			warnings = append(warnings, "approval_gate is configured but no chat token or http bridge url is set; every challenge will fold through onConnectorError")
		}
		if r.cfg.Store.Backend != "sqlite" {
			warnings = append(warnings, "approval_gate is configured with a non-sqlite store; approval leases will not survive a restart")
		}
	}

	if _, _, err := r.store.FindActiveLease(ctx, "__selfcheck__", "", "__selfcheck__", store.NowMs()); err != nil {
		warnings = append(warnings, fmt.Sprintf("store is not reachable: %s", err))
	}

	if r.cfg.Audit.Enabled && len(r.cfg.Audit.Sinks) == 0 {
		warnings = append(warnings, "audit.enabled is true but no sinks are configured")
	}

	return warnings
}
