package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/agent/providers"
	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/config"
	"github.com/haasonsaas/sentinel/internal/conversation"
	"github.com/haasonsaas/sentinel/internal/observability"
	"github.com/haasonsaas/sentinel/internal/platform"
	"github.com/haasonsaas/sentinel/internal/platform/firecracker"
	"github.com/haasonsaas/sentinel/internal/skillrunner"
	"github.com/haasonsaas/sentinel/internal/tools"
)

// buildAuditLogger turns the persistence section into an audit.Logger
// output spec ("stderr", or "file:/path") per audit.Config's contract.
func buildAuditLogger(cfg *config.Config) (*audit.Logger, error) {
	output := "stderr"
	if path := strings.TrimSpace(cfg.Persistence.AuditLogPath); path != "" {
		output = "file:" + path
	}
	return audit.NewLogger(audit.Config{
		Output: output,
		Format: audit.FormatJSON,
		Mirror: cfg.Persistence.AuditLogStderr && output != "stderr",
	})
}

// buildPlatformBackend selects the OS or capability-kernel backend
// per security.backend.
func buildPlatformBackend(ctx context.Context, cfg *config.Config) (platform.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Security.Backend)) {
	case "", "os":
		return platform.NewOSBackend(), nil
	case "firecracker":
		return platform.NewFirecrackerBackend(ctx, firecracker.DefaultBackendConfig())
	default:
		return nil, fmt.Errorf("config: unknown security.backend %q", cfg.Security.Backend)
	}
}

// buildGrant turns capabilities config into the process-wide Grant,
// canonicalizing every path through the selected platform backend.
func buildGrant(cfg *config.Config, backend platform.Backend) (*capability.Grant, error) {
	return capability.New(capability.GrantConfig{
		ReadPaths:      cfg.Capabilities.ReadPaths,
		WritePaths:     cfg.Capabilities.WritePaths,
		Commands:       cfg.Capabilities.Commands,
		NetEndpoints:   cfg.Capabilities.NetEndpoints,
		AllowedUsers:   cfg.Capabilities.AllowedUsers,
		CommandTimeout: cfg.Capabilities.CommandTimeout,
	}, func(path string) (string, error) {
		return backend.Canonicalize(context.Background(), path)
	})
}

// buildCapabilityChecker wraps grant in the Checker that mediates
// every effect the agent attempts, wiring its decision events into
// the audit log (spec.md §4.5) and, when enabled, into the
// sentinel_capability_decisions_total counter — metrics observe the
// same event the audit log records, never influence it.
func buildCapabilityChecker(grant *capability.Grant, backend platform.Backend, auditLogger *audit.Logger, metrics *observability.Metrics) *capability.Checker {
	onEvent := auditLogger.CapabilityEventFunc
	if metrics != nil {
		onEvent = func(kind, resource string, decision capability.Decision) {
			auditLogger.CapabilityEventFunc(kind, resource, decision)
			outcome := "denied"
			if decision.Allowed {
				outcome = "allowed"
			}
			metrics.RecordCapabilityDecision(kind, outcome)
		}
	}
	if grant.AllowAllUsers {
		onEvent("allowed_users", "*", capability.Decision{Allowed: true, Reason: "empty_grant_allows_all"})
	}
	return capability.NewChecker(grant, func(path string) (string, error) {
		return backend.Canonicalize(context.Background(), path)
	}, onEvent)
}

// buildSkillRunner discovers skill manifests under
// capabilities.skills_dir and builds a Runner scoped to the process
// grant. Rejected manifests are logged, not fatal (spec.md §8
// scenario 6).
func buildSkillRunner(cfg *config.Config, grant *capability.Grant, backend platform.Backend, auditLogger *audit.Logger) (*skillrunner.Runner, error) {
	if strings.TrimSpace(cfg.Capabilities.SkillsDir) == "" {
		return nil, nil
	}

	runner, rejected, err := skillrunner.New(skillrunner.Config{
		SkillsDir: cfg.Capabilities.SkillsDir,
		Canonicalize: func(path string) (string, error) {
			return backend.Canonicalize(context.Background(), path)
		},
	}, grant, auditLogger)
	if err != nil {
		return nil, fmt.Errorf("skill discovery: %w", err)
	}
	for name, rejectErr := range rejected {
		auditLogger.SkillExit("", name, rejectErr.Error())
	}
	return runner, nil
}

// buildToolDispatcher combines the four built-in tools with whatever
// skill tools were discovered, in that order — built-ins always win a
// name collision (agent.ChainDispatcher's first-match contract).
func buildToolDispatcher(cfg *config.Config, checker *capability.Checker, backend platform.Backend, skillRunner *skillrunner.Runner) agent.ToolDispatcher {
	var workspace string
	if len(cfg.Capabilities.WritePaths) > 0 {
		workspace = cfg.Capabilities.WritePaths[0]
	}

	registry := tools.NewRegistry(
		tools.NewReadFileTool(checker, backend, int(cfg.Capabilities.MaxReadBytes)),
		tools.NewWriteFileTool(checker, backend, int(cfg.Capabilities.MaxReadBytes)),
		tools.NewListDirectoryTool(checker, backend),
		tools.NewRunCommandTool(checker, backend, workspace),
	)
	builtins := agent.NewRegistryDispatcher(registry)
	if skillRunner == nil {
		return builtins
	}
	return agent.NewChainDispatcher(builtins, skillRunner)
}

// buildLLMProvider constructs the configured default LLM provider.
func buildLLMProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	providerCfg, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	if !ok {
		providerCfg, ok = cfg.LLM.Providers[name]
	}
	if !ok {
		return nil, fmt.Errorf("config: no llm.providers entry for default_provider %q", cfg.LLM.DefaultProvider)
	}

	apiKey := config.ResolveSecret(providerCfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("config: env var %q (llm.providers.%s.api_key_env) is unset", providerCfg.APIKeyEnv, name)
	}

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      providerCfg.BaseURL,
			MaxRetries:   providerCfg.MaxRetries,
			RetryDelay:   providerCfg.RetryDelay,
			DefaultModel: providerCfg.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      providerCfg.BaseURL,
			MaxRetries:   providerCfg.MaxRetries,
			RetryDelay:   providerCfg.RetryDelay,
			DefaultModel: providerCfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("config: unknown llm provider %q", cfg.LLM.DefaultProvider)
	}
}

// buildConversationStore selects the conversation.Store backend per
// persistence.conversation_store (default: in-process memory).
func buildConversationStore(ctx context.Context, cfg *config.Config) (conversation.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Persistence.ConversationStore)) {
	case "", "memory":
		return conversation.NewMemoryStore(), nil
	case "sqlite":
		if cfg.Persistence.ConversationDSN == "" {
			return nil, fmt.Errorf("config: persistence.conversation_dsn is required for the sqlite store")
		}
		return conversation.NewSQLiteStore(ctx, cfg.Persistence.ConversationDSN)
	case "postgres":
		if cfg.Persistence.ConversationDSN == "" {
			return nil, fmt.Errorf("config: persistence.conversation_dsn is required for the postgres store")
		}
		return conversation.NewPostgresStore(ctx, cfg.Persistence.ConversationDSN)
	default:
		return nil, fmt.Errorf("config: unknown persistence.conversation_store %q", cfg.Persistence.ConversationStore)
	}
}

// orchestratorConfig translates agent.* config into agent.Config.
func orchestratorConfig(cfg *config.Config) agent.Config {
	defaults := agent.DefaultConfig()
	out := defaults
	out.System = cfg.Agent.SystemPrompt
	if cfg.Agent.MaxToolRounds > 0 {
		out.MaxToolRounds = cfg.Agent.MaxToolRounds
	}
	if cfg.Agent.HistoryCap > 0 {
		out.HistoryCap = cfg.Agent.HistoryCap
	}
	return out
}
