package config

import (
	"fmt"
	"strings"
)

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Agent.MaxToolRounds < 0 {
		issues = append(issues, "agent.max_tool_rounds must be >= 0")
	}
	if cfg.Agent.HistoryCap < 0 {
		issues = append(issues, "agent.history_cap must be >= 0")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider == "" {
		issues = append(issues, "llm.default_provider is required")
	} else if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
		}
	}
	for name, provider := range cfg.LLM.Providers {
		if strings.TrimSpace(provider.APIKeyEnv) == "" {
			issues = append(issues, fmt.Sprintf("llm.providers.%s.api_key_env is required", name))
		}
	}

	if cfg.Capabilities.CommandTimeout < 0 {
		issues = append(issues, "capabilities.command_timeout must be >= 0")
	}
	if cfg.Capabilities.MaxReadBytes < 0 {
		issues = append(issues, "capabilities.max_read_bytes must be >= 0")
	}
	for _, cmd := range cfg.Capabilities.Commands {
		if strings.ContainsAny(cmd, "/\\") {
			issues = append(issues, fmt.Sprintf("capabilities.commands entry %q must be a basename, not a path", cmd))
		}
	}
	if len(cfg.Capabilities.AllowedUsers) == 0 {
		// Not an error: an empty allow-list means "allow all", which
		// the capability checker itself warns about at startup via an
		// audit event (spec §3, Capability grant).
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Security.Backend)) {
	case "", "os", "firecracker":
	default:
		issues = append(issues, "security.backend must be \"os\" or \"firecracker\"")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, "observability.logging.level must be debug, info, warn, or error")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Format)) {
	case "text", "json":
	default:
		issues = append(issues, "observability.logging.format must be text or json")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
