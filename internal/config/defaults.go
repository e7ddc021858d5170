package config

import "time"

func applyDefaults(cfg *Config) {
	applyAgentDefaults(&cfg.Agent)
	applyLLMDefaults(&cfg.LLM)
	applyMessagingDefaults(&cfg.Messaging)
	applyCapabilitiesDefaults(&cfg.Capabilities)
	applyObservabilityDefaults(&cfg.Observability)
	applyAuthDefaults(&cfg.Auth)
}

func applyAgentDefaults(cfg *AgentConfig) {
	if cfg.Name == "" {
		cfg.Name = "sentinel"
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = 10
	}
	if cfg.HistoryCap == 0 {
		cfg.HistoryCap = 40
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	for name, provider := range cfg.Providers {
		if provider.MaxRetries == 0 {
			provider.MaxRetries = 3
		}
		if provider.RetryDelay == 0 {
			provider.RetryDelay = time.Second
		}
		cfg.Providers[name] = provider
	}
}

func applyMessagingDefaults(cfg *MessagingConfig) {
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30 * time.Second
	}
}

func applyCapabilitiesDefaults(cfg *CapabilitiesConfig) {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.MaxReadBytes == 0 {
		cfg.MaxReadBytes = 1 << 20
	}
	if cfg.SkillsDir == "" {
		cfg.SkillsDir = "skills"
	}
}

func applyObservabilityDefaults(cfg *ObservabilityConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
}
