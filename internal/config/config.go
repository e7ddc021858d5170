// Package config loads Sentinel's declarative configuration document:
// a small YAML file with sections for the agent loop, the LLM
// provider, messaging connectors, control-plane security, and the
// capability grant. Every secret is referenced indirectly by
// environment variable name — the config itself never holds a
// credential value.
package config

import "strings"

// Config is the root of Sentinel's configuration document.
type Config struct {
	Agent         AgentConfig         `yaml:"agent"`
	LLM           LLMConfig           `yaml:"llm"`
	Messaging     MessagingConfig     `yaml:"messaging"`
	Security      SecurityConfig      `yaml:"security"`
	Capabilities  CapabilitiesConfig  `yaml:"capabilities"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Observability ObservabilityConfig `yaml:"observability"`
	Cron          CronConfig          `yaml:"cron"`
	Auth          AuthConfig          `yaml:"auth"`
}

// knownSections lists the top-level keys Load recognizes. Anything
// else in the document is an unknown section: warned about, not
// fatal. Keys inside a recognized section are stricter — see loader.go.
var knownSections = map[string]bool{
	"agent":         true,
	"llm":           true,
	"messaging":     true,
	"security":      true,
	"capabilities":  true,
	"persistence":   true,
	"observability": true,
	"cron":          true,
	"auth":          true,
}

// ConfigValidationError collects every validation issue found so an
// operator can fix a config in one pass instead of one error at a time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}
