package config

type AgentConfig struct {
	// Name identifies this agent instance in logs and audit events.
	Name string `yaml:"name"`

	// SystemPrompt is sent to the LLM as the system message on every turn.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxToolRounds bounds the Thinking/ToolRunning loop within one turn.
	// Default: 10.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// HistoryCap is the maximum number of messages retained per
	// conversation; oldest entries are evicted in matched pairs.
	// Default: 40.
	HistoryCap int `yaml:"history_cap"`
}
