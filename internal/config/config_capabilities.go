package config

import "time"

// CapabilitiesConfig declares the process-wide capability grant: the
// only authority the agent and its tools have over the host.
type CapabilitiesConfig struct {
	ReadPaths  []string `yaml:"read_paths"`
	WritePaths []string `yaml:"write_paths"`

	// Commands lists allowed basenames, no path components or shell
	// metacharacters.
	Commands []string `yaml:"commands"`

	// NetEndpoints lists allowed "host:port" pairs. Optional per backend.
	NetEndpoints []string `yaml:"net_endpoints"`

	// AllowedUsers lists permitted messaging user identifiers. An empty
	// list allows all users, and the capability checker emits a warning
	// audit event at startup when this is left empty.
	AllowedUsers []string `yaml:"allowed_users"`

	// CommandTimeout bounds run_command and skill subprocess execution.
	// Default: 30s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MaxReadBytes caps read_file results and write_file content.
	// Default: 1 MiB.
	MaxReadBytes int64 `yaml:"max_read_bytes"`

	SkillsDir string `yaml:"skills_dir"`
}
