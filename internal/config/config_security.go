package config

// SecurityConfig configures the control plane that exposes Sentinel's
// own HTTP surface (health, metrics, skills list) — distinct from
// CapabilitiesConfig, which governs what the agent is allowed to do
// to the host on the user's behalf.
type SecurityConfig struct {
	// ControlPlaneAddr is the listen address for the HTTP control
	// plane. Empty disables it.
	ControlPlaneAddr string `yaml:"control_plane_addr"`

	// Backend selects the platform backend used for canonicalization,
	// process spawning, and (on capability-kernel hosts) reduced-grant
	// subprocess launch. "os" or "firecracker".
	Backend string `yaml:"backend"`
}
