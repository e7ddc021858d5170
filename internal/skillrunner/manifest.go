// Package skillrunner discovers skill manifests, validates their
// declared capabilities against the process grant, and dispatches
// tool calls to skill subprocesses over a line-framed JSON protocol
// (spec.md §4.3, §6). It implements agent.ToolDispatcher so it can be
// chained after the built-in registry.
package skillrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/sentinel/internal/capability"
)

// ManifestFilename is the expected manifest name inside each skill's
// directory, one subdirectory per skill beneath the configured skills
// root — the same one-skill-per-subdirectory layout as the teacher's
// internal/skills/discovery.go, with a declarative YAML manifest in
// place of its SKILL.md frontmatter-plus-markdown format, since this
// design's manifest carries capability grants rather than prose.
const ManifestFilename = "skill.yaml"

// CapsSpec is the YAML shape of a capability subset inside a
// manifest's required_caps / optional_caps / never_caps. It mirrors
// capability.GrantConfig's path/command/net fields only — manifests
// never declare allowed_users or command_timeout, which are
// process-wide concerns.
type CapsSpec struct {
	ReadPaths    []string `yaml:"read_paths"`
	WritePaths   []string `yaml:"write_paths"`
	Commands     []string `yaml:"commands"`
	NetEndpoints []string `yaml:"net_endpoints"`
}

func (c *CapsSpec) orEmpty() *CapsSpec {
	if c == nil {
		return &CapsSpec{}
	}
	return c
}

func mergeCaps(a, b *CapsSpec) capability.GrantConfig {
	a, b = a.orEmpty(), b.orEmpty()
	return capability.GrantConfig{
		ReadPaths:    append(append([]string{}, a.ReadPaths...), b.ReadPaths...),
		WritePaths:   append(append([]string{}, a.WritePaths...), b.WritePaths...),
		Commands:     append(append([]string{}, a.Commands...), b.Commands...),
		NetEndpoints: append(append([]string{}, a.NetEndpoints...), b.NetEndpoints...),
	}
}

// Manifest is a skill's declarative description: {name, version,
// required_caps, optional_caps, never_caps, parameter_schema,
// executable_path} per spec.md §3.
type Manifest struct {
	Name            string    `yaml:"name"`
	Version         string    `yaml:"version"`
	Description     string    `yaml:"description"`
	RequiredCaps    *CapsSpec `yaml:"required_caps"`
	OptionalCaps    *CapsSpec `yaml:"optional_caps"`
	NeverCaps       *CapsSpec `yaml:"never_caps"`
	ParameterSchema yaml.Node `yaml:"parameter_schema"`
	ExecutablePath  string    `yaml:"executable_path"`

	// Dir is the skill's directory, set by the loader rather than the
	// manifest file itself — it anchors ExecutablePath (if relative)
	// and the per-skill scratch area.
	Dir string `yaml:"-"`
}

// ToolName is the name exposed to the LLM: the skill name prefixed to
// avoid collision with the four built-ins (spec.md §4.3).
func (m *Manifest) ToolName() string {
	return "skill-" + m.Name
}

// ResolvedExecutable returns ExecutablePath anchored at Dir when it is
// not already absolute.
func (m *Manifest) ResolvedExecutable() string {
	if filepath.IsAbs(m.ExecutablePath) {
		return m.ExecutablePath
	}
	return filepath.Join(m.Dir, m.ExecutablePath)
}

// ParameterSchemaJSON re-renders the parsed YAML parameter_schema node
// as JSON, the form both the LLM tool definition and the jsonschema
// validator expect.
func (m *Manifest) ParameterSchemaJSON() ([]byte, error) {
	var decoded any
	if err := m.ParameterSchema.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("skillrunner: decode parameter_schema: %w", err)
	}
	return json.Marshal(decoded)
}

// nameValid matches the teacher's skill-name format check in
// internal/skills/parser.go ValidateSkill: lowercase alphanumeric with
// hyphens, no spaces.
func nameValid(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// ParseManifestFile reads and validates the manifest at path.
func ParseManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skillrunner: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("skillrunner: parse manifest: %w", err)
	}
	m.Dir = filepath.Dir(path)

	if !nameValid(m.Name) {
		return nil, fmt.Errorf("skillrunner: invalid skill name %q: lowercase alphanumeric with hyphens only", m.Name)
	}
	if m.ExecutablePath == "" {
		return nil, fmt.Errorf("skillrunner: skill %q: executable_path is required", m.Name)
	}
	return &m, nil
}

// DiscoverManifests scans dir for one subdirectory per skill, each
// containing a skill.yaml. Parse errors for one skill are returned in
// errs (keyed by directory) rather than aborting the whole scan, so a
// single malformed skill cannot take down discovery for the rest —
// the same posture as LocalSource.Discover in the teacher, which logs
// and skips rather than failing the directory walk.
func DiscoverManifests(dir string) (manifests []*Manifest, errs map[string]error, err error) {
	info, statErr := os.Stat(dir)
	if os.IsNotExist(statErr) {
		return nil, nil, nil
	}
	if statErr != nil {
		return nil, nil, fmt.Errorf("skillrunner: stat skills dir: %w", statErr)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("skillrunner: not a directory: %s", dir)
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		return nil, nil, fmt.Errorf("skillrunner: read skills dir: %w", readErr)
	}

	errs = make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(skillDir, ManifestFilename)
		if _, statErr := os.Stat(manifestPath); os.IsNotExist(statErr) {
			continue
		}

		m, parseErr := ParseManifestFile(manifestPath)
		if parseErr != nil {
			errs[skillDir] = parseErr
			continue
		}
		manifests = append(manifests, m)
	}
	if len(errs) == 0 {
		errs = nil
	}
	return manifests, errs, nil
}

// ValidateRequiredCaps rejects a manifest whose required_caps is not a
// subset of the process grant — spec.md §3's "a manifest is rejected
// at load time if required_caps is not a subset of the process
// grant", exercised by scenario 6 in spec.md §8 (write_paths=["/data"]
// against a grant of only ["/tmp"]).
func ValidateRequiredCaps(m *Manifest, processGrant *capability.Grant, canonicalize func(string) (string, error)) error {
	requiredCfg := mergeCaps(m.RequiredCaps, nil)
	required, err := capability.New(requiredCfg, canonicalize)
	if err != nil {
		return fmt.Errorf("skillrunner: skill %q: invalid required_caps: %w", m.Name, err)
	}
	if !processGrant.Subset(required) {
		return fmt.Errorf("skillrunner: skill %q rejected: required_caps exceeds process grant", m.Name)
	}
	return nil
}

// ReducedGrant computes the capability set a skill session actually
// launches with: (required_caps ∪ optional_caps) ∩ process grant,
// per spec.md §4.3 Launch, then subtracts never_caps so a manifest
// author's explicit exclusion always wins even if the union would
// otherwise have covered it.
func ReducedGrant(m *Manifest, processGrant *capability.Grant, canonicalize func(string) (string, error)) (*capability.Grant, error) {
	unionCfg := mergeCaps(m.RequiredCaps, m.OptionalCaps)
	union, err := capability.New(unionCfg, canonicalize)
	if err != nil {
		return nil, fmt.Errorf("skillrunner: skill %q: invalid caps: %w", m.Name, err)
	}

	reduced := processGrant.Intersect(union)

	if m.NeverCaps != nil {
		neverCfg := mergeCaps(m.NeverCaps, nil)
		never, err := capability.New(neverCfg, canonicalize)
		if err != nil {
			return nil, fmt.Errorf("skillrunner: skill %q: invalid never_caps: %w", m.Name, err)
		}
		reduced = subtractGrant(reduced, never)
	}
	return reduced, nil
}

// subtractGrant removes every entry of never from g, returning a new
// Grant. Path entries are removed by exact canonical-string match
// (never_caps is expected to name the same prefixes the manifest used
// elsewhere, not arbitrary sub-paths).
func subtractGrant(g, never *capability.Grant) *capability.Grant {
	out := &capability.Grant{
		Commands:       map[string]bool{},
		NetEndpoints:   map[string]bool{},
		AllowedUsers:   g.AllowedUsers,
		AllowAllUsers:  g.AllowAllUsers,
		CommandTimeout: g.CommandTimeout,
	}
	neverReadPaths := toSet(never.ReadPaths)
	neverWritePaths := toSet(never.WritePaths)

	for _, p := range g.ReadPaths {
		if !neverReadPaths[p] {
			out.ReadPaths = append(out.ReadPaths, p)
		}
	}
	for _, p := range g.WritePaths {
		if !neverWritePaths[p] {
			out.WritePaths = append(out.WritePaths, p)
		}
	}
	for c := range g.Commands {
		if !never.Commands[c] {
			out.Commands[c] = true
		}
	}
	for e := range g.NetEndpoints {
		if !never.NetEndpoints[e] {
			out.NetEndpoints[e] = true
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

