// Package capability implements the process-wide capability grant and
// the checker that mediates every effect the agent attempts: path
// reads/writes, command execution, and network connections.
package capability

import (
	"path/filepath"
	"strings"
	"time"
)

// Grant is the process-wide, read-mostly policy derived from
// configuration. It is built once at startup by New and thereafter
// immutable for the life of the process — no lock is needed to read
// it concurrently.
type Grant struct {
	ReadPaths      []string
	WritePaths     []string
	Commands       map[string]bool
	NetEndpoints   map[string]bool
	AllowedUsers   map[string]bool
	AllowAllUsers  bool
	CommandTimeout time.Duration
}

// GrantConfig is the subset of configuration that produces a Grant.
// Paths are canonicalized by New before being stored.
type GrantConfig struct {
	ReadPaths      []string
	WritePaths     []string
	Commands       []string
	NetEndpoints   []string
	AllowedUsers   []string
	CommandTimeout time.Duration
}

// New builds an immutable Grant from configuration. Path prefixes are
// canonicalized (absolute, symlink-resolved where possible) so every
// later comparison in Checker is a plain string operation.
func New(cfg GrantConfig, canonicalize func(string) (string, error)) (*Grant, error) {
	g := &Grant{
		Commands:       map[string]bool{},
		NetEndpoints:   map[string]bool{},
		AllowedUsers:   map[string]bool{},
		CommandTimeout: cfg.CommandTimeout,
	}
	if g.CommandTimeout < 0 {
		g.CommandTimeout = 0
	}

	for _, p := range cfg.ReadPaths {
		canon, err := canonicalizeOrLexical(p, canonicalize)
		if err != nil {
			return nil, err
		}
		g.ReadPaths = append(g.ReadPaths, canon)
	}
	for _, p := range cfg.WritePaths {
		canon, err := canonicalizeOrLexical(p, canonicalize)
		if err != nil {
			return nil, err
		}
		g.WritePaths = append(g.WritePaths, canon)
	}
	for _, c := range cfg.Commands {
		g.Commands[c] = true
	}
	for _, e := range cfg.NetEndpoints {
		g.NetEndpoints[strings.ToLower(e)] = true
	}
	if len(cfg.AllowedUsers) == 0 {
		// Open Question (spec.md §9): empty allowed_users means allow
		// all, with a warning — see DESIGN.md for the rationale.
		g.AllowAllUsers = true
	} else {
		for _, u := range cfg.AllowedUsers {
			g.AllowedUsers[u] = true
		}
	}
	return g, nil
}

// canonicalizeOrLexical resolves path using the platform backend's
// canonicalize operation; if that fails (e.g. nonexistent parent) it
// falls back to lexical Clean of . / .. segments, per spec.md §4.1
// step 1. A path that still contains an unresolved ".." after lexical
// cleaning is rejected outright.
func canonicalizeOrLexical(path string, canonicalize func(string) (string, error)) (string, error) {
	if canonicalize != nil {
		if canon, err := canonicalize(path); err == nil {
			return canon, nil
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(abs)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &InvalidGrantEntryError{Path: path}
	}
	return clean, nil
}

// InvalidGrantEntryError reports a grant path entry that cannot be
// resolved to a safe absolute form.
type InvalidGrantEntryError struct {
	Path string
}

func (e *InvalidGrantEntryError) Error() string {
	return "invalid grant path entry: " + e.Path
}

// Subset reports whether required is fully covered by this grant: every
// read path, write path, command, and net endpoint in required must
// also be present in g. Used to validate a skill manifest's
// required_caps against the process grant (spec.md §3, Skill manifest).
func (g *Grant) Subset(required *Grant) bool {
	if required == nil {
		return true
	}
	for _, p := range required.ReadPaths {
		if !g.coversPrefix(g.ReadPaths, p) {
			return false
		}
	}
	for _, p := range required.WritePaths {
		if !g.coversPrefix(g.WritePaths, p) {
			return false
		}
	}
	for c := range required.Commands {
		if !g.Commands[c] {
			return false
		}
	}
	for e := range required.NetEndpoints {
		if !g.NetEndpoints[e] {
			return false
		}
	}
	return true
}

func (g *Grant) coversPrefix(prefixes []string, candidate string) bool {
	for _, p := range prefixes {
		if matchesPrefix(p, candidate) {
			return true
		}
	}
	return false
}

// Intersect returns a new Grant containing exactly the capabilities
// that are present in both g and other: used by the skill runner to
// compute required_caps ∪ optional_caps intersected with the process
// grant (spec.md §4.3 Launch).
func (g *Grant) Intersect(other *Grant) *Grant {
	out := &Grant{
		Commands:       map[string]bool{},
		NetEndpoints:   map[string]bool{},
		AllowedUsers:   g.AllowedUsers,
		AllowAllUsers:  g.AllowAllUsers,
		CommandTimeout: g.CommandTimeout,
	}
	for _, p := range other.ReadPaths {
		if g.coversPrefix(g.ReadPaths, p) {
			out.ReadPaths = append(out.ReadPaths, p)
		}
	}
	for _, p := range other.WritePaths {
		if g.coversPrefix(g.WritePaths, p) {
			out.WritePaths = append(out.WritePaths, p)
		}
	}
	for c := range other.Commands {
		if g.Commands[c] {
			out.Commands[c] = true
		}
	}
	for e := range other.NetEndpoints {
		if g.NetEndpoints[e] {
			out.NetEndpoints[e] = true
		}
	}
	return out
}
