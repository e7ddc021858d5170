package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, expands, and validates Sentinel's configuration document
// at path.
//
// Decoding is deliberately two-pass. The first pass decodes into a
// generic map so unrecognized top-level sections can be warned about
// rather than rejected outright — a renamed or future section should
// not stop the process from starting. The second pass re-decodes only
// the recognized sections, this time with KnownFields enabled, so a
// typo inside a section an operator does control (e.g.
// "capabilities.read_pahts") is a hard error instead of a silently
// ignored field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	known := map[string]yaml.Node{}
	for key, node := range raw {
		if knownSections[key] {
			known[key] = node
			continue
		}
		slog.Warn("config: ignoring unknown section", "section", key)
	}

	remainder, err := yaml.Marshal(known)
	if err != nil {
		return nil, fmt.Errorf("config: internal re-encode: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(remainder)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ResolveSecret reads the environment variable named by envVar. An
// empty envVar means the secret is simply not configured — callers
// decide whether that's fatal.
func ResolveSecret(envVar string) string {
	if strings.TrimSpace(envVar) == "" {
		return ""
	}
	return os.Getenv(envVar)
}
