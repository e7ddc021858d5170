package skillrunner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/sentinel/internal/capability"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, ManifestFilename), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

const weatherManifest = `
name: weather
version: "1.0.0"
description: Look up current weather for a city.
executable_path: ./run.sh
required_caps:
  net_endpoints: ["api.weather.example:443"]
optional_caps:
  read_paths: ["/tmp/weather-cache"]
parameter_schema:
  type: object
  properties:
    city:
      type: string
  required: ["city"]
`

func TestDiscoverManifestsFindsValidSkill(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "weather", weatherManifest)

	manifests, errs, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if errs != nil {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}
	if manifests[0].Name != "weather" {
		t.Errorf("Name = %q", manifests[0].Name)
	}
	if manifests[0].ToolName() != "skill-weather" {
		t.Errorf("ToolName = %q", manifests[0].ToolName())
	}
}

func TestDiscoverManifestsSkipsDirectoriesWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "not-a-skill"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	manifests, errs, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(manifests) != 0 || errs != nil {
		t.Fatalf("expected no manifests and no errors, got %d manifests, errs=%v", len(manifests), errs)
	}
}

func TestDiscoverManifestsNonexistentDirReturnsEmpty(t *testing.T) {
	manifests, errs, err := DiscoverManifests(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if manifests != nil || errs != nil {
		t.Fatalf("expected nil, nil for a nonexistent directory")
	}
}

func TestDiscoverManifestsReportsOneBadSkillWithoutFailingOthers(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "weather", weatherManifest)
	writeManifest(t, dir, "broken", "not: [valid: yaml")

	manifests, errs, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 good manifest, got %d", len(manifests))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
}

// TestValidateRequiredCapsRejectsManifestExceedingGrant exercises
// spec.md §8 scenario 6: a manifest declaring write_paths=["/data"]
// against a process grant of only ["/tmp"] must be rejected at load,
// before any session is ever spawned.
func TestValidateRequiredCapsRejectsManifestExceedingGrant(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "writer", `
name: writer
version: "1.0.0"
description: writes files
executable_path: ./run.sh
required_caps:
  write_paths: ["/data"]
parameter_schema:
  type: object
`)
	manifests, _, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}

	grant, err := capability.New(capability.GrantConfig{WritePaths: []string{"/tmp"}}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	if err := ValidateRequiredCaps(manifests[0], grant, nil); err == nil {
		t.Fatal("expected required_caps exceeding the process grant to be rejected")
	}
}

func TestValidateRequiredCapsAcceptsSubsetOfGrant(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "weather", weatherManifest)
	manifests, _, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}

	grant, err := capability.New(capability.GrantConfig{
		NetEndpoints: []string{"api.weather.example:443"},
		ReadPaths:    []string{"/tmp"},
	}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	if err := ValidateRequiredCaps(manifests[0], grant, nil); err != nil {
		t.Errorf("expected subset of grant to be accepted, got %v", err)
	}
}

func TestReducedGrantIntersectsRequiredAndOptionalWithProcessGrant(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "weather", weatherManifest)
	manifests, _, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}

	// Process grant covers the required net endpoint but not the
	// optional read path — the reduced grant must reflect that.
	grant, err := capability.New(capability.GrantConfig{
		NetEndpoints: []string{"api.weather.example:443"},
	}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	reduced, err := ReducedGrant(manifests[0], grant, nil)
	if err != nil {
		t.Fatalf("ReducedGrant: %v", err)
	}
	if !reduced.NetEndpoints["api.weather.example:443"] {
		t.Error("expected required net endpoint to survive intersection")
	}
	if len(reduced.ReadPaths) != 0 {
		t.Errorf("expected optional read path absent from process grant to be dropped, got %v", reduced.ReadPaths)
	}
}

func TestReducedGrantSubtractsNeverCaps(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "weather", `
name: weather
version: "1.0.0"
description: weather lookup
executable_path: ./run.sh
required_caps:
  net_endpoints: ["api.weather.example:443"]
never_caps:
  net_endpoints: ["api.weather.example:443"]
parameter_schema:
  type: object
`)
	manifests, _, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}

	grant, err := capability.New(capability.GrantConfig{
		NetEndpoints: []string{"api.weather.example:443"},
	}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	reduced, err := ReducedGrant(manifests[0], grant, nil)
	if err != nil {
		t.Fatalf("ReducedGrant: %v", err)
	}
	if reduced.NetEndpoints["api.weather.example:443"] {
		t.Error("expected never_caps to subtract the endpoint even though required_caps granted it")
	}
}
