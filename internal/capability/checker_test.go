package capability

import (
	"testing"
	"time"
)

func newTestChecker(t *testing.T, cfg GrantConfig) (*Checker, *[]string) {
	t.Helper()
	events := &[]string{}
	grant, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New grant: %v", err)
	}
	checker := NewChecker(grant, nil, func(kind, resource string, d Decision) {
		*events = append(*events, kind+" "+resource+" "+d.Reason)
	})
	return checker, events
}

func TestCheckRead_ExactAndNestedMatch(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{ReadPaths: []string{"/tmp"}})

	if d := checker.CheckRead("/tmp"); !d.Allowed {
		t.Fatalf("expected /tmp to match its own grant, got %+v", d)
	}
	if d := checker.CheckRead("/tmp/a.txt"); !d.Allowed {
		t.Fatalf("expected nested path to match, got %+v", d)
	}
}

func TestCheckRead_RejectsByteAdjacentPrefix(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{ReadPaths: []string{"/data/foo"}})

	// /data/foo_other shares a byte prefix with /data/foo but is not
	// beneath it — spec.md §4.1 and §8 require this to be denied.
	if d := checker.CheckRead("/data/foo_other"); d.Allowed {
		t.Fatalf("expected byte-adjacent path to be denied, got %+v", d)
	}
	if d := checker.CheckRead("/data/foobar"); d.Allowed {
		t.Fatalf("expected byte-adjacent path to be denied, got %+v", d)
	}
}

func TestCheckRead_DotDotEscapeDenied(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{ReadPaths: []string{"/tmp"}})

	if d := checker.CheckRead("/tmp/../etc/passwd"); d.Allowed {
		t.Fatalf("expected escaping path to be denied, got %+v", d)
	}
}

func TestCheckRead_DeniedEmitsExactlyOneEvent(t *testing.T) {
	checker, events := newTestChecker(t, GrantConfig{ReadPaths: []string{"/tmp"}})
	_ = checker.CheckRead("/etc/passwd")
	if len(*events) != 1 {
		t.Fatalf("expected exactly one audit event, got %d: %v", len(*events), *events)
	}
}

func TestCheckCommand_BasenameOnly(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{Commands: []string{"sleep"}})

	if d := checker.CheckCommand("sleep", []string{"1"}); !d.Allowed {
		t.Fatalf("expected sleep to be allowed, got %+v", d)
	}
	if d := checker.CheckCommand("/bin/sleep", []string{"1"}); d.Allowed {
		t.Fatalf("expected path-qualified command to be denied, got %+v", d)
	}
	if d := checker.CheckCommand("rm", nil); d.Allowed {
		t.Fatalf("expected ungranted command to be denied, got %+v", d)
	}
}

func TestCheckCommand_RejectsFlagArguments(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{Commands: []string{"ls"}})
	if d := checker.CheckCommand("ls", []string{"-la"}); d.Allowed {
		t.Fatalf("expected flag argument to be denied, got %+v", d)
	}
}

func TestCheckNet_ExactMatch(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{NetEndpoints: []string{"api.example.com:443"}})
	if d := checker.CheckNet("api.example.com", 443); !d.Allowed {
		t.Fatalf("expected exact endpoint match, got %+v", d)
	}
	if d := checker.CheckNet("evil.example.com", 443); d.Allowed {
		t.Fatalf("expected non-granted endpoint to be denied, got %+v", d)
	}
}

func TestCheckNet_RejectsBlockedLiteralEvenIfGranted(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{NetEndpoints: []string{"localhost:8080", "127.0.0.1:8080"}})
	if d := checker.CheckNet("localhost", 8080); d.Allowed {
		t.Fatalf("expected localhost to be denied despite grant, got %+v", d)
	}
	if d := checker.CheckNet("127.0.0.1", 8080); d.Allowed {
		t.Fatalf("expected loopback literal to be denied despite grant, got %+v", d)
	}
}

func TestCheckUser_EmptyGrantAllowsAllWithWarning(t *testing.T) {
	checker, events := newTestChecker(t, GrantConfig{})
	d := checker.CheckUser("anyone")
	if !d.Allowed || d.Reason != "empty_grant_allows_all" {
		t.Fatalf("expected allow-all-with-warning, got %+v", d)
	}
	if len(*events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(*events))
	}
}

func TestCheckUser_NonEmptyGrantIsFailClosed(t *testing.T) {
	checker, _ := newTestChecker(t, GrantConfig{AllowedUsers: []string{"alice"}})
	if d := checker.CheckUser("mallory"); d.Allowed {
		t.Fatalf("expected user outside grant to be denied, got %+v", d)
	}
	if d := checker.CheckUser("alice"); !d.Allowed {
		t.Fatalf("expected granted user to be allowed, got %+v", d)
	}
}

func TestGrant_CommandTimeoutZeroMeansDisabled(t *testing.T) {
	grant, err := New(GrantConfig{CommandTimeout: 0}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	checker := NewChecker(grant, nil, nil)
	if got := checker.CommandTimeout(); got != 0 {
		t.Fatalf("CommandTimeout() = %v, want 0 (disabled)", got)
	}
}

func TestGrant_Subset(t *testing.T) {
	process, err := New(GrantConfig{WritePaths: []string{"/tmp"}, CommandTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	required, err := New(GrantConfig{WritePaths: []string{"/data"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if process.Subset(required) {
		t.Fatal("expected manifest requiring /data to be rejected against a /tmp-only grant")
	}
}
