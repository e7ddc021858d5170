// Package platform abstracts filesystem, process-spawn, network, and
// clock operations across two worlds: a general-purpose OS (best-
// effort sandboxing; the capability checker is the enforcement) and a
// capability-enforcing microkernel (the kernel is the enforcement; the
// checker becomes a defense-in-depth double-check). Both backends
// implement the same Backend contract — they differ in mechanism, not
// in interface (spec.md §9, Design Notes).
package platform

import (
	"context"
	"time"
)

// DirEntry describes one entry returned by ListDirectory.
type DirEntry struct {
	Name string
	Kind EntryKind
}

// EntryKind classifies a directory entry.
type EntryKind string

const (
	EntryFile  EntryKind = "file"
	EntryDir   EntryKind = "dir"
	EntryOther EntryKind = "other"
)

// CommandSpec describes a command spawn request. Env carries only the
// allowlisted variables the tool executor decided to forward
// (spec.md §4.2: cleared environment except PATH/HOME/LANG) — the
// backend never consults the ambient process environment itself.
type CommandSpec struct {
	Name    string
	Args    []string
	Env     map[string]string
	Dir     string
	Timeout time.Duration // zero means no deadline
}

// CommandHandle is the result of a completed (or timed-out) spawn.
type CommandHandle struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Backend is the contract the capability-mediated tool executor and
// skill runner spawn effects through. Implementations must not
// silently swallow context cancellation: every blocking operation
// here is a suspension point per spec.md §5 and must honor ctx.
type Backend interface {
	// Canonicalize resolves path to its absolute, symlink-resolved
	// form. It is used by the capability checker before any prefix
	// comparison (spec.md §4.1 step 1).
	Canonicalize(ctx context.Context, path string) (string, error)

	// ReadFile reads up to limit bytes starting at offset. The
	// returned bool reports whether the file contained more data than
	// was returned (truncated).
	ReadFile(ctx context.Context, path string, offset int64, limit int) ([]byte, bool, error)

	// WriteFileAtomic writes content to path via a temp-file-then-
	// rename sequence so a reader never observes a partial write.
	WriteFileAtomic(ctx context.Context, path string, content []byte) error

	// EnsureDir creates path and any missing ancestors. Callers are
	// responsible for capability-checking path before calling this —
	// the backend performs no enforcement of its own.
	EnsureDir(ctx context.Context, path string) error

	// ListDirectory returns the immediate (non-recursive) entries of
	// path.
	ListDirectory(ctx context.Context, path string) ([]DirEntry, error)

	// SpawnCommand runs spec and blocks until it exits, the deadline
	// is reached, or ctx is cancelled.
	SpawnCommand(ctx context.Context, spec CommandSpec) (*CommandHandle, error)

	// Now returns the backend's notion of the current time, letting a
	// capability-kernel backend substitute a kernel-provided monotonic
	// clock where one is available.
	Now() time.Time

	// Name identifies the backend for audit and error messages
	// ("os" or "firecracker").
	Name() string
}
