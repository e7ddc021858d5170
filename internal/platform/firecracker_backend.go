package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/sentinel/internal/platform/firecracker"
)

// FirecrackerBackend implements Backend with hard isolation: every
// SpawnCommand call runs inside a Firecracker microVM leased from a
// warm pool, per spec.md §9's "capability-based microkernel" world —
// the VM boundary, not the capability checker, is what actually stops
// an escaped process from touching the host. Filesystem and directory
// operations still run against the host, not inside the VM, and
// nothing a command writes in the guest is synced back; this matches how the teacher's own
// sandbox.Executor draws the line between host-side bookkeeping and
// guest-side execution.
type FirecrackerBackend struct {
	os     *OSBackend
	fc     *firecracker.Backend
	config *firecracker.BackendConfig
}

// NewFirecrackerBackend starts the VM pool described by config. It
// fails at construction time if the firecracker binary, kernel image,
// or KVM device are missing — a hard-isolation deployment that can't
// actually isolate should refuse to start rather than silently fall
// back to best-effort (process exit code 3, spec.md §6).
func NewFirecrackerBackend(ctx context.Context, config *firecracker.BackendConfig) (*FirecrackerBackend, error) {
	if err := firecracker.CheckRequirements(); err != nil {
		return nil, fmt.Errorf("firecracker requirements: %w", err)
	}
	if config == nil {
		config = firecracker.DefaultBackendConfig()
	}
	backend, err := firecracker.NewBackend(config)
	if err != nil {
		return nil, fmt.Errorf("start firecracker backend: %w", err)
	}
	if err := backend.Start(ctx); err != nil {
		return nil, fmt.Errorf("start VM pool: %w", err)
	}
	return &FirecrackerBackend{os: NewOSBackend(), fc: backend, config: config}, nil
}

func (b *FirecrackerBackend) Name() string { return "firecracker" }

func (b *FirecrackerBackend) Now() time.Time { return time.Now() }

// Canonicalize, ReadFile, WriteFileAtomic, and ListDirectory operate
// on the host-visible workspace; the capability checker's prefix
// matching is unaffected by which backend is active (spec.md §9: the
// two backends differ in mechanism, not contract).
func (b *FirecrackerBackend) Canonicalize(ctx context.Context, path string) (string, error) {
	return b.os.Canonicalize(ctx, path)
}

func (b *FirecrackerBackend) ReadFile(ctx context.Context, path string, offset int64, limit int) ([]byte, bool, error) {
	return b.os.ReadFile(ctx, path, offset, limit)
}

func (b *FirecrackerBackend) WriteFileAtomic(ctx context.Context, path string, content []byte) error {
	return b.os.WriteFileAtomic(ctx, path, content)
}

func (b *FirecrackerBackend) EnsureDir(ctx context.Context, path string) error {
	return b.os.EnsureDir(ctx, path)
}

func (b *FirecrackerBackend) ListDirectory(ctx context.Context, path string) ([]DirEntry, error) {
	return b.os.ListDirectory(ctx, path)
}

// SpawnCommand runs spec inside a leased microVM. name+args is joined
// into a single shell-quoted command line — the guest-agent vsock
// protocol executes one bash -c command, not an argv vector, so the
// command is expressed in the guest's terms while the capability
// checker has already validated it in the host's terms (name basename
// + flagless args) before this is ever called. spec.Dir is not passed
// through: the guest always runs in its own /workspace, which Reset
// wipes when the VM returns to the pool. A zero spec.Timeout sets no
// host-side deadline.
func (b *FirecrackerBackend) SpawnCommand(ctx context.Context, spec CommandSpec) (*CommandHandle, error) {
	timeoutSeconds := int(spec.Timeout / time.Second)
	if spec.Timeout > 0 && timeoutSeconds == 0 {
		timeoutSeconds = 1
	}

	params := &firecracker.ExecuteParams{
		Command: shellQuoteCommand(spec.Name, spec.Args),
		Timeout: timeoutSeconds,
	}

	result, err := b.fc.Run(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("firecracker spawn %s: %w", spec.Name, err)
	}

	return &CommandHandle{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		TimedOut: result.Timeout,
	}, nil
}

// Close releases the VM pool.
func (b *FirecrackerBackend) Close() error {
	return b.fc.Close()
}

func shellQuoteCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
