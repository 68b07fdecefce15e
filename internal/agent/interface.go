// Package agent defines the Adapter contract every executor family
// (claudecode, codex, droid, opencode) implements, plus the registry used
// to look adapters up by name.
package agent

import (
	"context"
	"io"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// SpawnedChild is the handle an adapter hands back after starting (or
// resuming) an underlying coding-agent process. The supervisor owns the
// process's lifecycle through this handle; it never shells out directly.
type SpawnedChild struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	// Wait blocks until the process exits and returns its exit code.
	Wait func() (int, error)

	// Signal sends an adapter-specific logical exit signal (SIGTERM in
	// every adapter in this module).
	// Implementations with nothing special to do may no-op.
	Signal func() error

	// ExitSignal, when non-nil, closes when the adapter observes a logical
	// completion signal out of band from OS process exit (the agent keeps
	// its process alive past the point its work is actually done).
	ExitSignal <-chan struct{}

	// Cancel requests cooperative shutdown through the adapter itself
	// rather than a process signal (opencode's Cancel closes its
	// ExitSignal). May be nil if the adapter has no such mechanism.
	Cancel func()

	// Pid is the OS process id, used for process-group kill on shutdown.
	Pid int
}

// AvailabilityInfo reports whether an adapter's underlying CLI is usable on
// this host, surfaced to the config wizard and startup diagnostics.
type AvailabilityInfo struct {
	Available bool
	Version   string
	Reason    string // populated when Available is false
}

// Adapter is the contract every executor family implements. Spawn starts a
// fresh agent process for a new conversation; SpawnFollowUp resumes one
// using the adapter's own session-identity concept (agentSessionID).
// NormalizeLogs is a long-running goroutine body: it reads the spawned
// process's raw stdout/stderr (already being pushed into store by the
// caller) and drains its own wire protocol into timeline patches pushed to
// the same store, returning when the stream ends or ctx is canceled.
type Adapter interface {
	Name() string

	Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*SpawnedChild, error)
	SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*SpawnedChild, error)

	NormalizeLogs(ctx context.Context, store *timeline.MsgStore, idx *patch.IndexProvider)

	AvailableSlashCommands(ctx context.Context, currentDir string) <-chan patch.Patch

	DefaultMCPConfigPath() string

	AvailabilityInfo(ctx context.Context) AvailabilityInfo
}
