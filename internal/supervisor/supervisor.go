// Package supervisor implements the Execution Supervisor: it owns live
// child-process handles, drives the per-ExecutionProcess state machine
// from spawn through finalization, races OS exit against an adapter's
// logical exit_signal, chains follow-up actions, and reconciles orphaned
// processes across restarts: one local process per ExecutionProcess,
// racing OS Wait() against an adapter-provided logical-exit signal.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/andywolf/agentium-supervisor/internal/agent"
	"github.com/andywolf/agentium-supervisor/internal/approval"
	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/normalizer"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// SpawnTimeout bounds how long Spawn/SpawnFollowUp may take before the
// process is marked Failed.
const SpawnTimeout = 30 * time.Second

// GraceTimeout bounds how long StopExecution and the exit monitor wait for
// cooperative shutdown before force-killing the process group.
const GraceTimeout = 5 * time.Second

// PollInterval is a polling period for the OS process handle. The exit
// monitor does not poll: it blocks on the child's Wait in a goroutine while
// racing the adapter's ExitSignal.
const PollInterval = 250 * time.Millisecond

// SinkDir is where per-execution raw log JSONL files are written by
// default; callers may point Supervisor.LogDir elsewhere.
const SinkDir = "logs"

// handle is everything the supervisor keeps in memory for one live
// ExecutionProcess: the spawned child, its MsgStore, the normalizer
// runtime draining it, and cancellation plumbing. Removed once the exit
// monitor finishes.
type handle struct {
	child   *agent.SpawnedChild
	store   *timeline.MsgStore
	runtime *normalizer.NormalizerRuntime
	cancel  context.CancelFunc
	done    chan struct{} // closed when the exit monitor returns
}

// Notifier fires the user-visible notification finalizeTask sends. The
// UI/notification mechanism is an external collaborator; this is its
// typed hook.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// NoopNotifier discards notifications, used when none is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, string) error { return nil }

// GitHubTokenSource mints the short-lived installation token passed to
// executors as GITHUB_TOKEN. Satisfied by *internal/github.TokenManager;
// left nil when no GitHub App credentials are configured.
type GitHubTokenSource interface {
	Token() (string, error)
}

// Supervisor owns every live ExecutionProcess's child handle and drives
// its lifecycle. All shared state is reached through typed concurrent
// maps keyed by execution id; Start holds no long-lived locks.
type Supervisor struct {
	Gateway      gateway.Gateway
	Approval     approval.Requester
	Notify       Notifier
	LogDir       string
	GitHubTokens GitHubTokenSource

	mu      sync.RWMutex
	handles map[string]*handle
	indexes map[string]*patch.IndexProvider
}

// New constructs a Supervisor. notifier may be nil (defaults to NoopNotifier).
// broker may be a live *approval.Broker when an interactive UI or
// automation policy is wired to call Resolve, or approval.NoopBroker{}
// when nothing ever will — the approval layer is optional.
func New(gw gateway.Gateway, broker approval.Requester, notifier Notifier, logDir string) *Supervisor {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if logDir == "" {
		logDir = SinkDir
	}
	return &Supervisor{
		Gateway:  gw,
		Approval: broker,
		Notify:   notifier,
		LogDir:   logDir,
		handles:  make(map[string]*handle),
		indexes:  make(map[string]*patch.IndexProvider),
	}
}

func (s *Supervisor) setHandle(id string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[id] = h
}

func (s *Supervisor) getHandle(id string) (*handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

func (s *Supervisor) removeHandle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
	delete(s.indexes, id)
}

// LiveExecutionIDs returns a snapshot of every ExecutionProcess id the
// supervisor currently has a live handle for, used by Shutdown to stop
// them all on process exit.
func (s *Supervisor) LiveExecutionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

// Store returns the live MsgStore for a running ExecutionProcess, for
// subscribers (e.g. a WebSocket route) to attach to. ok is false once the
// process has been reaped from the handle table.
func (s *Supervisor) Store(executionID string) (*timeline.MsgStore, bool) {
	h, ok := s.getHandle(executionID)
	if !ok {
		return nil, false
	}
	return h.store, true
}

func logInfo(executionID, format string, args ...interface{}) {
	log.Printf("supervisor[%s]: "+format, append([]interface{}{executionID}, args...)...)
}

func logError(executionID, format string, args ...interface{}) {
	log.Printf("supervisor[%s]: ERROR: "+format, append([]interface{}{executionID}, args...)...)
}
