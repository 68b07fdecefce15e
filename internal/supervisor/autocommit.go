package supervisor

import (
	"context"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/git"
)

// DefaultCleanupCommitMessage is used for CleanupScript auto-commits when
// no more specific message applies.
const DefaultCleanupCommitMessage = "chore: cleanup script changes"

// DefaultCodingAgentCommitMessage is the fallback commit message for a
// CodingAgent run with no turn summary yet recorded.
const DefaultCodingAgentCommitMessage = "chore: coding agent changes"

// autoCommit commits, for every repo in ws with uncommitted
// changes, commit with a run-reason-appropriate message. If probing any
// repo's clean state errors, the whole step aborts without partially
// committing. Returns whether any repo was actually committed, which
// decides whether a CodingAgent's next_action gets to run.
func (s *Supervisor) autoCommit(ctx context.Context, ws WorkspaceContext, runReason gateway.RunReason, executionID string) bool {
	message := DefaultCodingAgentCommitMessage
	if runReason == gateway.RunCleanupScript {
		message = DefaultCleanupCommitMessage
	} else if turn, err := s.Gateway.GetCodingAgentTurn(ctx, executionID); err == nil && turn.Summary != "" {
		message = turn.Summary
	}

	type probe struct {
		repo  RepoContext
		dirty bool
	}
	probes := make([]probe, 0, len(ws.Repos))
	for _, r := range ws.Repos {
		dirty, err := git.NewRepo(r.WorktreePath).HasAnyChanges()
		if err != nil {
			logError(executionID, "probe worktree clean state for repo %s: %v", r.RepoID, err)
			return false
		}
		probes = append(probes, probe{repo: r, dirty: dirty})
	}

	committed := false
	for _, p := range probes {
		if !p.dirty {
			continue
		}
		ok, err := git.Commit(p.repo.WorktreePath, message)
		if err != nil {
			logError(executionID, "auto-commit repo %s: %v", p.repo.RepoID, err)
			continue
		}
		committed = committed || ok
	}
	return committed
}
