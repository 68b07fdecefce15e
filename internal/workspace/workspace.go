// Package workspace materializes and reclaims the on-disk directories an
// execution runs in: one git worktree per configured repo, auxiliary
// copied files, and stitched CLAUDE.md/AGENTS.md import files.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/agentium-supervisor/internal/git"
)

// maxConcurrentWorktrees bounds how many repos in a single workspace are
// materialized at once; large multi-repo workspaces still serialize past
// this many concurrent `git worktree add` subprocesses.
const maxConcurrentWorktrees = 4

// RepoTarget is one repo participating in a workspace: its on-disk
// location plus the branch the task branch rebases onto and merges into.
type RepoTarget struct {
	Name         string
	RepoPath     string
	TargetBranch string
	CopyFiles    []string
}

// CreateWorkspace materializes workspaceDir/<repo.Name> as a git worktree
// on branch for every repo, branching each repo's copy of branch from
// that repo's own target branch. Branch name collision across repos is
// expected: each repo has its own ref namespace.
func CreateWorkspace(workspaceDir, branch string, repos []RepoTarget) error {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("workspace: create workspace dir: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentWorktrees)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			worktreePath := filepath.Join(workspaceDir, repo.Name)
			base := repo.TargetBranch
			if base == "" {
				base = "HEAD"
			}
			if err := git.EnsureWorktreeExistsFromBase(repo.RepoPath, branch, worktreePath, base); err != nil {
				return fmt.Errorf("workspace: repo %s: %w", repo.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := stitchConfigFiles(workspaceDir, repos, "CLAUDE.md"); err != nil {
		return err
	}
	if err := stitchConfigFiles(workspaceDir, repos, "AGENTS.md"); err != nil {
		return err
	}

	return nil
}

// EnsureWorkspaceExists is CreateWorkspace's idempotent counterpart:
// missing worktrees are materialized, existing ones are left untouched,
// and the workspace directory's modification time is bumped so orphan
// sweeps treat it as recently used.
func EnsureWorkspaceExists(workspaceDir, branch string, repos []RepoTarget) error {
	if err := CreateWorkspace(workspaceDir, branch, repos); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(workspaceDir, now, now)
}

// CleanupWorkspace removes every repo worktree under workspaceDir and
// then the workspace directory itself. A failure to remove one repo's
// worktree does not stop the others; all errors are joined.
func CleanupWorkspace(workspaceDir string, repos []RepoTarget) error {
	var errs []error
	for _, repo := range repos {
		worktreePath := filepath.Join(workspaceDir, repo.Name)
		if err := git.CleanupWorktree(repo.RepoPath, worktreePath); err != nil {
			errs = append(errs, fmt.Errorf("workspace: repo %s: %w", repo.Name, err))
		}
	}

	if err := os.RemoveAll(workspaceDir); err != nil {
		errs = append(errs, fmt.Errorf("workspace: remove workspace dir: %w", err))
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
