package git

// RebaseBranch replays taskBranch's commits from oldBase onto newBase,
// from within worktreePath. It refuses to proceed (rather than discard
// work) if the worktree has modified tracked files or a rebase is already
// in progress; conflicts and an already-in-progress rebase are surfaced
// as typed errors so callers can prompt for resolution instead of
// guessing from exit code.
func RebaseBranch(worktreePath, newBase, oldBase, taskBranch string) error {
	repo := NewRepo(worktreePath)

	dirty, err := repo.HasTrackedModifications()
	if err != nil {
		return err
	}
	if dirty {
		return &DirtyWorktreeError{WorktreePath: worktreePath}
	}

	if op, err := DetectConflictOp(worktreePath); err != nil {
		return err
	} else if op == ConflictRebase {
		return &RebaseInProgressError{WorktreePath: worktreePath}
	}

	_, err = repo.run("rebase", "--onto", newBase, oldBase, taskBranch)
	if err == nil {
		return nil
	}

	return classifyRebaseFailure(worktreePath, exitErrOutput(err))
}

// exitErrOutput extracts the combined-output text wrapped into an error by
// Repo.run's %w formatting; run already embeds the raw stderr text in the
// error string, so callers that need to classify failure text read it
// straight off Error().
func exitErrOutput(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
