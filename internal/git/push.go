package git

import "strings"

// PushToRemote pushes branchName from worktreePath to its resolved remote.
// It requires a clean worktree, preferring remote.pushDefault and falling
// back to the first configured remote. A non-fast-forward rejection is
// surfaced as ForcePushRequiredError rather than a generic error so
// callers can re-prompt with force=true instead of guessing from text.
func PushToRemote(worktreePath, branchName string, force bool) error {
	repo := NewRepo(worktreePath)

	dirty, err := repo.HasAnyChanges()
	if err != nil {
		return err
	}
	if dirty {
		return &DirtyWorktreeError{WorktreePath: worktreePath}
	}

	remote, err := resolveDefaultRemote(repo)
	if err != nil {
		return err
	}

	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, remote, branchName)

	if _, err := repo.run(args...); err != nil {
		if isNonFastForward(err.Error()) {
			return &ForcePushRequiredError{Branch: branchName}
		}
		return err
	}

	// Keep the local remote-tracking ref and upstream in sync so ahead/
	// behind calculations are accurate without a subsequent fetch.
	repo.runIgnoreError("update-ref", "refs/remotes/"+remote+"/"+branchName, branchName)
	repo.runIgnoreError("branch", "--set-upstream-to="+remote+"/"+branchName, branchName)
	return nil
}

func resolveDefaultRemote(repo *Repo) (string, error) {
	if out, err := repo.run("config", "remote.pushDefault"); err == nil && out != "" {
		return out, nil
	}
	out, err := repo.run("remote")
	if err != nil {
		return "", err
	}
	remotes := strings.Fields(out)
	if len(remotes) == 0 {
		return "", &NoRemoteConfiguredError{}
	}
	return remotes[0], nil
}

func isNonFastForward(errText string) bool {
	lower := strings.ToLower(errText)
	return strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "fetch first") ||
		strings.Contains(lower, "rejected")
}

// NoRemoteConfiguredError is raised when a worktree has no git remote at
// all, so there is nothing to resolve a push destination to.
type NoRemoteConfiguredError struct{}

func (e *NoRemoteConfiguredError) Error() string { return "no remote configured" }
