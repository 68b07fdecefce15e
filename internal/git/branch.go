package git

import "fmt"

// RenameLocalBranch renames oldName to newName in worktreePath. Rename is
// refused outright if newName is empty, the worktree already has a branch
// of that name, or a rebase is in progress there (renaming out from under
// an in-flight rebase would corrupt it).
func RenameLocalBranch(worktreePath, oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("git: new branch name must not be empty")
	}

	repo := NewRepo(worktreePath)

	if repo.BranchExists(newName) {
		return fmt.Errorf("git: branch %q already exists in %s", newName, worktreePath)
	}

	if op, err := DetectConflictOp(worktreePath); err != nil {
		return err
	} else if op == ConflictRebase {
		return &RebaseInProgressError{WorktreePath: worktreePath}
	}

	_, err := repo.run("branch", "-m", oldName, newName)
	return err
}
