package git

import (
	"fmt"
	"strings"
)

// MergeConflictsError is raised by RebaseBranch when the onto-rebase
// leaves conflicted files behind.
type MergeConflictsError struct {
	Message         string
	ConflictedFiles []string
}

func (e *MergeConflictsError) Error() string {
	return fmt.Sprintf("%s (conflicted files: %v)", e.Message, e.ConflictedFiles)
}

// RebaseInProgressError is raised when a rebase is requested but one is
// already in progress in the target worktree.
type RebaseInProgressError struct {
	WorktreePath string
}

func (e *RebaseInProgressError) Error() string {
	return fmt.Sprintf("rebase already in progress in %s", e.WorktreePath)
}

// BranchesDivergedError is raised by MergeChanges when the base branch has
// advanced ahead of the task branch being merged.
type BranchesDivergedError struct {
	BaseBranch string
	TaskBranch string
}

func (e *BranchesDivergedError) Error() string {
	return fmt.Sprintf("%s has diverged ahead of %s", e.BaseBranch, e.TaskBranch)
}

// ForcePushRequiredError is raised by PushToRemote when a non-force push
// is rejected as non-fast-forward.
type ForcePushRequiredError struct {
	Branch string
}

func (e *ForcePushRequiredError) Error() string {
	return fmt.Sprintf("push of %s rejected (non-fast-forward); retry with force=true", e.Branch)
}

// DirtyWorktreeError is raised when an operation requiring a clean
// worktree (rebase, push, merge) finds local modifications instead.
type DirtyWorktreeError struct {
	WorktreePath string
}

func (e *DirtyWorktreeError) Error() string {
	return fmt.Sprintf("worktree %s has uncommitted tracked changes", e.WorktreePath)
}

// classifyRebaseFailure turns raw `git rebase` stderr into a typed error
// per the documented classification rules.
func classifyRebaseFailure(worktreePath, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "could not apply"),
		strings.Contains(lower, "conflict"),
		strings.Contains(lower, "resolve all conflicts"):
		return &MergeConflictsError{Message: "rebase produced conflicts", ConflictedFiles: extractConflictedFiles(stderr)}
	case strings.Contains(lower, "rebase in progress"), strings.Contains(lower, "already in progress"):
		return &RebaseInProgressError{WorktreePath: worktreePath}
	default:
		return fmt.Errorf("rebase failed: %s", stderr)
	}
}

// extractConflictedFiles scans rebase/merge stderr for lines of the shape
// "CONFLICT (content): Merge conflict in <path>".
func extractConflictedFiles(stderr string) []string {
	const marker = "Merge conflict in "
	var files []string
	for _, line := range strings.Split(stderr, "\n") {
		if idx := strings.Index(line, marker); idx >= 0 {
			files = append(files, strings.TrimSpace(line[idx+len(marker):]))
		}
	}
	return files
}
