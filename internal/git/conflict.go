package git

import (
	"os"
	"path/filepath"
	"strings"
)

// ConflictOp identifies which kind of in-progress operation left a
// worktree in a conflicted or half-finished state.
type ConflictOp string

const (
	ConflictNone       ConflictOp = "none"
	ConflictRebase     ConflictOp = "rebase"
	ConflictMerge      ConflictOp = "merge"
	ConflictCherryPick ConflictOp = "cherry_pick"
	ConflictRevert     ConflictOp = "revert"
)

// DetectConflictOp inspects the worktree's git directory for the marker
// files each in-progress operation leaves behind.
func DetectConflictOp(worktreePath string) (ConflictOp, error) {
	gitDir, err := NewRepo(worktreePath).GitDir()
	if err != nil {
		return ConflictNone, err
	}

	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if info, statErr := os.Stat(filepath.Join(gitDir, name)); statErr == nil && info.IsDir() {
			return ConflictRebase, nil
		}
	}
	if fileExists(filepath.Join(gitDir, "MERGE_HEAD")) {
		return ConflictMerge, nil
	}
	if fileExists(filepath.Join(gitDir, "CHERRY_PICK_HEAD")) {
		return ConflictCherryPick, nil
	}
	if fileExists(filepath.Join(gitDir, "REVERT_HEAD")) {
		return ConflictRevert, nil
	}
	return ConflictNone, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AbortConflicts resolves whatever conflict operation DetectConflictOp
// finds, choosing `git rebase --quit` over `--abort` when a rebase has no
// actually-conflicted files left in the index (metadata cleanup without
// replaying commits the caller already discarded).
func AbortConflicts(worktreePath string) error {
	repo := NewRepo(worktreePath)
	op, err := DetectConflictOp(worktreePath)
	if err != nil {
		return err
	}

	switch op {
	case ConflictRebase:
		if hasConflictedIndexEntries(repo) {
			_, err := repo.run("rebase", "--abort")
			return err
		}
		_, err := repo.run("rebase", "--quit")
		return err
	case ConflictMerge:
		_, err := repo.run("merge", "--abort")
		return err
	case ConflictCherryPick:
		_, err := repo.run("cherry-pick", "--abort")
		return err
	case ConflictRevert:
		_, err := repo.run("revert", "--abort")
		return err
	default:
		return nil
	}
}

// hasConflictedIndexEntries reports whether the index still has unmerged
// entries (status codes "UU", "AA", "DD", etc. in porcelain output).
func hasConflictedIndexEntries(repo *Repo) bool {
	out, err := repo.run("status", "--porcelain")
	if err != nil {
		return true // fail safe toward the non-destructive --abort path
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) >= 2 && (line[0] == 'U' || line[1] == 'U' || line[:2] == "AA" || line[:2] == "DD") {
			return true
		}
	}
	return false
}
