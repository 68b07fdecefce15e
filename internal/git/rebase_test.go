package git

import (
	"errors"
	"path/filepath"
	"testing"
)

func setupRebaseScenario(t *testing.T) (repo, taskWorktree string) {
	t.Helper()
	repo = initRepo(t)
	taskWorktree = filepath.Join(t.TempDir(), "task")
	if err := EnsureWorktreeExists(repo, "task", taskWorktree); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}
	writeFile(t, filepath.Join(taskWorktree, "feature.txt"), "feature work\n")
	runGit(t, taskWorktree, "add", "-A")
	runGit(t, taskWorktree, "commit", "-q", "-m", "add feature")
	return repo, taskWorktree
}

func TestRebaseBranch_Success(t *testing.T) {
	repo, taskWorktree := setupRebaseScenario(t)

	writeFile(t, filepath.Join(repo, "base-change.txt"), "unrelated base change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "advance main")

	if err := RebaseBranch(taskWorktree, "main", "main~1", "task"); err != nil {
		t.Fatalf("RebaseBranch: %v", err)
	}
}

func TestRebaseBranch_RefusesOnDirtyTrackedFile(t *testing.T) {
	_, taskWorktree := setupRebaseScenario(t)
	writeFile(t, filepath.Join(taskWorktree, "feature.txt"), "dirty, uncommitted\n")

	err := RebaseBranch(taskWorktree, "main", "main", "task")
	var dirtyErr *DirtyWorktreeError
	if !errors.As(err, &dirtyErr) {
		t.Fatalf("expected DirtyWorktreeError, got %v", err)
	}
}

func TestRebaseBranch_ConflictClassified(t *testing.T) {
	repo, taskWorktree := setupRebaseScenario(t)

	// Conflicting change to the same file on main.
	writeFile(t, filepath.Join(repo, "feature.txt"), "conflicting base change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "conflicting main change")

	err := RebaseBranch(taskWorktree, "main", "main~1", "task")
	var conflictErr *MergeConflictsError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected MergeConflictsError, got %v", err)
	}

	op, detectErr := DetectConflictOp(taskWorktree)
	if detectErr != nil {
		t.Fatalf("DetectConflictOp: %v", detectErr)
	}
	if op != ConflictRebase {
		t.Errorf("conflict op = %v, want rebase (left for caller to resolve)", op)
	}

	// Clean up so TempDir removal doesn't race a lingering rebase state.
	if err := AbortConflicts(taskWorktree); err != nil {
		t.Fatalf("AbortConflicts: %v", err)
	}
}
