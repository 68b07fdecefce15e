package git

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureWorktreeExists_CreatesNewWorktree(t *testing.T) {
	repo := initRepo(t)
	wtPath := filepath.Join(t.TempDir(), "task-1")

	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wtPath, "README.md")); err != nil {
		t.Errorf("expected worktree to contain checked-out files: %v", err)
	}

	branch := runGit(t, wtPath, "rev-parse", "--abbrev-ref", "HEAD")
	if got := strings.TrimSpace(branch); got != "task-1" {
		t.Errorf("checked-out branch = %q, want %q", got, "task-1")
	}
}

func TestEnsureWorktreeExists_IdempotentOnExisting(t *testing.T) {
	repo := initRepo(t)
	wtPath := filepath.Join(t.TempDir(), "task-1")

	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("second call should be a no-op success: %v", err)
	}
}

func TestEnsureWorktreeExists_RecreatesAfterManualDeletion(t *testing.T) {
	repo := initRepo(t)
	wtPath := filepath.Join(t.TempDir(), "task-1")

	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Simulate a crash that left the directory gone but git metadata stale.
	if err := os.RemoveAll(wtPath); err != nil {
		t.Fatal(err)
	}

	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("recreate after manual deletion: %v", err)
	}
	if _, err := os.Stat(wtPath); err != nil {
		t.Errorf("expected worktree directory to exist again: %v", err)
	}
}

func TestCleanupWorktree_RemovesDirectoryAndMetadata(t *testing.T) {
	repo := initRepo(t)
	wtPath := filepath.Join(t.TempDir(), "task-1")

	if err := EnsureWorktreeExists(repo, "task-1", wtPath); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}
	if err := CleanupWorktree(repo, wtPath); err != nil {
		t.Fatalf("CleanupWorktree: %v", err)
	}
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Errorf("expected worktree directory to be gone, stat err = %v", err)
	}

	list := runGit(t, repo, "worktree", "list")
	if strings.Contains(list, wtPath) {
		t.Errorf("expected worktree no longer registered, list = %q", list)
	}
}
