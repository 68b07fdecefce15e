package git

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeChanges_BranchesDiverged(t *testing.T) {
	repo := initRepo(t)
	taskWorktree := filepath.Join(t.TempDir(), "task")
	if err := EnsureWorktreeExists(repo, "task", taskWorktree); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}

	// Advance main past the point task branched from; task has no new
	// commits of its own, so main is strictly ahead.
	writeFile(t, filepath.Join(repo, "advance.txt"), "main moved on\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "advance main")

	err := MergeChanges(repo, repo, taskWorktree, "task", "main", "squash task into main")
	var divergedErr *BranchesDivergedError
	if !errors.As(err, &divergedErr) {
		t.Fatalf("expected BranchesDivergedError, got %v", err)
	}
}

func TestMergeChanges_BranchesDivergedWithTaskCommits(t *testing.T) {
	repo := initRepo(t)
	taskWorktree := filepath.Join(t.TempDir(), "task")
	if err := EnsureWorktreeExists(repo, "task", taskWorktree); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}

	// Task branch gets its own commit X...
	writeFile(t, filepath.Join(taskWorktree, "feature.txt"), "feature work\n")
	runGit(t, taskWorktree, "add", "-A")
	runGit(t, taskWorktree, "commit", "-q", "-m", "add feature")

	// ...then main advances past that point by two commits Y, Z. Base is
	// ahead of task even though task also has commits of its own: the
	// weaker "task has nothing new" case above doesn't exercise this.
	writeFile(t, filepath.Join(repo, "advance1.txt"), "main moved on\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "advance main 1")
	writeFile(t, filepath.Join(repo, "advance2.txt"), "main moved on again\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "advance main 2")

	mainHeadBefore := strings.TrimSpace(runGit(t, repo, "rev-parse", "main"))
	taskHeadBefore := strings.TrimSpace(runGit(t, repo, "rev-parse", "task"))

	err := MergeChanges(repo, repo, taskWorktree, "task", "main", "squash task into main")
	var divergedErr *BranchesDivergedError
	if !errors.As(err, &divergedErr) {
		t.Fatalf("expected BranchesDivergedError, got %v", err)
	}

	if got := strings.TrimSpace(runGit(t, repo, "rev-parse", "main")); got != mainHeadBefore {
		t.Errorf("main ref moved: before=%s after=%s", mainHeadBefore, got)
	}
	if got := strings.TrimSpace(runGit(t, repo, "rev-parse", "task")); got != taskHeadBefore {
		t.Errorf("task ref moved: before=%s after=%s", taskHeadBefore, got)
	}
}

func TestMergeChanges_SquashViaCheckedOutBase(t *testing.T) {
	repo := initRepo(t)
	taskWorktree := filepath.Join(t.TempDir(), "task")
	if err := EnsureWorktreeExists(repo, "task", taskWorktree); err != nil {
		t.Fatalf("EnsureWorktreeExists: %v", err)
	}

	writeFile(t, filepath.Join(taskWorktree, "feature.txt"), "feature work\n")
	runGit(t, taskWorktree, "add", "-A")
	runGit(t, taskWorktree, "commit", "-q", "-m", "add feature")

	if err := MergeChanges(repo, repo, taskWorktree, "task", "main", "squash task into main"); err != nil {
		t.Fatalf("MergeChanges: %v", err)
	}

	msg := runGit(t, repo, "log", "-1", "--format=%B", "main")
	if !strings.Contains(msg, "squash task into main") {
		t.Errorf("main HEAD commit message = %q", msg)
	}

	taskHead := strings.TrimSpace(runGit(t, repo, "rev-parse", "task"))
	mainHead := strings.TrimSpace(runGit(t, repo, "rev-parse", "main"))
	if taskHead != mainHead {
		t.Errorf("expected task branch fast-forwarded to merged commit: task=%s main=%s", taskHead, mainHead)
	}
}
