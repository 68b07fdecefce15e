package git

import (
	"path/filepath"
	"testing"
)

func TestDetectConflictOp_None(t *testing.T) {
	repo := initRepo(t)
	op, err := DetectConflictOp(repo)
	if err != nil {
		t.Fatalf("DetectConflictOp: %v", err)
	}
	if op != ConflictNone {
		t.Errorf("op = %v, want none", op)
	}
}

func TestDetectConflictOp_MergeInProgress(t *testing.T) {
	repo := initRepo(t)
	runGit(t, repo, "checkout", "-q", "-b", "feature")
	writeFile(t, filepath.Join(repo, "f.txt"), "feature change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "feature change")

	runGit(t, repo, "checkout", "-q", "main")
	writeFile(t, filepath.Join(repo, "f.txt"), "main change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "main change")

	// This merge will conflict; ignore the exit error, we only care about
	// the resulting MERGE_HEAD marker.
	_, _ = NewRepo(repo).run("merge", "feature")

	op, err := DetectConflictOp(repo)
	if err != nil {
		t.Fatalf("DetectConflictOp: %v", err)
	}
	if op != ConflictMerge {
		t.Fatalf("op = %v, want merge", op)
	}

	if err := AbortConflicts(repo); err != nil {
		t.Fatalf("AbortConflicts: %v", err)
	}
	op, err = DetectConflictOp(repo)
	if err != nil {
		t.Fatalf("DetectConflictOp after abort: %v", err)
	}
	if op != ConflictNone {
		t.Errorf("op after abort = %v, want none", op)
	}
}
