package git

import (
	"path/filepath"
	"testing"
)

func TestGetDiffs_WorktreeAddedFile(t *testing.T) {
	repo := initRepo(t)
	base := runGit(t, repo, "rev-parse", "HEAD")
	base = trimOneNewline(base)

	writeFile(t, filepath.Join(repo, "added.txt"), "line one\nline two\n")

	diffs, err := GetDiffs(WorktreeTarget{WorktreePath: repo, BaseCommit: base}, "")
	if err != nil {
		t.Fatalf("GetDiffs: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d: %+v", len(diffs), diffs)
	}
	d := diffs[0]
	if d.Change != ChangeAdded || d.Path != "added.txt" {
		t.Errorf("diff = %+v", d)
	}
	if d.Additions != 2 || d.Deletions != 0 {
		t.Errorf("additions/deletions = %d/%d, want 2/0", d.Additions, d.Deletions)
	}
	if d.NewContent == nil || *d.NewContent != "line one\nline two\n" {
		t.Errorf("new content = %v", d.NewContent)
	}
}

func TestGetDiffs_CommitAgainstParent(t *testing.T) {
	repo := initRepo(t)
	writeFile(t, filepath.Join(repo, "README.md"), "hello\nworld\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "extend readme")

	sha := trimOneNewline(runGit(t, repo, "rev-parse", "HEAD"))

	diffs, err := GetDiffs(CommitTarget{RepoPath: repo, CommitSHA: sha}, "")
	if err != nil {
		t.Fatalf("GetDiffs: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffs))
	}
	if diffs[0].Change != ChangeModified {
		t.Errorf("change = %v, want modified", diffs[0].Change)
	}
	if diffs[0].Additions == 0 {
		t.Errorf("expected at least one addition, got %+v", diffs[0])
	}
}

func TestGetDiffs_CommitWithNoParentFails(t *testing.T) {
	repo := initRepo(t)
	sha := trimOneNewline(runGit(t, repo, "rev-parse", "HEAD"))

	if _, err := GetDiffs(CommitTarget{RepoPath: repo, CommitSHA: sha}, ""); err == nil {
		t.Error("expected an error diffing the root commit against a nonexistent parent")
	}
}

func trimOneNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}
