package git

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCommit_NoChangesReturnsFalse(t *testing.T) {
	repo := initRepo(t)
	committed, err := Commit(repo, "nothing to do")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if committed {
		t.Error("expected committed = false with no changes")
	}
}

func TestCommit_StagesAndCommits(t *testing.T) {
	repo := initRepo(t)
	writeFile(t, filepath.Join(repo, "new.txt"), "new content\n")

	committed, err := Commit(repo, "add new file")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !committed {
		t.Fatal("expected committed = true")
	}

	msg := runGit(t, repo, "log", "-1", "--format=%B")
	if !strings.Contains(msg, "add new file") {
		t.Errorf("commit message = %q", msg)
	}
}

func TestEnsureIdentity_SetsDefaultsWhenUnresolvable(t *testing.T) {
	repo := initRepo(t)
	// Clear the identity this test repo already has from initRepo.
	runGit(t, repo, "config", "--unset", "user.name")
	runGit(t, repo, "config", "--unset", "user.email")

	EnsureIdentity(repo)

	name := strings.TrimSpace(runGit(t, repo, "config", "user.name"))
	email := strings.TrimSpace(runGit(t, repo, "config", "user.email"))
	if name != defaultIdentityName || email != defaultIdentityEmail {
		t.Errorf("identity = %q/%q, want %q/%q", name, email, defaultIdentityName, defaultIdentityEmail)
	}
}
