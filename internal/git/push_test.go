package git

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func setupRepoWithRemote(t *testing.T) (repo, remote string) {
	t.Helper()
	repo = initRepo(t)
	remote = filepath.Join(t.TempDir(), "remote.git")
	runGit(t, t.TempDir(), "init", "-q", "--bare", "-b", "main", remote)
	runGit(t, repo, "remote", "add", "origin", remote)
	runGit(t, repo, "push", "-q", "origin", "main")
	return repo, remote
}

func TestPushToRemote_Success(t *testing.T) {
	repo, remote := setupRepoWithRemote(t)

	writeFile(t, filepath.Join(repo, "change.txt"), "local change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "local change")

	if err := PushToRemote(repo, "main", false); err != nil {
		t.Fatalf("PushToRemote: %v", err)
	}

	remoteHead := strings.TrimSpace(runGit(t, remote, "rev-parse", "main"))
	localHead := strings.TrimSpace(runGit(t, repo, "rev-parse", "main"))
	if remoteHead != localHead {
		t.Errorf("remote main = %s, want %s", remoteHead, localHead)
	}
}

func TestPushToRemote_ForcePushRequiredOnNonFastForward(t *testing.T) {
	repo, remote := setupRepoWithRemote(t)

	// A third-party clone advances the remote past the local tip.
	thirdParty := filepath.Join(t.TempDir(), "third-party")
	runGit(t, t.TempDir(), "clone", "-q", remote, thirdParty)
	runGit(t, thirdParty, "config", "user.name", "third-party")
	runGit(t, thirdParty, "config", "user.email", "third-party@example.com")
	writeFile(t, filepath.Join(thirdParty, "theirs.txt"), "their change\n")
	runGit(t, thirdParty, "add", "-A")
	runGit(t, thirdParty, "commit", "-q", "-m", "their change")
	runGit(t, thirdParty, "push", "-q", "origin", "main")

	writeFile(t, filepath.Join(repo, "mine.txt"), "my change\n")
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-q", "-m", "my change")

	err := PushToRemote(repo, "main", false)
	var forceErr *ForcePushRequiredError
	if !errors.As(err, &forceErr) {
		t.Fatalf("expected ForcePushRequiredError, got %v", err)
	}
}
