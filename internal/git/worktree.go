package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// worktreeLocks is the global per-path mutex table: concurrent callers
// racing to create or remove the same worktree path serialize on the same
// *sync.Mutex instead of stepping on each other's git metadata.
var (
	worktreeLocksMu sync.Mutex
	worktreeLocks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	worktreeLocksMu.Lock()
	defer worktreeLocksMu.Unlock()
	m, ok := worktreeLocks[path]
	if !ok {
		m = &sync.Mutex{}
		worktreeLocks[path] = m
	}
	return m
}

// EnsureWorktreeExists makes worktreePath a ready checkout of branchName
// inside repoPath, creating the branch from repoPath's current HEAD if it
// does not already exist. It is the single entry point other packages use
// to materialize a worktree; concurrent callers for the same path
// serialize on a per-path lock rather than racing git's own metadata.
func EnsureWorktreeExists(repoPath, branchName, worktreePath string) error {
	return EnsureWorktreeExistsFromBase(repoPath, branchName, worktreePath, "HEAD")
}

// EnsureWorktreeExistsFromBase is EnsureWorktreeExists with an explicit
// base ref to branch from when branchName does not already exist in
// repoPath. Callers materializing a fresh task branch against a
// configured target branch rather than HEAD use this directly.
func EnsureWorktreeExistsFromBase(repoPath, branchName, worktreePath, baseRef string) error {
	abs, err := filepath.Abs(worktreePath)
	if err != nil {
		return fmt.Errorf("git: resolve worktree path: %w", err)
	}

	mu := lockFor(abs)
	mu.Lock()
	defer mu.Unlock()

	repo := NewRepo(repoPath)

	if ok, _ := matchesRegisteredWorktree(repo, abs); ok {
		if _, err := os.Stat(abs); err == nil {
			return nil
		}
	}

	if err := comprehensiveWorktreeCleanup(repo, abs); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("git: create parent dir: %w", err)
	}

	if err := addWorktree(repo, abs, branchName, baseRef); err != nil {
		// One retry after a second cleanup pass: a half-finished worktree
		// from a prior crashed process is the common cause of this.
		if cleanupErr := comprehensiveWorktreeCleanup(repo, abs); cleanupErr != nil {
			return fmt.Errorf("git: worktree add failed (%v), cleanup retry also failed: %w", err, cleanupErr)
		}
		if err := addWorktree(repo, abs, branchName, baseRef); err != nil {
			return fmt.Errorf("git: worktree add failed after retry: %w", err)
		}
	}

	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("git: worktree add reported success but %s does not exist: %w", abs, err)
	}
	return nil
}

func addWorktree(repo *Repo, path, branch, baseRef string) error {
	if repo.BranchExists(branch) {
		_, err := repo.run("worktree", "add", path, branch)
		return err
	}
	_, err := repo.run("worktree", "add", "-b", branch, path, baseRef)
	return err
}

// comprehensiveWorktreeCleanup removes any trace of a worktree at path:
// the registered worktree (if any), its metadata directory, the filesystem
// directory itself, then prunes stale worktree entries.
func comprehensiveWorktreeCleanup(repo *Repo, path string) error {
	repo.runIgnoreError("worktree", "remove", "--force", path)

	commonDir, err := repo.GitCommonDir()
	if err == nil {
		if metaDir, ok, matchErr := findWorktreeMetadataDir(commonDir, path); matchErr == nil && ok {
			os.RemoveAll(metaDir)
		}
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("git: remove worktree directory: %w", err)
	}

	repo.runIgnoreError("worktree", "prune")
	return nil
}

// matchesRegisteredWorktree reports whether path is already registered as
// a live worktree of repo, by scanning gitdir pointer files the way
// comprehensiveWorktreeCleanup's metadata scan does.
func matchesRegisteredWorktree(repo *Repo, path string) (bool, error) {
	commonDir, err := repo.GitCommonDir()
	if err != nil {
		return false, err
	}
	_, ok, err := findWorktreeMetadataDir(commonDir, path)
	return ok, err
}

// findWorktreeMetadataDir scans <commonDir>/worktrees/* for a gitdir file
// whose pointee's parent directory matches path, canonicalizing both
// sides and stripping the macOS /private alias so bind-mounted and
// symlinked temp directories still compare equal.
func findWorktreeMetadataDir(commonDir, path string) (metaDir string, found bool, err error) {
	worktreesDir := filepath.Join(commonDir, "worktrees")
	entries, err := os.ReadDir(worktreesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	wantCanon := canonicalizeWorktreePath(path)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(worktreesDir, e.Name())
		gitdirFile := filepath.Join(dir, "gitdir")
		data, err := os.ReadFile(gitdirFile)
		if err != nil {
			continue
		}
		pointee := strings.TrimSpace(string(data))
		pointee = strings.TrimSuffix(pointee, string(filepath.Separator)+".git")
		if canonicalizeWorktreePath(pointee) == wantCanon {
			return dir, true, nil
		}
	}
	return "", false, nil
}

// canonicalizeWorktreePath resolves symlinks where possible and strips the
// macOS temp-dir alias so two different spellings of the same path compare
// equal.
func canonicalizeWorktreePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	resolved = filepath.Clean(resolved)
	return strings.TrimPrefix(resolved, "/private")
}

// CleanupWorktree removes worktreePath under the same per-path lock
// EnsureWorktreeExists uses, so a concurrent creator never races a
// deletion. repoPath may be empty, in which case it is inferred from
// within the worktree via `git rev-parse --git-common-dir`; if that also
// fails the worktree directory is still removed with a plain recursive
// delete.
func CleanupWorktree(repoPath, worktreePath string) error {
	abs, err := filepath.Abs(worktreePath)
	if err != nil {
		return fmt.Errorf("git: resolve worktree path: %w", err)
	}

	mu := lockFor(abs)
	mu.Lock()
	defer mu.Unlock()

	if repoPath == "" {
		if commonDir, err := NewRepo(abs).GitCommonDir(); err == nil {
			repoPath = strings.TrimSuffix(filepath.Clean(commonDir), string(filepath.Separator)+".git")
		}
	}

	if repoPath != "" {
		if err := comprehensiveWorktreeCleanup(NewRepo(repoPath), abs); err == nil {
			return nil
		}
	}

	return os.RemoveAll(abs)
}
