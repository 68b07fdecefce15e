package cli

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/config"
	"github.com/andywolf/agentium-supervisor/internal/gateway"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v in %s: %v\n%s", args, dir, err, out)
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.name", "test")
	runGit(t, dir, "config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestGatewayResolverMaterializesWorkspace(t *testing.T) {
	ctx := context.Background()
	repoPath := initRepo(t)
	gw := gateway.NewInMemory()

	repo := gateway.Repo{ID: "repo-1", Name: "app", Path: repoPath}
	if err := gw.SaveRepo(ctx, repo); err != nil {
		t.Fatal(err)
	}

	ws := gateway.Workspace{ID: "ws-1", Branch: "task/feature"}
	if err := gw.SaveWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}
	if err := gw.SaveWorkspaceRepo(ctx, gateway.WorkspaceRepo{WorkspaceID: ws.ID, RepoID: repo.ID, TargetBranch: "main"}); err != nil {
		t.Fatal(err)
	}
	session := gateway.Session{ID: "sess-1", WorkspaceID: ws.ID}
	if err := gw.SaveSession(ctx, session); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Workspace: config.WorkspaceConfig{BaseDir: t.TempDir()}}
	resolver := newGatewayResolver(gw, cfg)

	out, err := resolver.ResolveForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ResolveForSession: %v", err)
	}
	if out.WorkspaceID != ws.ID || out.Branch != ws.Branch {
		t.Fatalf("unexpected workspace context: %+v", out)
	}
	if len(out.Repos) != 1 {
		t.Fatalf("expected one repo context, got %d", len(out.Repos))
	}
	if _, err := os.Stat(out.Repos[0].WorktreePath); err != nil {
		t.Fatalf("worktree not materialized: %v", err)
	}

	// Re-resolving must be idempotent: the stored ContainerRef is reused
	// rather than a second worktree path being computed.
	out2, err := resolver.ResolveForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("second ResolveForSession: %v", err)
	}
	if out2.Repos[0].WorktreePath != out.Repos[0].WorktreePath {
		t.Fatalf("worktree path changed across resolves: %q vs %q", out.Repos[0].WorktreePath, out2.Repos[0].WorktreePath)
	}
}
