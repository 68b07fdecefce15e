package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/andywolf/agentium-supervisor/internal/config"
	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/supervisor"
	"github.com/andywolf/agentium-supervisor/internal/workspace"
)

// gatewayResolver implements supervisor.WorkspaceResolver against a live
// gateway.Gateway and the configured repo set: given a session id it loads
// the owning workspace and its WorkspaceRepo junctions, materializes any
// missing worktrees via internal/workspace, and returns the resulting
// supervisor.WorkspaceContext. Used both by ReconcileOrphans at startup and
// by any future follow-up/spawn path that only has a session id in hand.
type gatewayResolver struct {
	gw  gateway.Gateway
	cfg *config.Config
}

func newGatewayResolver(gw gateway.Gateway, cfg *config.Config) *gatewayResolver {
	return &gatewayResolver{gw: gw, cfg: cfg}
}

func (r *gatewayResolver) ResolveForSession(ctx context.Context, sessionID string) (supervisor.WorkspaceContext, error) {
	session, err := r.gw.GetSession(ctx, sessionID)
	if err != nil {
		return supervisor.WorkspaceContext{}, fmt.Errorf("cli: resolve session %s: %w", sessionID, err)
	}

	ws, err := r.gw.GetWorkspace(ctx, session.WorkspaceID)
	if err != nil {
		return supervisor.WorkspaceContext{}, fmt.Errorf("cli: resolve workspace %s: %w", session.WorkspaceID, err)
	}

	wrs, err := r.gw.ListWorkspaceRepos(ctx, ws.ID)
	if err != nil {
		return supervisor.WorkspaceContext{}, fmt.Errorf("cli: list workspace repos for %s: %w", ws.ID, err)
	}

	workspaceDir := ws.ContainerRef
	if workspaceDir == "" {
		workspaceDir = filepath.Join(r.cfg.Workspace.BaseDir, ws.ID)
	}

	targets := make([]workspace.RepoTarget, 0, len(wrs))
	repoCtxs := make([]supervisor.RepoContext, 0, len(wrs))
	for _, wr := range wrs {
		repo, err := r.gw.GetRepo(ctx, wr.RepoID)
		if err != nil {
			return supervisor.WorkspaceContext{}, fmt.Errorf("cli: resolve repo %s: %w", wr.RepoID, err)
		}
		targets = append(targets, workspace.RepoTarget{
			Name:         repo.Name,
			RepoPath:     repo.Path,
			TargetBranch: wr.TargetBranch,
			CopyFiles:    repo.CopyFiles,
		})
		repoCtxs = append(repoCtxs, supervisor.RepoContext{
			RepoID:       repo.ID,
			WorktreePath: filepath.Join(workspaceDir, repo.Name),
		})
	}

	if err := workspace.EnsureWorkspaceExists(workspaceDir, ws.Branch, targets); err != nil {
		return supervisor.WorkspaceContext{}, fmt.Errorf("cli: materialize workspace %s: %w", ws.ID, err)
	}

	if ws.ContainerRef == "" {
		ws.ContainerRef = workspaceDir
		if err := r.gw.SaveWorkspace(ctx, ws); err != nil {
			return supervisor.WorkspaceContext{}, fmt.Errorf("cli: persist materialized workspace %s: %w", ws.ID, err)
		}
	}
	if err := r.gw.TouchWorkspace(ctx, ws.ID); err != nil {
		return supervisor.WorkspaceContext{}, fmt.Errorf("cli: touch workspace %s: %w", ws.ID, err)
	}

	return supervisor.WorkspaceContext{
		WorkspaceID:     ws.ID,
		TaskID:          ws.ID,
		Branch:          ws.Branch,
		AgentWorkingDir: ws.AgentWorkingDir,
		Repos:           repoCtxs,
	}, nil
}
