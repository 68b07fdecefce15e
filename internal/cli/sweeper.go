package cli

import (
	"context"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/workspace"
)

// registryAdapter implements workspace.Registry against the gateway, so
// the periodic orphan sweep can tell a materialized-but-now-unpersisted
// workspace directory apart from one still owned by a live or pinned
// workspace row.
type registryAdapter struct {
	gw gateway.Gateway
}

func (r registryAdapter) ListWorkspaces() ([]workspace.Record, error) {
	ctx := context.Background()
	all, err := r.gw.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]workspace.Record, 0, len(all))
	for _, ws := range all {
		if ws.ContainerRef == "" {
			continue
		}
		wrs, err := r.gw.ListWorkspaceRepos(ctx, ws.ID)
		if err != nil {
			return nil, err
		}
		targets := make([]workspace.RepoTarget, 0, len(wrs))
		for _, wr := range wrs {
			repo, err := r.gw.GetRepo(ctx, wr.RepoID)
			if err != nil {
				continue
			}
			targets = append(targets, workspace.RepoTarget{
				Name:         repo.Name,
				RepoPath:     repo.Path,
				TargetBranch: wr.TargetBranch,
				CopyFiles:    repo.CopyFiles,
			})
		}
		records = append(records, workspace.Record{
			ID:        ws.ID,
			Dir:       ws.ContainerRef,
			Repos:     targets,
			Pinned:    ws.Pinned,
			ExpiresAt: ws.ExpiresAt,
		})
	}
	return records, nil
}
