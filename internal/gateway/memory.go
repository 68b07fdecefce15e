package gateway

import (
	"context"
	"sync"
	"time"
)

// InMemory is the reference Gateway implementation: plain maps guarded by
// one mutex, the same mutex-guarded map idiom used for shared state elsewhere in
// this module (agent/registry.go) rather than introducing a database.
// Used directly by tests and as the default backend when no external
// store is configured.
type InMemory struct {
	mu sync.Mutex

	workspaces     map[string]Workspace
	workspaceRepos map[string][]WorkspaceRepo
	repos          map[string]Repo
	sessions       map[string]Session
	sessionOrder   []string // insertion order, for LatestSession per workspace
	processes      map[string]ExecutionProcess
	turns          map[string]CodingAgentTurn
	logs           map[string][][]byte
	followUps      map[string]string
}

// NewInMemory constructs an empty in-memory gateway.
func NewInMemory() *InMemory {
	return &InMemory{
		workspaces:     make(map[string]Workspace),
		workspaceRepos: make(map[string][]WorkspaceRepo),
		repos:          make(map[string]Repo),
		sessions:       make(map[string]Session),
		processes:      make(map[string]ExecutionProcess),
		turns:          make(map[string]CodingAgentTurn),
		logs:           make(map[string][][]byte),
		followUps:      make(map[string]string),
	}
}

func (g *InMemory) SaveWorkspace(_ context.Context, ws Workspace) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workspaces[ws.ID] = ws
	return nil
}

func (g *InMemory) GetWorkspace(_ context.Context, id string) (Workspace, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ws, ok := g.workspaces[id]
	if !ok {
		return Workspace{}, &ErrNotFound{Kind: "workspace", ID: id}
	}
	return ws, nil
}

func (g *InMemory) ListWorkspaces(_ context.Context) ([]Workspace, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Workspace, 0, len(g.workspaces))
	for _, ws := range g.workspaces {
		out = append(out, ws)
	}
	return out, nil
}

func (g *InMemory) TouchWorkspace(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ws, ok := g.workspaces[id]
	if !ok {
		return &ErrNotFound{Kind: "workspace", ID: id}
	}
	ws.LastAccessedAt = time.Now()
	g.workspaces[id] = ws
	return nil
}

func (g *InMemory) SaveWorkspaceRepo(_ context.Context, wr WorkspaceRepo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.workspaceRepos[wr.WorkspaceID]
	for i, existing := range list {
		if existing.RepoID == wr.RepoID {
			list[i] = wr
			g.workspaceRepos[wr.WorkspaceID] = list
			return nil
		}
	}
	g.workspaceRepos[wr.WorkspaceID] = append(list, wr)
	return nil
}

func (g *InMemory) ListWorkspaceRepos(_ context.Context, workspaceID string) ([]WorkspaceRepo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]WorkspaceRepo(nil), g.workspaceRepos[workspaceID]...), nil
}

func (g *InMemory) SaveRepo(_ context.Context, r Repo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repos[r.ID] = r
	return nil
}

func (g *InMemory) GetRepo(_ context.Context, id string) (Repo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[id]
	if !ok {
		return Repo{}, &ErrNotFound{Kind: "repo", ID: id}
	}
	return r, nil
}

func (g *InMemory) SaveSession(_ context.Context, s Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[s.ID]; !exists {
		g.sessionOrder = append(g.sessionOrder, s.ID)
	}
	g.sessions[s.ID] = s
	return nil
}

func (g *InMemory) GetSession(_ context.Context, id string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return Session{}, &ErrNotFound{Kind: "session", ID: id}
	}
	return s, nil
}

func (g *InMemory) LatestSession(_ context.Context, workspaceID string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sessionOrder) - 1; i >= 0; i-- {
		s := g.sessions[g.sessionOrder[i]]
		if s.WorkspaceID == workspaceID {
			return s, nil
		}
	}
	return Session{}, &ErrNotFound{Kind: "session for workspace", ID: workspaceID}
}

func (g *InMemory) CreateExecutionProcess(_ context.Context, p ExecutionProcess) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Status == "" {
		p.Status = StatusPending
	}
	g.processes[p.ID] = p
	return nil
}

func (g *InMemory) GetExecutionProcess(_ context.Context, id string) (ExecutionProcess, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.processes[id]
	if !ok {
		return ExecutionProcess{}, &ErrNotFound{Kind: "execution process", ID: id}
	}
	return p, nil
}

func (g *InMemory) ListRunningExecutionProcesses(_ context.Context) ([]ExecutionProcess, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []ExecutionProcess
	for _, p := range g.processes {
		if p.Status == StatusRunning {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *InMemory) UpdateStatus(_ context.Context, id string, status ProcessStatus, exitCode *int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.processes[id]
	if !ok {
		return &ErrNotFound{Kind: "execution process", ID: id}
	}
	if p.Status.Terminal() {
		return &ErrTerminal{ID: id}
	}
	p.Status = status
	p.ExitCode = exitCode
	g.processes[id] = p
	return nil
}

func (g *InMemory) UpdateSnapshot(_ context.Context, id string, snap RepoSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.processes[id]
	if !ok {
		return &ErrNotFound{Kind: "execution process", ID: id}
	}
	*p.SnapshotFor(snap.RepoID) = snap
	g.processes[id] = p
	return nil
}

func (g *InMemory) SaveCodingAgentTurn(_ context.Context, t CodingAgentTurn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.turns[t.ExecutionProcessID] = t
	return nil
}

func (g *InMemory) GetCodingAgentTurn(_ context.Context, executionProcessID string) (CodingAgentTurn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.turns[executionProcessID]
	if !ok {
		return CodingAgentTurn{}, &ErrNotFound{Kind: "coding agent turn", ID: executionProcessID}
	}
	return t, nil
}

func (g *InMemory) AppendExecutionLog(_ context.Context, executionProcessID string, line []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := append([]byte(nil), line...)
	g.logs[executionProcessID] = append(g.logs[executionProcessID], cp)
	return nil
}

func (g *InMemory) ReadExecutionLog(_ context.Context, executionProcessID string) ([][]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]byte(nil), g.logs[executionProcessID]...), nil
}

func (g *InMemory) EnqueueFollowUp(_ context.Context, sessionID, prompt string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.followUps[sessionID] = prompt
	return nil
}

func (g *InMemory) DequeueFollowUp(_ context.Context, sessionID string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prompt, ok := g.followUps[sessionID]
	if ok {
		delete(g.followUps, sessionID)
	}
	return prompt, ok, nil
}

var _ Gateway = (*InMemory)(nil)
