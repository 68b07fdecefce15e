package gateway

import "context"

// Gateway is the typed, transactional store the core consumes. The
// core never reaches into SQL/ORM details; implementations are free to
// back this with whatever store they like. Terminal ExecutionProcess
// status is write-once: implementations must reject a status write once
// an existing row is Terminal().
type Gateway interface {
	SaveWorkspace(ctx context.Context, ws Workspace) error
	GetWorkspace(ctx context.Context, id string) (Workspace, error)
	ListWorkspaces(ctx context.Context) ([]Workspace, error)
	// TouchWorkspace updates a workspace's last-accessed timestamp, used by
	// WorkspaceManager.ensure_workspace_exists.
	TouchWorkspace(ctx context.Context, id string) error

	SaveWorkspaceRepo(ctx context.Context, wr WorkspaceRepo) error
	ListWorkspaceRepos(ctx context.Context, workspaceID string) ([]WorkspaceRepo, error)

	SaveRepo(ctx context.Context, r Repo) error
	GetRepo(ctx context.Context, id string) (Repo, error)

	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	LatestSession(ctx context.Context, workspaceID string) (Session, error)

	CreateExecutionProcess(ctx context.Context, p ExecutionProcess) error
	GetExecutionProcess(ctx context.Context, id string) (ExecutionProcess, error)
	ListRunningExecutionProcesses(ctx context.Context) ([]ExecutionProcess, error)
	// UpdateStatus performs the terminal-status write-once check from
	// ExecutionProcess invariants: once a row is Terminal(), further status
	// writes return ErrTerminal.
	UpdateStatus(ctx context.Context, id string, status ProcessStatus, exitCode *int) error
	UpdateSnapshot(ctx context.Context, id string, snap RepoSnapshot) error

	SaveCodingAgentTurn(ctx context.Context, t CodingAgentTurn) error
	GetCodingAgentTurn(ctx context.Context, executionProcessID string) (CodingAgentTurn, error)

	// AppendExecutionLog appends one raw JSONL line to the persisted log
	// for an ExecutionProcess.
	AppendExecutionLog(ctx context.Context, executionProcessID string, line []byte) error
	ReadExecutionLog(ctx context.Context, executionProcessID string) ([][]byte, error)

	// EnqueueFollowUp/DequeueFollowUp implement the scratch key-value area
	// for queued follow-up messages.
	EnqueueFollowUp(ctx context.Context, sessionID, prompt string) error
	DequeueFollowUp(ctx context.Context, sessionID string) (prompt string, ok bool, err error)
}

// ErrTerminal is returned by UpdateStatus when the row is already terminal.
type ErrTerminal struct{ ID string }

func (e *ErrTerminal) Error() string {
	return "gateway: execution process " + e.ID + " already has terminal status"
}

// ErrNotFound is returned by Get* lookups that miss.
type ErrNotFound struct{ Kind, ID string }

func (e *ErrNotFound) Error() string {
	return "gateway: " + e.Kind + " " + e.ID + " not found"
}
