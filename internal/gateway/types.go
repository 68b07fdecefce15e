// Package gateway defines the typed interface the core consumes for
// durable state plus an in-memory reference
// implementation used by tests and as a drop-in default, and an optional
// GCP-backed adapter for shipping ExecutionProcessLogs and fetching
// executor credentials. SQL/ORM schema is explicitly out of scope per
// spec.md — callers see only these typed rows.
package gateway

import "time"

// RunReason is why an ExecutionProcess was spawned.
type RunReason string

const (
	RunCodingAgent   RunReason = "coding_agent"
	RunSetupScript   RunReason = "setup_script"
	RunCleanupScript RunReason = "cleanup_script"
	RunDevServer     RunReason = "dev_server"
)

// ProcessStatus is the lifecycle state of an ExecutionProcess.
type ProcessStatus string

const (
	StatusPending   ProcessStatus = "pending"
	StatusRunning   ProcessStatus = "running"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
	StatusKilled    ProcessStatus = "killed"
)

// Terminal reports whether status is one that may never be overwritten.
func (s ProcessStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusKilled
}

// TaskStatus is the coarse status of the task owning a workspace/session.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
)

// Workspace is a directory holding one worktree per configured repo plus
// copied project files and stitched config.
type Workspace struct {
	ID              string
	Branch          string
	Archived        bool
	Pinned          bool
	ContainerRef    string // filesystem path once materialized, "" before
	AgentWorkingDir string
	TaskStatus      TaskStatus
	ExpiresAt       time.Time
	LastAccessedAt  time.Time
}

// Repo is a source git repository known to the system.
type Repo struct {
	ID                  string
	Name                string
	Path                string
	SetupScript         string
	CleanupScript       string
	DevServerScript     string
	CopyFiles           []string
	ParallelSetupScript bool
}

// WorkspaceRepo binds a Workspace to a Repo with the per-repo target branch.
type WorkspaceRepo struct {
	WorkspaceID  string
	RepoID       string
	TargetBranch string
}

// Session is a logical conversation thread within a workspace.
type Session struct {
	ID                string
	WorkspaceID       string
	ExecutorProfileID string
	AgentSessionID    string // upstream executor's own session identity, once learned
	Interactive       bool   // true when the executor should get a pty (e.g. a dev server)
	CreatedAt         time.Time
}

// RepoSnapshot is the before/after/merge commit bookkeeping for one repo
// within one ExecutionProcess.
type RepoSnapshot struct {
	RepoID           string
	BeforeHeadCommit string
	AfterHeadCommit  string
	MergeCommit      string
}

// ActionType is the closed enum of ExecutorAction variants.
type ActionType string

const (
	ActionScriptRequest       ActionType = "script_request"
	ActionCodingAgentInitial  ActionType = "coding_agent_initial_request"
	ActionCodingAgentFollowUp ActionType = "coding_agent_follow_up_request"
	ActionReviewRequest       ActionType = "review_request"
)

// ExecutorAction is a recursive action value: the current step plus an
// optional chained next step run when the current process exits
// successfully.
type ExecutorAction struct {
	Type ActionType

	// ScriptRequest fields.
	Script     string
	Language   string
	Context    string
	WorkingDir string

	// CodingAgent{Initial,FollowUp}Request fields.
	Prompt            string
	ExecutorProfileID string
	AgentSessionID    string

	// ReviewRequest fields.
	ReviewDiffRef string

	Next *ExecutorAction
}

// ExecutionProcess is one invocation of a child process.
type ExecutionProcess struct {
	ID        string
	SessionID string
	RunReason RunReason
	Status    ProcessStatus
	ExitCode  *int
	Action    ExecutorAction
	Snapshots []RepoSnapshot
	CreatedAt time.Time
}

// SnapshotFor returns the repo snapshot for repoID, creating a zero-value
// entry if one doesn't exist yet.
func (p *ExecutionProcess) SnapshotFor(repoID string) *RepoSnapshot {
	for i := range p.Snapshots {
		if p.Snapshots[i].RepoID == repoID {
			return &p.Snapshots[i]
		}
	}
	p.Snapshots = append(p.Snapshots, RepoSnapshot{RepoID: repoID})
	return &p.Snapshots[len(p.Snapshots)-1]
}

// CodingAgentTurn is the coding-agent turn record a conversation thread's
// latest execution writes a summary into.
type CodingAgentTurn struct {
	ExecutionProcessID string
	AgentSessionID      string
	Summary             string
}
