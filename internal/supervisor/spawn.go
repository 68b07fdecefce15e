package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/andywolf/agentium-supervisor/internal/agent"
	"github.com/andywolf/agentium-supervisor/internal/git"
	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/normalizer"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// RepoContext is one repo's worktree location within the workspace a
// StartExecution call runs against.
type RepoContext struct {
	RepoID       string
	WorktreePath string
}

// WorkspaceContext is the subset of a materialized Workspace StartExecution
// needs: its id/branch and each repo's worktree path.
type WorkspaceContext struct {
	WorkspaceID       string
	ProjectName       string
	ProjectID         string
	TaskID            string
	Branch            string
	AgentWorkingDir   string // "" for single-repo: use the sole repo's worktree
	Repos             []RepoContext
}

func (w WorkspaceContext) repoByID(id string) (RepoContext, bool) {
	for _, r := range w.Repos {
		if r.RepoID == id {
			return r, true
		}
	}
	return RepoContext{}, false
}

// buildEnv assembles the VK_* environment variables every spawned child
// receives.
func buildEnv(ws WorkspaceContext, sessionID string) map[string]string {
	env := map[string]string{
		"VK_PROJECT_NAME":    ws.ProjectName,
		"VK_PROJECT_ID":      ws.ProjectID,
		"VK_TASK_ID":         ws.TaskID,
		"VK_WORKSPACE_ID":    ws.WorkspaceID,
		"VK_WORKSPACE_BRANCH": ws.Branch,
		"NPM_CONFIG_LOGLEVEL": "error",
	}
	return env
}

// workingDir resolves the directory a spawned process runs in: the
// workspace root for multi-repo tasks, or the sole repo's worktree for
// single-repo ones.
func (ws WorkspaceContext) workingDir() string {
	if ws.AgentWorkingDir != "" {
		return ws.AgentWorkingDir
	}
	if len(ws.Repos) == 1 {
		return ws.Repos[0].WorktreePath
	}
	return ws.AgentWorkingDir
}

// StartExecution spawns one ExecutionProcess for action against ws.
// It returns the new execution id even on spawn failure: the row is
// persisted as Failed with a diagnostic ErrorMessage entry rather than
// returning bare.
func (s *Supervisor) StartExecution(ctx context.Context, ws WorkspaceContext, sessionID string, action gateway.ExecutorAction, runReason gateway.RunReason) (string, error) {
	id := uuid.New().String()

	snapshots := make([]gateway.RepoSnapshot, 0, len(ws.Repos))
	for _, r := range ws.Repos {
		snap := gateway.RepoSnapshot{RepoID: r.RepoID}
		if head, err := git.NewRepo(r.WorktreePath).HeadCommit("HEAD"); err == nil {
			snap.BeforeHeadCommit = head
		} else {
			logError(id, "capture before_head_commit for repo %s: %v", r.RepoID, err)
		}
		snapshots = append(snapshots, snap)
	}

	proc := gateway.ExecutionProcess{
		ID:        id,
		SessionID: sessionID,
		RunReason: runReason,
		Status:    gateway.StatusPending,
		Action:    action,
		Snapshots: snapshots,
	}
	if err := s.Gateway.CreateExecutionProcess(ctx, proc); err != nil {
		return id, fmt.Errorf("supervisor: persist execution process: %w", err)
	}

	if runReason != gateway.RunDevServer {
		s.setTaskStatus(ctx, ws.WorkspaceID, gateway.TaskInProgress)
	}

	if err := s.Gateway.UpdateStatus(ctx, id, gateway.StatusRunning, nil); err != nil {
		return id, fmt.Errorf("supervisor: mark running: %w", err)
	}

	interactive := runReason == gateway.RunDevServer
	if session, err := s.Gateway.GetSession(ctx, sessionID); err == nil {
		interactive = interactive || session.Interactive
	}

	spawnCtx, cancelSpawn := context.WithTimeout(ctx, SpawnTimeout)
	child, idx, err := s.spawn(spawnCtx, ws, action, interactive)
	cancelSpawn()
	if err != nil {
		s.recordSpawnFailure(ctx, id, err)
		return id, err
	}

	store := timeline.NewMsgStore()
	execCtx, cancel := context.WithCancel(ctx)
	h := &handle{child: child, store: store, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.indexes[id] = idx
	s.mu.Unlock()
	s.setHandle(id, h)

	go forwardReader(store.PushStdout, child.Stdout)
	go forwardReader(store.PushStderr, child.Stderr)

	adapter := s.adapterFor(action)
	if adapter != nil {
		go adapter.NormalizeLogs(execCtx, store, idx)
	}

	sinkPath := filepath.Join(s.LogDir, id+".jsonl")
	rt, err := normalizer.NewNormalizerRuntime(execCtx, id, store, sinkPath)
	if err != nil {
		logError(id, "start normalizer runtime: %v", err)
	}
	h.runtime = rt

	go s.runExitMonitor(ctx, id, ws, action, runReason, h)

	return id, nil
}

// spawn dispatches to the coding-agent adapter path or the plain script
// path depending on action.Type.
func (s *Supervisor) spawn(ctx context.Context, ws WorkspaceContext, action gateway.ExecutorAction, interactive bool) (*agent.SpawnedChild, *patch.IndexProvider, error) {
	idx := patch.NewIndexProvider(0)
	env := buildEnv(ws, "")
	if s.GitHubTokens != nil {
		if token, err := s.GitHubTokens.Token(); err == nil {
			env["GITHUB_TOKEN"] = token
		} else {
			logError(ws.WorkspaceID, "mint github token: %v", err)
		}
	}
	switch action.Type {
	case gateway.ActionCodingAgentInitial:
		a, err := agent.Get(action.ExecutorProfileID)
		if err != nil {
			return nil, nil, err
		}
		child, err := a.Spawn(ctx, ws.workingDir(), action.Prompt, env)
		return child, idx, err
	case gateway.ActionCodingAgentFollowUp:
		a, err := agent.Get(action.ExecutorProfileID)
		if err != nil {
			return nil, nil, err
		}
		child, err := a.SpawnFollowUp(ctx, ws.workingDir(), action.Prompt, action.AgentSessionID, env)
		return child, idx, err
	case gateway.ActionScriptRequest, gateway.ActionReviewRequest:
		// Interactive runs (dev servers, or a session explicitly flagged
		// interactive) get a pty: the process sees a terminal, uses line
		// buffering, and its output can be tailed live exactly the way an
		// interactive agent run would be (mirrors vibe-kanban's
		// interactive-mode concern for long-lived child processes).
		if interactive {
			child, err := spawnScriptPTY(ctx, action, ws.workingDir())
			return child, idx, err
		}
		child, err := spawnScript(ctx, action, ws.workingDir())
		return child, idx, err
	default:
		return nil, nil, fmt.Errorf("supervisor: unknown action type %q", action.Type)
	}
}

// adapterFor returns the adapter whose NormalizeLogs should drain the
// store for this action, or nil for plain scripts (which only ever
// produce plain stdout/stderr; their chunks stay in the store as raw
// LogStdout/LogStderr messages and no timeline patches are made for them).
func (s *Supervisor) adapterFor(action gateway.ExecutorAction) agent.Adapter {
	switch action.Type {
	case gateway.ActionCodingAgentInitial, gateway.ActionCodingAgentFollowUp:
		a, err := agent.Get(action.ExecutorProfileID)
		if err != nil {
			return nil
		}
		return a
	default:
		return nil
	}
}

// spawnScript runs a ScriptRequest/ReviewRequest action as a plain child
// process via the configured script language's interpreter, wrapped in
// the same SpawnedChild shape adapters use so the rest of the supervisor
// (exit monitor, stdout/stderr forwarding) stays uniform across run
// reasons.
func spawnScript(ctx context.Context, action gateway.ExecutorAction, dir string) (*agent.SpawnedChild, error) {
	interpreter := "bash"
	switch action.Language {
	case "python", "python3":
		interpreter = "python3"
	case "sh", "bash", "":
		interpreter = "bash"
	default:
		interpreter = action.Language
	}

	cmd := exec.CommandContext(ctx, interpreter, "-c", action.Script)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start script: %w", err)
	}

	return &agent.SpawnedChild{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Wait: func() (int, error) {
			err := cmd.Wait()
			if err == nil {
				return 0, nil
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), nil
			}
			return -1, err
		},
		Signal: func() error {
			if cmd.Process == nil {
				return nil
			}
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		},
		Pid: pidOf(cmd),
	}, nil
}

// spawnScriptPTY runs a ScriptRequest as a DevServer: the child is given a
// pty for stdout/stderr so it sees a terminal and line-buffers its output,
// the same way an interactively-run dev server would, enabling live
// tailing through the normal stdout forwarding path. Stdin stays a regular
// pipe so the process still gets a proper EOF on close.
func spawnScriptPTY(ctx context.Context, action gateway.ExecutorAction, dir string) (*agent.SpawnedChild, error) {
	interpreter := "bash"
	switch action.Language {
	case "python", "python3":
		interpreter = "python3"
	case "sh", "bash", "":
		interpreter = "bash"
	default:
		interpreter = action.Language
	}

	cmd := exec.CommandContext(ctx, interpreter, "-c", action.Script)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = os.Environ()

	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("supervisor: open pty: %w", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		ptmx.Close()
		pts.Close()
		return nil, err
	}

	cmd.Stdout = pts
	cmd.Stderr = pts
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		pts.Close()
		return nil, fmt.Errorf("supervisor: start pty script: %w", err)
	}
	pts.Close()

	return &agent.SpawnedChild{
		Stdin:  stdin,
		Stdout: ptmx,
		Stderr: io.NopCloser(strings.NewReader("")),
		Wait: func() (int, error) {
			err := cmd.Wait()
			ptmx.Close()
			if err == nil {
				return 0, nil
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), nil
			}
			return -1, err
		},
		Signal: func() error {
			if cmd.Process == nil {
				return nil
			}
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		},
		Pid: pidOf(cmd),
	}, nil
}

func pidOf(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

// forwardReader copies r in chunks to push, returning once r is
// exhausted (process exited and closed its pipe).
func forwardReader(push func([]byte), r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			push(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) setTaskStatus(ctx context.Context, workspaceID string, status gateway.TaskStatus) {
	ws, err := s.Gateway.GetWorkspace(ctx, workspaceID)
	if err != nil {
		logError(workspaceID, "load workspace for status update: %v", err)
		return
	}
	ws.TaskStatus = status
	if err := s.Gateway.SaveWorkspace(ctx, ws); err != nil {
		logError(workspaceID, "save workspace status: %v", err)
	}
}

// recordSpawnFailure marks the process Failed and, when the failure looks
// like a missing executable, pushes a SetupRequired ErrorMessage entry so
// the timeline explains why nothing ran.
func (s *Supervisor) recordSpawnFailure(ctx context.Context, id string, spawnErr error) {
	logError(id, "spawn failed: %v", spawnErr)
	if err := s.Gateway.UpdateStatus(ctx, id, gateway.StatusFailed, nil); err != nil {
		logError(id, "mark failed after spawn error: %v", err)
	}

	store := timeline.NewMsgStore()
	idx := patch.NewIndexProvider(0)
	kind := timeline.ErrorOther
	if isExecutableNotFound(spawnErr) {
		kind = timeline.ErrorSetupRequired
	}
	entry := timeline.NormalizedEntry{
		EntryType: timeline.EntryErrorMessage,
		ErrorKind: kind,
		Content:   spawnErr.Error(),
	}
	data, _ := json.Marshal(entry)
	store.PushPatch(patch.Add(idx.Next(), data))
	store.PushFinished()

	sinkPath := filepath.Join(s.LogDir, id+".jsonl")
	if rt, err := normalizer.NewNormalizerRuntime(ctx, id, store, sinkPath); err == nil {
		rt.Wait()
	}
}

func isExecutableNotFound(err error) bool {
	_, ok := err.(*exec.Error)
	return ok
}
