package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/git"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// MaxSummaryLen bounds the coding-agent turn summary written at finalize
// time.
const MaxSummaryLen = 4096

// runExitMonitor is the heart of the supervisor: it races the OS
// process wait against the adapter's ExitSignal, and on whichever wins, drives
// the process through status write, summary extraction, auto-commit,
// next-action chaining, and finalize.
func (s *Supervisor) runExitMonitor(ctx context.Context, id string, ws WorkspaceContext, action gateway.ExecutorAction, runReason gateway.RunReason, h *handle) {
	defer close(h.done)
	defer s.removeHandle(id)

	status, exitCode := s.waitForExit(h)

	// step 1: write terminal status unless already stopped
	// externally (StopExecution may have written Killed/Completed before
	// the OS wait resolved) — in that case that status is authoritative
	// for every downstream decision below, not whatever the OS exit code
	// happens to say about a process we just force-killed.
	if err := s.Gateway.UpdateStatus(ctx, id, status, &exitCode); err != nil {
		if _, alreadyTerminal := err.(*gateway.ErrTerminal); alreadyTerminal {
			if proc, getErr := s.Gateway.GetExecutionProcess(ctx, id); getErr == nil {
				status = proc.Status
			}
		} else {
			logError(id, "write terminal status: %v", err)
		}
	}

	s.writeTurnSummary(ctx, id, h.store)

	committed := false
	if status == gateway.StatusCompleted || (runReason == gateway.RunCleanupScript && status != gateway.StatusRunning) {
		committed = s.autoCommit(ctx, ws, runReason, id)
	}

	s.captureAfterHeads(ctx, id, ws)

	startNext := s.shouldStartNext(action, runReason, status, committed)
	if startNext && action.Next != nil {
		s.startChained(ctx, ws, id, action.Next, runReason)
	}

	if s.shouldFinalize(action, runReason, status) {
		s.finalizeOrFollowUp(ctx, ws, id, status)
	}

	h.store.PushFinished()
	if h.runtime != nil {
		waitWithTimeout(h.runtime.Wait, GraceTimeout)
	}
}

// waitForExit races the OS process exit against the adapter's logical
// ExitSignal (Scenario E). Whichever resolves first wins; if ExitSignal
// wins, the process group is force-killed since the agent's logical work
// is done even though its process would otherwise linger.
func (s *Supervisor) waitForExit(h *handle) (gateway.ProcessStatus, int) {
	waitDone := make(chan struct {
		code int
		err  error
	}, 1)
	go func() {
		code, err := h.child.Wait()
		waitDone <- struct {
			code int
			err  error
		}{code, err}
	}()

	if h.child.ExitSignal != nil {
		select {
		case <-h.child.ExitSignal:
			killProcessGroup(h.child.Pid)
			return gateway.StatusCompleted, 0
		case res := <-waitDone:
			return statusForExit(res.code, res.err)
		}
	}

	res := <-waitDone
	return statusForExit(res.code, res.err)
}

func statusForExit(code int, err error) (gateway.ProcessStatus, int) {
	if err != nil && code < 0 {
		return gateway.StatusFailed, code
	}
	if code == 0 {
		return gateway.StatusCompleted, 0
	}
	return gateway.StatusFailed, code
}

// writeTurnSummary extracts the last AssistantMessage from the timeline
// and writes it as the coding-agent turn's summary, truncated at
// MaxSummaryLen chars at a char boundary.
func (s *Supervisor) writeTurnSummary(ctx context.Context, id string, store *timeline.MsgStore) {
	summary := lastAssistantMessage(store)
	if summary == "" {
		return
	}
	if runes := []rune(summary); len(runes) > MaxSummaryLen {
		summary = string(runes[:MaxSummaryLen])
	}
	if err := s.Gateway.SaveCodingAgentTurn(ctx, gateway.CodingAgentTurn{
		ExecutionProcessID: id,
		Summary:            summary,
	}); err != nil {
		logError(id, "save turn summary: %v", err)
	}
}

// lastAssistantMessage replays a store's buffered patches and returns the
// content of the most recently (add- or replace-)written AssistantMessage
// entry.
func lastAssistantMessage(store *timeline.MsgStore) string {
	entries := make(map[int]timeline.NormalizedEntry)
	var order []int
	for _, msg := range store.History() {
		if msg.Kind != timeline.LogJSONPatch {
			continue
		}
		p := msg.Patch
		switch p.Op {
		case "remove":
			delete(entries, p.Index)
		case "add", "replace":
			var e timeline.NormalizedEntry
			if err := json.Unmarshal(p.Entry, &e); err != nil {
				continue
			}
			if _, existed := entries[p.Index]; !existed {
				order = append(order, p.Index)
			}
			entries[p.Index] = e
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		if e, ok := entries[order[i]]; ok && e.EntryType == timeline.EntryAssistantMessage {
			return e.Content
		}
	}
	return ""
}

// shouldStartNext decides whether to chain action.Next: for CodingAgent runs, only
// chain the next action if the agent produced commits or the auto-commit
// step just created one; for other run reasons, always chain.
func (s *Supervisor) shouldStartNext(action gateway.ExecutorAction, runReason gateway.RunReason, status gateway.ProcessStatus, committed bool) bool {
	if status != gateway.StatusCompleted {
		return false
	}
	if runReason == gateway.RunCodingAgent {
		return committed
	}
	return true
}

func (s *Supervisor) startChained(ctx context.Context, ws WorkspaceContext, prevID string, next *gateway.ExecutorAction, runReason gateway.RunReason) {
	proc, err := s.Gateway.GetExecutionProcess(ctx, prevID)
	if err != nil {
		logError(prevID, "load process for chaining: %v", err)
		return
	}
	if _, err := s.StartExecution(ctx, ws, proc.SessionID, *next, runReason); err != nil {
		logError(prevID, "start chained action: %v", err)
	}
}

// shouldFinalize decides whether the owning task is ready to finalize:
// never for DevServer; never for a parallel SetupScript with no next
// action; always on Failed/Killed even with a pending next action;
// otherwise only once the action chain is exhausted.
func (s *Supervisor) shouldFinalize(action gateway.ExecutorAction, runReason gateway.RunReason, status gateway.ProcessStatus) bool {
	if runReason == gateway.RunDevServer {
		return false
	}
	if status == gateway.StatusFailed || status == gateway.StatusKilled {
		return true
	}
	if runReason == gateway.RunSetupScript && action.Next == nil {
		return false
	}
	return action.Next == nil
}

// finalizeOrFollowUp consumes a queued follow-up if one exists and the
// process didn't fail/get killed, otherwise finalizes the task.
func (s *Supervisor) finalizeOrFollowUp(ctx context.Context, ws WorkspaceContext, id string, status gateway.ProcessStatus) {
	proc, err := s.Gateway.GetExecutionProcess(ctx, id)
	if err != nil {
		logError(id, "load process for finalize: %v", err)
		s.finalizeTask(ctx, ws, status)
		return
	}

	if status != gateway.StatusFailed && status != gateway.StatusKilled {
		if prompt, ok, err := s.Gateway.DequeueFollowUp(ctx, proc.SessionID); err == nil && ok {
			followUp := gateway.ExecutorAction{
				Type:              gateway.ActionCodingAgentFollowUp,
				Prompt:            prompt,
				ExecutorProfileID: proc.Action.ExecutorProfileID,
			}
			if session, err := s.Gateway.GetSession(ctx, proc.SessionID); err == nil {
				followUp.AgentSessionID = session.AgentSessionID
			}
			if _, err := s.StartExecution(ctx, ws, proc.SessionID, followUp, gateway.RunCodingAgent); err != nil {
				logError(id, "start queued follow-up: %v", err)
			}
			return
		}
	}

	s.finalizeTask(ctx, ws, status)
}

// finalizeTask marks the task InReview and notifies, unless the process
// was Killed.
func (s *Supervisor) finalizeTask(ctx context.Context, ws WorkspaceContext, status gateway.ProcessStatus) {
	s.setTaskStatus(ctx, ws.WorkspaceID, gateway.TaskInReview)
	if status == gateway.StatusKilled {
		return
	}
	title := "Task ready for review"
	body := "The coding agent finished its work on " + ws.Branch + "."
	if status == gateway.StatusFailed {
		title = "Task failed"
		body = "The coding agent run on " + ws.Branch + " did not complete successfully."
	}
	if err := s.Notify.Notify(ctx, title, body); err != nil {
		logError(ws.WorkspaceID, "send finalize notification: %v", err)
	}
}

// captureAfterHeads captures after_head_commit per repo.
func (s *Supervisor) captureAfterHeads(ctx context.Context, id string, ws WorkspaceContext) {
	for _, r := range ws.Repos {
		head, err := git.NewRepo(r.WorktreePath).HeadCommit("HEAD")
		if err != nil {
			logError(id, "capture after_head_commit for repo %s: %v", r.RepoID, err)
			continue
		}
		if err := s.Gateway.UpdateSnapshot(ctx, id, gateway.RepoSnapshot{RepoID: r.RepoID, AfterHeadCommit: head}); err != nil {
			logError(id, "persist after_head_commit for repo %s: %v", r.RepoID, err)
		}
	}
}

// waitWithTimeout runs fn (a blocking wait) and gives up after d, matching
// the DB-stream worker's bounded shutdown await.
func waitWithTimeout(fn func(), d time.Duration) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
