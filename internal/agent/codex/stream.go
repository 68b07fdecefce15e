package codex

import (
	"encoding/json"
	"regexp"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// rpcLine is the outer JSON-RPC-ish envelope Codex CLI emits: event
// notifications use method "codex/event"; session id and other acks
// arrive as plain JSON-RPC responses keyed by id. The decoder does not read
// Result; its session id comes from the session_configured notification.
type rpcLine struct {
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type eventParams struct {
	Msg eventMsg `json:"msg"`
}

type fileChange struct {
	Path    string `json:"path"`
	Diff    string `json:"diff,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type planItem struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

type eventMsg struct {
	Type string `json:"type"`

	Delta string `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`

	CallID           string       `json:"call_id,omitempty"`
	Command          string       `json:"command,omitempty"`
	Stream           string       `json:"stream,omitempty"`
	Chunk            string       `json:"chunk,omitempty"`
	ExitCode         *int         `json:"exit_code,omitempty"`
	FormattedOutput  string       `json:"formatted_output,omitempty"`
	FileChanges      []fileChange `json:"file_changes,omitempty"`
	ToolName         string       `json:"tool_name,omitempty"`
	Query            string       `json:"query,omitempty"`
	Plan             []planItem   `json:"plan,omitempty"`
	InputTokens      int          `json:"input_tokens,omitempty"`
	OutputTokens     int          `json:"output_tokens,omitempty"`
	ModelContextSize int          `json:"model_context_window,omitempty"`
	Message          string       `json:"message,omitempty"`
	SessionID        string       `json:"session_id,omitempty"`
}

// sessionIDFallback matches a 32-hex-with-dashes UUID at the start of a
// truncated log line, for when the session id never arrives structured.
var sessionIDFallback = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// callState tracks one in-flight tool-call's timeline slot and the set of
// file-change indices it has grown, so ApplyPatchApprovalRequest can
// reconcile a file list that later shrinks.
type callState struct {
	index        int
	kind         string // "exec", "patch", "mcp", "websearch"
	fileIndices  []int
	committed    bool
	text         string // accumulated delta text for "assistant"/"reasoning"
}

// Decoder turns a Codex JSON-RPC notification stream into timeline
// patches, keeping per-call_id state across events.
type Decoder struct {
	idx   *patch.IndexProvider
	calls map[string]*callState

	SessionID string
}

// NewDecoder creates a stream decoder allocating indices from idx.
func NewDecoder(idx *patch.IndexProvider) *Decoder {
	return &Decoder{idx: idx, calls: make(map[string]*callState)}
}

// FeedLine processes one JSON-RPC line and returns zero or more patches.
func (d *Decoder) FeedLine(line []byte) []patch.Patch {
	var rpc rpcLine
	if err := json.Unmarshal(line, &rpc); err != nil {
		if m := sessionIDFallback.Find(line); m != nil && d.SessionID == "" {
			d.SessionID = string(m)
		}
		return nil
	}

	if rpc.Method != "codex/event" {
		return nil
	}

	var params eventParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		return nil
	}
	return d.feedMsg(params.Msg)
}

func (d *Decoder) feedMsg(msg eventMsg) []patch.Patch {
	switch msg.Type {
	case "session_configured":
		if msg.SessionID != "" {
			d.SessionID = msg.SessionID
		}
		return nil

	case "agent_message_delta":
		return d.appendText("assistant", "", timeline.EntryAssistantMessage, msg.Delta)
	case "agent_message":
		return d.finalText(timeline.EntryAssistantMessage, msg.Text)
	case "agent_reasoning_delta":
		return d.appendText("reasoning", "", timeline.EntryThinking, msg.Delta)
	case "agent_reasoning":
		return d.finalText(timeline.EntryThinking, msg.Text)

	case "exec_command_begin":
		return d.beginCall(msg.CallID, "exec", timeline.ActionCommandRun, msg.Command)
	case "exec_command_output_delta":
		return d.appendCallOutput(msg.CallID, msg.Chunk)
	case "exec_command_end":
		return d.endExecCall(msg.CallID, msg.ExitCode, msg.FormattedOutput)

	case "apply_patch_approval_request", "patch_apply_begin":
		return d.reconcilePatchCall(msg.CallID, msg.FileChanges)
	case "patch_apply_end":
		return d.endPatchCall(msg.CallID, msg.ExitCode == nil || *msg.ExitCode == 0)

	case "mcp_tool_call_begin":
		return d.beginCall(msg.CallID, "mcp", timeline.ActionGeneric, msg.ToolName)
	case "mcp_tool_call_end":
		return d.endGenericCall(msg.CallID, msg.FormattedOutput, msg.ExitCode == nil || *msg.ExitCode == 0)

	case "web_search_begin":
		return d.beginCall(msg.CallID, "websearch", timeline.ActionWebFetch, msg.Query)
	case "web_search_end":
		return d.endGenericCall(msg.CallID, msg.FormattedOutput, true)

	case "plan_update":
		return d.planUpdate(msg.Plan)

	case "token_count":
		idx := d.idx.Next()
		entry := timeline.NormalizedEntry{
			EntryType: timeline.EntryTokenUsageInfo,
			TokenUsage: &timeline.TokenUsageMeta{
				TotalTokens:        msg.InputTokens + msg.OutputTokens,
				ModelContextWindow: msg.ModelContextSize,
			},
		}
		return []patch.Patch{patch.Add(idx, mustMarshal(entry))}

	case "stream_error", "error":
		idx := d.idx.Next()
		entry := timeline.NormalizedEntry{EntryType: timeline.EntryErrorMessage, ErrorKind: timeline.ErrorOther, Content: msg.Message}
		return []patch.Patch{patch.Add(idx, mustMarshal(entry))}

	default:
		return nil
	}
}

func (d *Decoder) appendText(kind, callID string, entryType timeline.EntryType, delta string) []patch.Patch {
	if delta == "" {
		return nil
	}
	key := kind
	state, ok := d.calls[key]
	if !ok {
		state = &callState{}
		d.calls[key] = state
	}
	state.text += delta
	entry := timeline.NormalizedEntry{EntryType: entryType, Content: state.text}
	if !state.committed {
		state.index = d.idx.Next()
		state.committed = true
		return []patch.Patch{patch.Add(state.index, mustMarshal(entry))}
	}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(entry))}
}

func (d *Decoder) finalText(entryType timeline.EntryType, text string) []patch.Patch {
	kind := "assistant"
	if entryType == timeline.EntryThinking {
		kind = "reasoning"
	}
	delete(d.calls, kind)
	if text == "" {
		return nil
	}
	idx := d.idx.Next()
	return []patch.Patch{patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: entryType, Content: text}))}
}

func (d *Decoder) beginCall(callID, kind string, action timeline.ActionType, label string) []patch.Patch {
	idx := d.idx.Next()
	state := &callState{index: idx, kind: kind, committed: true}
	d.calls[callID] = state
	meta := &timeline.ToolUseMeta{ToolName: label, ToolCallID: callID, ActionType: action, Status: timeline.ToolCreated}
	return []patch.Patch{patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

func (d *Decoder) appendCallOutput(callID, chunk string) []patch.Patch {
	state, ok := d.calls[callID]
	if !ok || chunk == "" {
		return nil
	}
	meta := &timeline.ToolUseMeta{ToolCallID: callID, Status: timeline.ToolCreated, CommandResult: &timeline.CommandResult{Output: chunk}}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

func (d *Decoder) endExecCall(callID string, exitCode *int, output string) []patch.Patch {
	state, ok := d.calls[callID]
	if !ok {
		return nil
	}
	delete(d.calls, callID)
	status := timeline.ToolSuccess
	if exitCode != nil && *exitCode != 0 {
		status = timeline.ToolFailed
	}
	meta := &timeline.ToolUseMeta{ToolCallID: callID, ActionType: timeline.ActionCommandRun, Status: status, CommandResult: &timeline.CommandResult{Output: output, ExitCode: exitCode}}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

// reconcilePatchCall grows or shrinks the file-change list for a patch
// call as ApplyPatchApprovalRequest/PatchApplyBegin revise it, removing
// stale indices with explicit remove patches.
func (d *Decoder) reconcilePatchCall(callID string, changes []fileChange) []patch.Patch {
	state, ok := d.calls[callID]
	if !ok {
		idx := d.idx.Next()
		state = &callState{index: idx, kind: "patch", committed: true}
		d.calls[callID] = state
	}

	var patches []patch.Patch
	tlChanges := make([]timeline.FileChange, len(changes))
	for i, c := range changes {
		tlChanges[i] = timeline.FileChange{Path: c.Path, Diff: c.Diff, Summary: c.Summary}
	}

	meta := &timeline.ToolUseMeta{ToolCallID: callID, ActionType: timeline.ActionFileEdit, Status: timeline.ToolCreated, FileChanges: tlChanges}
	op := patch.Replace
	if !ok {
		op = patch.Add
	}
	patches = append(patches, op(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta})))

	for _, stale := range state.fileIndices {
		if stale >= len(changes) {
			patches = append(patches, patch.Remove(stale))
		}
	}
	state.fileIndices = make([]int, len(changes))
	for i := range changes {
		state.fileIndices[i] = i
	}
	return patches
}

func (d *Decoder) endPatchCall(callID string, success bool) []patch.Patch {
	state, ok := d.calls[callID]
	if !ok {
		return nil
	}
	delete(d.calls, callID)
	status := timeline.ToolSuccess
	if !success {
		status = timeline.ToolFailed
	}
	meta := &timeline.ToolUseMeta{ToolCallID: callID, ActionType: timeline.ActionFileEdit, Status: status}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

func (d *Decoder) endGenericCall(callID, output string, success bool) []patch.Patch {
	state, ok := d.calls[callID]
	if !ok {
		return nil
	}
	delete(d.calls, callID)
	status := timeline.ToolSuccess
	if !success {
		status = timeline.ToolFailed
	}
	action := timeline.ActionGeneric
	if state.kind == "websearch" {
		action = timeline.ActionWebFetch
	}
	meta := &timeline.ToolUseMeta{ToolCallID: callID, ActionType: action, Status: status, CommandResult: &timeline.CommandResult{Output: output}}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

func (d *Decoder) planUpdate(items []planItem) []patch.Patch {
	content := ""
	for i, item := range items {
		if i > 0 {
			content += "\n"
		}
		content += "[" + item.Status + "] " + item.Step
	}
	key := "plan"
	state, ok := d.calls[key]
	if !ok {
		state = &callState{}
		d.calls[key] = state
	}
	entry := timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: &timeline.ToolUseMeta{
		ToolName: "plan", ActionType: timeline.ActionPlanPresentation, Status: timeline.ToolSuccess, RawInput: content,
	}}
	if !state.committed {
		state.index = d.idx.Next()
		state.committed = true
		return []patch.Patch{patch.Add(state.index, mustMarshal(entry))}
	}
	return []patch.Patch{patch.Replace(state.index, mustMarshal(entry))}
}

func mustMarshal(entry timeline.NormalizedEntry) json.RawMessage {
	data, err := json.Marshal(entry)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
