package opencode

import (
	"context"
	"encoding/json"

	"github.com/andywolf/agentium-supervisor/internal/approval"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// toolCallRecord tracks a tool call that may start out as a generic "Other"
// shape before its tool name is learned, so metadata accumulated before
// promotion is not lost: the index, the tool name and the last non-empty
// input are kept across events. Output comes from the latest event only.
// Text and reasoning parts reuse it to hold their accumulated text.
type toolCallRecord struct {
	index     int
	toolName  string
	promoted  bool
	committed bool
	input     string
	text      string
}

type partUpdated struct {
	SessionID string `json:"sessionID"`
	Part      struct {
		ID       string          `json:"id"`
		Type     string          `json:"type"`
		Text     string          `json:"text,omitempty"`
		Delta    string          `json:"delta,omitempty"`
		ToolName string          `json:"tool,omitempty"`
		CallID   string          `json:"callID,omitempty"`
		State    string          `json:"state,omitempty"`
		Input    json.RawMessage `json:"input,omitempty"`
		Output   string          `json:"output,omitempty"`
	} `json:"part"`
}

type permissionAsked struct {
	SessionID string `json:"sessionID"`
	CallID    string `json:"callID"`
	ToolName  string `json:"tool"`
	Input     string `json:"input,omitempty"`
}

type sessionEvent struct {
	SessionID string `json:"sessionID"`
	Message   string `json:"message,omitempty"`
}

type todoEvent struct {
	Todos []struct {
		Content string `json:"content"`
		Status  string `json:"status"`
	} `json:"todos"`
}

// Decoder turns Opencode SSE events into timeline patches, keyed by the
// tool-call id the server assigns.
type Decoder struct {
	idx      *patch.IndexProvider
	broker   approval.Requester
	execID   string
	calls    map[string]*toolCallRecord
	messages map[string]*toolCallRecord // text/reasoning parts keyed by part id
}

// NewDecoder creates a stream decoder for one execution, resolving
// permission.asked events through broker (which may be approval.NoopBroker{}).
func NewDecoder(idx *patch.IndexProvider, broker approval.Requester, executionID string) *Decoder {
	return &Decoder{
		idx:      idx,
		broker:   broker,
		execID:   executionID,
		calls:    make(map[string]*toolCallRecord),
		messages: make(map[string]*toolCallRecord),
	}
}

// FeedEvent processes one SSE event and returns zero or more patches. Some
// event types (permission.asked) synchronously call into the approval
// broker, so FeedEvent may block briefly.
func (d *Decoder) FeedEvent(ctx context.Context, eventType, data string) []patch.Patch {
	switch eventType {
	case "message.part.updated":
		var evt partUpdated
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return nil
		}
		return d.feedPart(evt)

	case "permission.asked":
		var evt permissionAsked
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return nil
		}
		return d.feedPermission(ctx, evt)

	case "session.error":
		var evt sessionEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return nil
		}
		idx := d.idx.Next()
		entry := timeline.NormalizedEntry{EntryType: timeline.EntryErrorMessage, ErrorKind: timeline.ErrorOther, Content: evt.Message}
		return []patch.Patch{patch.Add(idx, mustMarshal(entry))}

	case "todo.updated":
		var evt todoEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return nil
		}
		return d.feedTodo(evt)

	default:
		return nil
	}
}

func (d *Decoder) feedPart(evt partUpdated) []patch.Patch {
	switch evt.Part.Type {
	case "text":
		return d.appendMessagePart(evt.Part.ID, timeline.EntryAssistantMessage, evt.Part.Text, evt.Part.Delta)
	case "reasoning":
		return d.appendMessagePart(evt.Part.ID, timeline.EntryThinking, evt.Part.Text, evt.Part.Delta)
	case "tool":
		return d.feedToolPart(evt)
	default:
		return nil
	}
}

func (d *Decoder) appendMessagePart(partID string, entryType timeline.EntryType, text, delta string) []patch.Patch {
	if text == "" && delta == "" {
		return nil
	}

	rec, ok := d.messages[partID]
	if !ok {
		rec = &toolCallRecord{}
		d.messages[partID] = rec
	}
	if text != "" {
		rec.text = text
	} else {
		rec.text += delta
	}

	entry := timeline.NormalizedEntry{EntryType: entryType, Content: rec.text}
	if !rec.committed {
		rec.index = d.idx.Next()
		rec.committed = true
		return []patch.Patch{patch.Add(rec.index, mustMarshal(entry))}
	}
	return []patch.Patch{patch.Replace(rec.index, mustMarshal(entry))}
}

func (d *Decoder) feedToolPart(evt partUpdated) []patch.Patch {
	rec, ok := d.calls[evt.Part.CallID]
	if !ok {
		idx := d.idx.Next()
		rec = &toolCallRecord{index: idx}
		d.calls[evt.Part.CallID] = rec
	}
	if evt.Part.ToolName != "" {
		rec.toolName = evt.Part.ToolName
		rec.promoted = true
	}
	if len(evt.Part.Input) > 0 {
		rec.input = string(evt.Part.Input)
	}

	status := timeline.ToolCreated
	switch evt.Part.State {
	case "completed":
		status = timeline.ToolSuccess
	case "error":
		status = timeline.ToolFailed
	}

	toolName := rec.toolName
	if toolName == "" {
		toolName = "tool"
	}
	meta := &timeline.ToolUseMeta{ToolName: toolName, ToolCallID: evt.Part.CallID, ActionType: timeline.ActionGeneric, Status: status, RawInput: rec.input}
	if evt.Part.Output != "" {
		meta.CommandResult = &timeline.CommandResult{Output: evt.Part.Output}
	}

	op := patch.Add
	if !isFirstEmission(rec) {
		op = patch.Replace
	}
	return []patch.Patch{op(rec.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

// isFirstEmission reports whether rec has not produced a patch yet and
// marks it as emitted: the index is allocated up front in feedToolPart, and
// this flag distinguishes the very first patch (Add) from every subsequent
// one (Replace).
func isFirstEmission(rec *toolCallRecord) bool {
	if rec.committed {
		return false
	}
	rec.committed = true
	return true
}

func (d *Decoder) feedPermission(ctx context.Context, evt permissionAsked) []patch.Patch {
	result, _ := d.broker.RequestToolApproval(ctx, d.execID, evt.ToolName, evt.Input, evt.CallID)

	idx := d.idx.Next()
	status := timeline.ToolDenied
	reason := result.Reason
	if result.Status == approval.Approved {
		status = timeline.ToolCreated
	}
	meta := &timeline.ToolUseMeta{ToolName: evt.ToolName, ToolCallID: evt.CallID, ActionType: timeline.ActionGeneric, Status: status, DeniedReason: reason}
	return []patch.Patch{patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

func (d *Decoder) feedTodo(evt todoEvent) []patch.Patch {
	content := ""
	for i, item := range evt.Todos {
		if i > 0 {
			content += "\n"
		}
		content += "[" + item.Status + "] " + item.Content
	}
	idx := d.idx.Next()
	meta := &timeline.ToolUseMeta{ToolName: "todo", ActionType: timeline.ActionTodoManagement, Status: timeline.ToolSuccess, RawInput: content}
	return []patch.Patch{patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}
}

// ReplyForApproval translates an approval.Result into the wire shape
// Opencode expects on its permission-reply endpoint.
func ReplyForApproval(result approval.Result) map[string]string {
	if result.Status == approval.Approved {
		return map[string]string{"reply": "once"}
	}
	return map[string]string{"reply": "reject", "message": result.Reason}
}

func mustMarshal(entry timeline.NormalizedEntry) json.RawMessage {
	data, err := json.Marshal(entry)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
