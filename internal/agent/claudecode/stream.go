package claudecode

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// StreamEventType enumerates the top-level tags of Claude Code's
// stream-json wire format.
type StreamEventType string

const (
	EventSystem          StreamEventType = "system"
	EventAssistant       StreamEventType = "assistant"
	EventUser            StreamEventType = "user"
	EventStreamEvent     StreamEventType = "stream_event"
	EventResult          StreamEventType = "result"
	EventControlRequest  StreamEventType = "control_request"
	EventControlResponse StreamEventType = "control_response"
	EventControlCancel   StreamEventType = "control_cancel_request"
	EventApprovalReply   StreamEventType = "approval_response"
)

// ContentBlockType enumerates content block types within a message.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockThinking   ContentBlockType = "thinking"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// TokenUsage holds token usage counts from a result event.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MaxThinkingBytes truncates thinking content at the Cloud Logging per-field
// limit so a single runaway thought does not blow out log storage.
const MaxThinkingBytes = 50000

type rawContentBlock struct {
	Type      string          `json:"type"`
	Index     int             `json:"index"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Name      string          `json:"name,omitempty"`
	ID        string          `json:"id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   interface{}     `json:"content,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type rawDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
}

type rawLine struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	// stream_event fields
	Event json.RawMessage `json:"event,omitempty"`

	SessionID string `json:"session_id,omitempty"`

	// Model is set on the system/init line, the first place the wire
	// format names which model is actually serving the session.
	Model string `json:"model,omitempty"`
}

type rawMessage struct {
	ID      string            `json:"id,omitempty"`
	Content []rawContentBlock `json:"content"`
}

// modelUsage is the per-model usage breakdown on a result line; ContextWindow
// is the one field the decoder needs out of it.
type modelUsage struct {
	ContextWindow int `json:"context_window,omitempty"`
}

type rawResult struct {
	Content    []rawContentBlock     `json:"content"`
	Usage      *TokenUsage           `json:"usage,omitempty"`
	StopReason string                `json:"stop_reason,omitempty"`
	ModelUsage map[string]modelUsage `json:"modelUsage,omitempty"`
}

type rawStreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock rawContentBlock `json:"content_block"`
	Delta        rawDelta        `json:"delta"`
	Message      struct {
		ID string `json:"id"`
	} `json:"message"`
}

// blockState tracks one in-flight content block's timeline slot while
// stream_event deltas are still arriving for it.
type blockState struct {
	index     int // timeline index allocated for this block
	toolName  string
	toolCall  string
	kind      ContentBlockType
	text      string
	rawInput  []byte
	committed bool
}

// Decoder maintains per-message, per-content-block state while consuming a
// Claude Code NDJSON stream line by line and turns it into timeline
// patches. One Decoder is used for the lifetime of a single execution.
type Decoder struct {
	idx *patch.IndexProvider

	// blocks keyed by "<messageID>:<blockIndex>" for stream_event deltas.
	blocks map[string]*blockState

	// toolEntries keyed by tool_call_id (Claude calls it "id" on tool_use
	// blocks), so a later tool_result can rewrite the same timeline slot.
	toolEntries map[string]*blockState

	ampResumeActive  bool
	ampResumeApplied bool
	sawAnyEntry      bool

	// mainModel is the model name captured off the system/init line, used
	// to look up this session's context window in a result line's
	// modelUsage map.
	mainModel string
}

// NewDecoder creates a stream decoder allocating indices from idx. When
// ampResume is true, the decoder resets a pre-populated timeline (emitting
// repeated remove(0) patches) the first time it sees a top-level user text
// entry on a non-empty timeline, per the amp-resume import strategy.
func NewDecoder(idx *patch.IndexProvider, ampResume bool) *Decoder {
	return &Decoder{
		idx:             idx,
		blocks:          make(map[string]*blockState),
		toolEntries:     make(map[string]*blockState),
		ampResumeActive: ampResume,
	}
}

// FeedLine processes one NDJSON line and returns zero or more patches.
func (d *Decoder) FeedLine(line []byte) []patch.Patch {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil
	}

	switch StreamEventType(raw.Type) {
	case EventAssistant, EventUser:
		var msg rawMessage
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil
		}
		return d.feedMessage(StreamEventType(raw.Type), msg)

	case EventResult:
		var res rawResult
		if err := json.Unmarshal(raw.Result, &res); err != nil {
			return nil
		}
		return d.feedResultBlocks(res)

	case EventStreamEvent:
		var se rawStreamEvent
		if err := json.Unmarshal(raw.Event, &se); err != nil {
			return nil
		}
		return d.feedStreamEvent(se)

	case EventSystem:
		if raw.Subtype == "init" && d.mainModel == "" && raw.Model != "" {
			d.mainModel = raw.Model
		}
		return nil

	default:
		return nil
	}
}

func (d *Decoder) feedMessage(evtType StreamEventType, msg rawMessage) []patch.Patch {
	var patches []patch.Patch

	userText := false
	for _, b := range msg.Content {
		if ContentBlockType(b.Type) == BlockText && b.Text != "" {
			userText = true
		}
	}
	if d.ampResumeActive && !d.ampResumeApplied && evtType == EventUser && userText && d.sawAnyEntry {
		for n := d.idx.Peek(); n > 0; n-- {
			patches = append(patches, patch.Remove(0))
		}
		d.idx.Reset()
		d.ampResumeApplied = true
	}

	for _, block := range msg.Content {
		p := d.commitBlock(evtType, block, msg.ID)
		if p != nil {
			patches = append(patches, *p)
		}
	}
	return patches
}

func (d *Decoder) feedResultBlocks(res rawResult) []patch.Patch {
	var patches []patch.Patch
	for _, block := range res.Content {
		p := d.commitBlock(EventResult, block, "result")
		if p != nil {
			patches = append(patches, *p)
		}
	}
	if res.Usage != nil {
		idx := d.idx.Next()
		usage := &timeline.TokenUsageMeta{
			TotalTokens: res.Usage.InputTokens + res.Usage.OutputTokens,
		}
		if mu, ok := res.ModelUsage[d.mainModel]; ok {
			usage.ModelContextWindow = mu.ContextWindow
		}
		entry := timeline.NormalizedEntry{
			EntryType:  timeline.EntryTokenUsageInfo,
			TokenUsage: usage,
		}
		patches = append(patches, patch.Add(idx, mustMarshal(entry)))
	}
	return patches
}

func (d *Decoder) commitBlock(evtType StreamEventType, block rawContentBlock, msgID string) *patch.Patch {
	d.sawAnyEntry = true

	switch ContentBlockType(block.Type) {
	case BlockText:
		if block.Text == "" {
			return nil
		}
		idx := d.idx.Next()
		entryType := timeline.EntryAssistantMessage
		if evtType == EventUser {
			entryType = timeline.EntryUserMessage
		}
		p := patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: entryType, Content: block.Text}))
		return &p

	case BlockThinking:
		content := block.Thinking
		if len(content) > MaxThinkingBytes {
			content = content[:MaxThinkingBytes]
		}
		idx := d.idx.Next()
		p := patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryThinking, Content: content}))
		return &p

	case BlockToolUse:
		idx := d.idx.Next()
		meta := &timeline.ToolUseMeta{
			ToolName:   block.Name,
			ToolCallID: block.ID,
			ActionType: classifyAction(block.Name),
			Status:     timeline.ToolCreated,
			RawInput:   string(block.Input),
		}
		state := &blockState{index: idx, toolName: block.Name, toolCall: block.ID, kind: BlockToolUse}
		d.toolEntries[block.ID] = state
		p := patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))
		return &p

	case BlockToolResult:
		state, ok := d.toolEntries[block.ToolUseID]
		if !ok {
			// Result arrived with no matching tool_use (adapter restart mid
			// tool call); surface as a standalone tool-use entry instead of
			// dropping it.
			idx := d.idx.Next()
			content := blockContentToString(block.Content)
			status := timeline.ToolSuccess
			if block.IsError {
				status = timeline.ToolFailed
			}
			meta := &timeline.ToolUseMeta{ToolName: "unknown", Status: status}
			meta.CommandResult = &timeline.CommandResult{Output: content}
			p := patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))
			return &p
		}

		content := blockContentToString(block.Content)
		status := timeline.ToolSuccess
		if block.IsError {
			status = timeline.ToolFailed
		}
		meta := &timeline.ToolUseMeta{
			ToolName:   state.toolName,
			ToolCallID: state.toolCall,
			ActionType: classifyAction(state.toolName),
			Status:     status,
		}
		if isBashTool(state.toolName) {
			exitCode := extractExitCode(content)
			meta.CommandResult = &timeline.CommandResult{Output: content, ExitCode: exitCode}
		} else {
			meta.CommandResult = &timeline.CommandResult{Output: content}
		}
		p := patch.Replace(state.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))
		return &p
	}
	return nil
}

func (d *Decoder) feedStreamEvent(se rawStreamEvent) []patch.Patch {
	key := se.Message.ID + ":" + strconv.Itoa(se.Index)

	switch se.Type {
	case "content_block_start":
		kind := ContentBlockType(se.ContentBlock.Type)
		state := &blockState{kind: kind, toolName: se.ContentBlock.Name, toolCall: se.ContentBlock.ID}
		d.blocks[key] = state
		if kind == BlockToolUse {
			d.toolEntries[se.ContentBlock.ID] = state
		}
		return nil

	case "content_block_delta":
		state, ok := d.blocks[key]
		if !ok {
			return nil
		}
		switch ContentBlockType(state.kind) {
		case BlockText:
			state.text += se.Delta.Text
		case BlockThinking:
			state.text += se.Delta.Thinking
		case BlockToolUse:
			state.rawInput = append(state.rawInput, []byte(se.Delta.PartialJSON)...)
		}
		return d.emitBlockState(state)

	case "content_block_stop":
		state, ok := d.blocks[key]
		if !ok {
			return nil
		}
		delete(d.blocks, key)
		return d.emitBlockState(state)

	case "message_stop":
		for k, state := range d.blocks {
			if state.toolCall != "" {
				continue // tool_use entries stay live until their tool_result arrives
			}
			delete(d.blocks, k)
		}
		return nil
	}
	return nil
}

func (d *Decoder) emitBlockState(state *blockState) []patch.Patch {
	var entry timeline.NormalizedEntry
	switch state.kind {
	case BlockText:
		if state.text == "" {
			return nil
		}
		entry = timeline.NormalizedEntry{EntryType: timeline.EntryAssistantMessage, Content: state.text}
	case BlockThinking:
		content := state.text
		if len(content) > MaxThinkingBytes {
			content = content[:MaxThinkingBytes]
		}
		entry = timeline.NormalizedEntry{EntryType: timeline.EntryThinking, Content: content}
	case BlockToolUse:
		entry = timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: &timeline.ToolUseMeta{
			ToolName:   state.toolName,
			ToolCallID: state.toolCall,
			ActionType: classifyAction(state.toolName),
			Status:     timeline.ToolCreated,
			RawInput:   string(state.rawInput),
		}}
	default:
		return nil
	}

	if !state.committed {
		state.index = d.idx.Next()
		state.committed = true
		p := patch.Add(state.index, mustMarshal(entry))
		return []patch.Patch{p}
	}
	p := patch.Replace(state.index, mustMarshal(entry))
	return []patch.Patch{p}
}

var exitCodePattern = regexp.MustCompile(`[Ee]xit[ _]?[Cc]ode[:\s]+(-?\d+)`)

func extractExitCode(output string) *int {
	m := exitCodePattern.FindStringSubmatch(output)
	if len(m) < 2 {
		return nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &code
}

func isBashTool(name string) bool {
	switch name {
	case "Bash", "bash", "shell", "run_command":
		return true
	default:
		return false
	}
}

func classifyAction(toolName string) timeline.ActionType {
	switch toolName {
	case "Read", "NotebookRead":
		return timeline.ActionFileRead
	case "Edit", "Write", "MultiEdit", "NotebookEdit":
		return timeline.ActionFileEdit
	case "Bash", "bash":
		return timeline.ActionCommandRun
	case "Grep", "Glob":
		return timeline.ActionSearch
	case "WebFetch", "WebSearch":
		return timeline.ActionWebFetch
	case "TodoWrite":
		return timeline.ActionTodoManagement
	case "Task":
		return timeline.ActionTaskCreate
	case "ExitPlanMode":
		return timeline.ActionPlanPresentation
	default:
		return timeline.ActionGeneric
	}
}

func blockContentToString(content interface{}) string {
	if content == nil {
		return ""
	}
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if text, ok := m["text"].(string); ok && text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			out := ""
			for i, p := range parts {
				if i > 0 {
					out += "\n"
				}
				out += p
			}
			return out
		}
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func mustMarshal(entry timeline.NormalizedEntry) json.RawMessage {
	data, err := json.Marshal(entry)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
