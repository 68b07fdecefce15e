// Package droid implements the executor adapter for the Droid CLI: process
// spawning, FIFO-paired tool-call normalization into timeline patches, and
// slash-command discovery.
package droid

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

type rawLine struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Message string          `json:"message,omitempty"`
}

// pendingCall is a tool_call awaiting its FIFO-paired tool_result; Droid
// never echoes a correlating id, so calls are matched strictly in order.
type pendingCall struct {
	index    int
	toolName string
	rawInput string
}

var exitCodeFooter = regexp.MustCompile(`\[Process exited with code (-?\d+)\]`)

// Decoder turns a Droid JSON-lines stream into timeline patches, matching
// tool_call/tool_result pairs by arrival order rather than by id.
type Decoder struct {
	idx   *patch.IndexProvider
	queue []pendingCall
}

// NewDecoder creates a stream decoder allocating indices from idx.
func NewDecoder(idx *patch.IndexProvider) *Decoder {
	return &Decoder{idx: idx}
}

// FeedLine processes one JSON line and returns zero or more patches.
func (d *Decoder) FeedLine(line []byte) []patch.Patch {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil
	}

	switch raw.Type {
	case "system":
		return nil

	case "message":
		if raw.Text == "" {
			return nil
		}
		idx := d.idx.Next()
		entry := timeline.NormalizedEntry{EntryType: timeline.EntryAssistantMessage, Content: raw.Text}
		return []patch.Patch{patch.Add(idx, mustMarshal(entry))}

	case "tool_call":
		idx := d.idx.Next()
		call := pendingCall{index: idx, toolName: raw.Name, rawInput: string(raw.Input)}
		d.queue = append(d.queue, call)
		meta := &timeline.ToolUseMeta{ToolName: raw.Name, ActionType: classifyAction(raw.Name), Status: timeline.ToolCreated, RawInput: call.rawInput}
		return []patch.Patch{patch.Add(idx, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}

	case "tool_result":
		if len(d.queue) == 0 {
			return nil
		}
		call := d.queue[0]
		d.queue = d.queue[1:]

		output := decodeResultOutput(raw.Output)
		meta := &timeline.ToolUseMeta{ToolName: call.toolName, ActionType: classifyAction(call.toolName), Status: timeline.ToolSuccess}
		if call.toolName == "ApplyPatch" {
			meta.FileChanges = parseApplyPatchOutput(output)
		}
		if m := exitCodeFooter.FindStringSubmatch(output); len(m) == 2 {
			code, err := strconv.Atoi(m[1])
			if err == nil {
				meta.CommandResult = &timeline.CommandResult{Output: output, ExitCode: &code}
				if code != 0 {
					meta.Status = timeline.ToolFailed
				}
			}
		} else {
			meta.CommandResult = &timeline.CommandResult{Output: output}
		}
		return []patch.Patch{patch.Replace(call.index, mustMarshal(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, ToolUse: meta}))}

	case "completion":
		return nil

	case "error":
		idx := d.idx.Next()
		entry := timeline.NormalizedEntry{EntryType: timeline.EntryErrorMessage, ErrorKind: timeline.ErrorOther, Content: raw.Message}
		return []patch.Patch{patch.Add(idx, mustMarshal(entry))}
	}
	return nil
}

// decodeResultOutput handles Droid's inconsistent tool_result.output shape:
// sometimes a JSON string literal, sometimes raw text, sometimes a nested
// JSON document (notably ApplyPatch results). It always falls back to the
// raw bytes rather than dropping the result.
func decodeResultOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var nested map[string]interface{}
		if err := json.Unmarshal([]byte(asString), &nested); err == nil {
			if formatted, err := json.MarshalIndent(nested, "", "  "); err == nil {
				return string(formatted)
			}
		}
		return asString
	}
	return string(raw)
}

type applyPatchFile struct {
	Path    string `json:"path"`
	Diff    string `json:"diff,omitempty"`
	Summary string `json:"summary,omitempty"`
}

func parseApplyPatchOutput(output string) []timeline.FileChange {
	var files []applyPatchFile
	if err := json.Unmarshal([]byte(output), &files); err != nil {
		return nil
	}
	changes := make([]timeline.FileChange, len(files))
	for i, f := range files {
		changes[i] = timeline.FileChange{Path: f.Path, Diff: f.Diff, Summary: f.Summary}
	}
	return changes
}

func classifyAction(toolName string) timeline.ActionType {
	switch toolName {
	case "ReadFile":
		return timeline.ActionFileRead
	case "ApplyPatch", "EditFile", "WriteFile":
		return timeline.ActionFileEdit
	case "ExecuteCommand", "Bash":
		return timeline.ActionCommandRun
	case "SearchFiles", "Grep":
		return timeline.ActionSearch
	case "FetchUrl":
		return timeline.ActionWebFetch
	default:
		return timeline.ActionGeneric
	}
}

func mustMarshal(entry timeline.NormalizedEntry) json.RawMessage {
	data, err := json.Marshal(entry)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
