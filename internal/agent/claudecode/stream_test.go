package claudecode

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

func decodeEntry(t *testing.T, raw json.RawMessage) timeline.NormalizedEntry {
	t.Helper()
	var entry timeline.NormalizedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	return entry
}

func TestDecoder_AssistantText(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0), false)
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}`

	patches := dec.FeedLine([]byte(line))
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	if patches[0].Op != patch.OpAdd || patches[0].Index != 0 {
		t.Errorf("patch = %+v, want add at 0", patches[0])
	}
	entry := decodeEntry(t, patches[0].Entry)
	if entry.EntryType != timeline.EntryAssistantMessage || entry.Content != "hello" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestDecoder_ToolUseThenResult(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0), false)

	toolUse := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"call_1","name":"Bash","input":{"command":"ls"}}]}}`
	patches := dec.FeedLine([]byte(toolUse))
	if len(patches) != 1 || patches[0].Op != patch.OpAdd {
		t.Fatalf("expected single add patch, got %+v", patches)
	}
	entry := decodeEntry(t, patches[0].Entry)
	if entry.ToolUse == nil || entry.ToolUse.Status != timeline.ToolCreated {
		t.Fatalf("expected created tool use, got %+v", entry.ToolUse)
	}

	toolResult := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"call_1","content":"exit code: 0"}]}}`
	patches = dec.FeedLine([]byte(toolResult))
	if len(patches) != 1 || patches[0].Op != patch.OpReplace || patches[0].Index != 0 {
		t.Fatalf("expected replace at index 0, got %+v", patches)
	}
	entry = decodeEntry(t, patches[0].Entry)
	if entry.ToolUse.Status != timeline.ToolSuccess {
		t.Errorf("status = %v, want success", entry.ToolUse.Status)
	}
	if entry.ToolUse.CommandResult == nil || entry.ToolUse.CommandResult.ExitCode == nil || *entry.ToolUse.CommandResult.ExitCode != 0 {
		t.Errorf("command result = %+v", entry.ToolUse.CommandResult)
	}
}

func TestDecoder_ToolResultWithoutMatchingToolUse(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0), false)
	toolResult := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"orphan","content":"done"}]}}`
	patches := dec.FeedLine([]byte(toolResult))
	if len(patches) != 1 || patches[0].Op != patch.OpAdd {
		t.Fatalf("expected a standalone add patch, got %+v", patches)
	}
}

func TestDecoder_ResultUsageCarriesModelContextWindow(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0), false)

	init := `{"type":"system","subtype":"init","session_id":"abc123","model":"claude-sonnet-4-20250514"}`
	if patches := dec.FeedLine([]byte(init)); len(patches) != 0 {
		t.Fatalf("system/init should not emit a patch, got %+v", patches)
	}

	result := `{"type":"result","subtype":"success","result":{"usage":{"input_tokens":120,"output_tokens":30},` +
		`"modelUsage":{"claude-sonnet-4-20250514":{"context_window":200000},"claude-haiku-4":{"context_window":100000}}}}`
	patches := dec.FeedLine([]byte(result))
	if len(patches) != 1 || patches[0].Op != patch.OpAdd {
		t.Fatalf("expected a single add patch for token usage, got %+v", patches)
	}
	entry := decodeEntry(t, patches[0].Entry)
	if entry.EntryType != timeline.EntryTokenUsageInfo || entry.TokenUsage == nil {
		t.Fatalf("entry = %+v, want token usage info", entry)
	}
	if entry.TokenUsage.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", entry.TokenUsage.TotalTokens)
	}
	if entry.TokenUsage.ModelContextWindow != 200000 {
		t.Errorf("ModelContextWindow = %d, want 200000 (the init line's model)", entry.TokenUsage.ModelContextWindow)
	}
}

func TestDecoder_StreamEventDeltaAccumulates(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0), false)

	start := `{"type":"stream_event","event":{"type":"content_block_start","index":0,"message":{"id":"msg_1"},"content_block":{"type":"text"}}}`
	if patches := dec.FeedLine([]byte(start)); len(patches) != 0 {
		t.Fatalf("content_block_start should not emit a patch, got %+v", patches)
	}

	delta1 := `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"message":{"id":"msg_1"},"delta":{"text":"Hel"}}}`
	patches := dec.FeedLine([]byte(delta1))
	if len(patches) != 1 || patches[0].Op != patch.OpAdd {
		t.Fatalf("first delta should add, got %+v", patches)
	}

	delta2 := `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"message":{"id":"msg_1"},"delta":{"text":"lo"}}}`
	patches = dec.FeedLine([]byte(delta2))
	if len(patches) != 1 || patches[0].Op != patch.OpReplace || patches[0].Index != 0 {
		t.Fatalf("second delta should replace same index, got %+v", patches)
	}
	entry := decodeEntry(t, patches[0].Entry)
	if entry.Content != "Hello" {
		t.Errorf("accumulated content = %q, want %q", entry.Content, "Hello")
	}
}

func TestDecoder_AmpResumeResetsOnFirstUserMessage(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(3), true)
	dec.sawAnyEntry = true // simulate a non-empty timeline carried over from session import

	line := `{"type":"user","message":{"content":[{"type":"text","text":"continue"}]}}`
	patches := dec.FeedLine([]byte(line))

	var removes int
	for _, p := range patches {
		if p.Op == patch.OpRemove {
			removes++
		}
	}
	if removes != 3 {
		t.Errorf("expected 3 remove(0) patches to flush the imported history, got %d", removes)
	}
}

func TestExtractExitCode(t *testing.T) {
	cases := []struct {
		in   string
		want *int
	}{
		{"exit code: 0", intPtr(0)},
		{"Exit Code 2", intPtr(2)},
		{"no exit code here", nil},
	}
	for _, c := range cases {
		got := extractExitCode(c.in)
		if (got == nil) != (c.want == nil) {
			t.Errorf("extractExitCode(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		if got != nil && *got != *c.want {
			t.Errorf("extractExitCode(%q) = %d, want %d", c.in, *got, *c.want)
		}
	}
}

func intPtr(v int) *int { return &v }

func TestBlockContentToString_ArrayOfTextBlocks(t *testing.T) {
	content := []interface{}{
		map[string]interface{}{"text": "line one"},
		map[string]interface{}{"text": "line two"},
	}
	got := blockContentToString(content)
	if !strings.Contains(got, "line one") || !strings.Contains(got, "line two") {
		t.Errorf("blockContentToString = %q", got)
	}
}
