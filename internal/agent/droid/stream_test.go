package droid

import (
	"encoding/json"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

func decodeDroidEntry(t *testing.T, raw json.RawMessage) timeline.NormalizedEntry {
	t.Helper()
	var entry timeline.NormalizedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	return entry
}

func TestDecoder_ToolCallFIFOPairing(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0))

	dec.FeedLine([]byte(`{"type":"tool_call","name":"ReadFile","input":{"path":"a.go"}}`))
	dec.FeedLine([]byte(`{"type":"tool_call","name":"ReadFile","input":{"path":"b.go"}}`))

	// Results arrive in the same order the calls were queued, with no id
	// to disambiguate them.
	p1 := dec.FeedLine([]byte(`{"type":"tool_result","output":"contents of a.go"}`))
	if len(p1) != 1 || p1[0].Index != 0 {
		t.Fatalf("first result should resolve the first call (index 0), got %+v", p1)
	}
	p2 := dec.FeedLine([]byte(`{"type":"tool_result","output":"contents of b.go"}`))
	if len(p2) != 1 || p2[0].Index != 1 {
		t.Fatalf("second result should resolve the second call (index 1), got %+v", p2)
	}
}

func TestDecoder_ExitCodeFooterExtraction(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0))
	dec.FeedLine([]byte(`{"type":"tool_call","name":"ExecuteCommand","input":{"command":"false"}}`))

	raw, _ := json.Marshal("exit 1\n[Process exited with code 1]")
	line := []byte(`{"type":"tool_result","output":` + string(raw) + `}`)
	patches := dec.FeedLine(line)
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	entry := decodeDroidEntry(t, patches[0].Entry)
	if entry.ToolUse.Status != timeline.ToolFailed {
		t.Errorf("status = %v, want failed", entry.ToolUse.Status)
	}
	if entry.ToolUse.CommandResult == nil || entry.ToolUse.CommandResult.ExitCode == nil || *entry.ToolUse.CommandResult.ExitCode != 1 {
		t.Errorf("command result = %+v", entry.ToolUse.CommandResult)
	}
}

func TestDecoder_ApplyPatchSecondPassJSON(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0))
	dec.FeedLine([]byte(`{"type":"tool_call","name":"ApplyPatch","input":{}}`))

	inner := `[{"path":"a.go","summary":"added func"}]`
	innerJSON, _ := json.Marshal(inner)
	line := []byte(`{"type":"tool_result","output":` + string(innerJSON) + `}`)

	patches := dec.FeedLine(line)
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	entry := decodeDroidEntry(t, patches[0].Entry)
	if len(entry.ToolUse.FileChanges) != 1 || entry.ToolUse.FileChanges[0].Path != "a.go" {
		t.Errorf("file changes = %+v", entry.ToolUse.FileChanges)
	}
}

func TestDecoder_ToolResultWithNoQueuedCall(t *testing.T) {
	dec := NewDecoder(patch.NewIndexProvider(0))
	patches := dec.FeedLine([]byte(`{"type":"tool_result","output":"orphaned"}`))
	if patches != nil {
		t.Errorf("expected no patch for an unmatched result, got %+v", patches)
	}
}
