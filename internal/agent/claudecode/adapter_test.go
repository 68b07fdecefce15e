package claudecode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/patch"
)

func TestAdapter_Name(t *testing.T) {
	a := New()
	if got := a.Name(); got != "claude-code" {
		t.Errorf("Name() = %q, want %q", got, "claude-code")
	}
}

func TestAdapter_DefaultMCPConfigPath(t *testing.T) {
	a := New()
	if got := a.DefaultMCPConfigPath(); got != ".mcp.json" {
		t.Errorf("DefaultMCPConfigPath() = %q, want %q", got, ".mcp.json")
	}
}

func TestAdapter_AvailabilityInfo_BinaryMissing(t *testing.T) {
	a := &Adapter{binPath: "agentium-claude-binary-that-does-not-exist"}
	info := a.AvailabilityInfo(context.Background())
	if info.Available {
		t.Error("expected Available = false for a nonexistent binary")
	}
	if info.Reason == "" {
		t.Error("expected a Reason when unavailable")
	}
}

func TestAdapter_AvailableSlashCommands_DefaultsThenDiscovered(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	if err := os.MkdirAll(cmdDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cmdDir, "deploy.md"), []byte("# deploy"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	a := New()
	ch := a.AvailableSlashCommands(context.Background(), dir)

	var patches []patch.Patch
	for p := range ch {
		patches = append(patches, p)
	}

	if len(patches) != 2 {
		t.Fatalf("expected 2 patches (default then merged), got %d", len(patches))
	}
	if patches[0].Op != patch.OpAdd {
		t.Errorf("first patch should be an add, got %v", patches[0].Op)
	}
	if patches[1].Op != patch.OpReplace {
		t.Errorf("second patch should replace the default list, got %v", patches[1].Op)
	}

	entry := decodeEntry(t, patches[1].Entry)
	if !strings.Contains(entry.Content, "/deploy") {
		t.Errorf("merged slash commands %q missing discovered /deploy", entry.Content)
	}
}
