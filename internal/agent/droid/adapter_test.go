package droid

import (
	"context"
	"testing"
)

func TestAdapter_Name(t *testing.T) {
	a := New()
	if got := a.Name(); got != "droid" {
		t.Errorf("Name() = %q, want %q", got, "droid")
	}
}

func TestAdapter_DefaultMCPConfigPath(t *testing.T) {
	a := New()
	if got := a.DefaultMCPConfigPath(); got != ".droid/mcp.json" {
		t.Errorf("DefaultMCPConfigPath() = %q, want %q", got, ".droid/mcp.json")
	}
}

func TestAdapter_AvailabilityInfo_BinaryMissing(t *testing.T) {
	a := &Adapter{binPath: "agentium-droid-binary-that-does-not-exist"}
	info := a.AvailabilityInfo(context.Background())
	if info.Available {
		t.Error("expected Available = false for a nonexistent binary")
	}
}
