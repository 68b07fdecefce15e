package agent

import (
	"context"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

// mockAdapter implements Adapter for testing.
type mockAdapter struct {
	name string
}

func (m *mockAdapter) Name() string { return m.name }
func (m *mockAdapter) Spawn(ctx context.Context, dir, prompt string, env map[string]string) (*SpawnedChild, error) {
	return nil, nil
}
func (m *mockAdapter) SpawnFollowUp(ctx context.Context, dir, prompt, agentSessionID string, env map[string]string) (*SpawnedChild, error) {
	return nil, nil
}
func (m *mockAdapter) NormalizeLogs(ctx context.Context, store *timeline.MsgStore, idx *patch.IndexProvider) {
}
func (m *mockAdapter) AvailableSlashCommands(ctx context.Context, currentDir string) <-chan patch.Patch {
	ch := make(chan patch.Patch)
	close(ch)
	return ch
}
func (m *mockAdapter) DefaultMCPConfigPath() string { return "" }
func (m *mockAdapter) AvailabilityInfo(ctx context.Context) AvailabilityInfo {
	return AvailabilityInfo{Available: true}
}

func withCleanRegistry(t *testing.T) {
	t.Helper()
	original := make(map[string]func() Adapter)
	for k, v := range registry {
		original[k] = v
	}
	t.Cleanup(func() { registry = original })
	registry = make(map[string]func() Adapter)
}

func TestRegister(t *testing.T) {
	withCleanRegistry(t)

	Register("test-agent", func() Adapter {
		return &mockAdapter{name: "test-agent"}
	})

	if !Exists("test-agent") {
		t.Error("Register() failed to register adapter")
	}

	a, err := Get("test-agent")
	if err != nil {
		t.Errorf("Get() returned error: %v", err)
	}
	if a.Name() != "test-agent" {
		t.Errorf("Get() returned adapter with name %q, want %q", a.Name(), "test-agent")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := Get("nonexistent-agent")
	if err == nil {
		t.Error("Get() expected error for nonexistent agent, got nil")
	}
}

func TestExists(t *testing.T) {
	withCleanRegistry(t)

	if Exists("not-registered") {
		t.Error("Exists() returned true for unregistered adapter")
	}

	Register("registered-agent", func() Adapter {
		return &mockAdapter{name: "registered-agent"}
	})

	if !Exists("registered-agent") {
		t.Error("Exists() returned false for registered adapter")
	}
}

func TestList(t *testing.T) {
	withCleanRegistry(t)

	agents := List()
	if len(agents) != 0 {
		t.Errorf("List() returned %d agents, want 0", len(agents))
	}

	Register("agent1", func() Adapter { return &mockAdapter{name: "agent1"} })
	Register("agent2", func() Adapter { return &mockAdapter{name: "agent2"} })

	agents = List()
	if len(agents) != 2 {
		t.Errorf("List() returned %d agents, want 2", len(agents))
	}

	found := make(map[string]bool)
	for _, name := range agents {
		found[name] = true
	}
	if !found["agent1"] || !found["agent2"] {
		t.Errorf("List() = %v, want [agent1, agent2]", agents)
	}
}

func TestRegister_Overwrite(t *testing.T) {
	withCleanRegistry(t)

	Register("overwrite-test", func() Adapter {
		return &mockAdapter{name: "original"}
	})

	a1, _ := Get("overwrite-test")
	if a1.Name() != "original" {
		t.Errorf("First registration returned %q, want %q", a1.Name(), "original")
	}

	Register("overwrite-test", func() Adapter {
		return &mockAdapter{name: "overwritten"}
	})

	a2, _ := Get("overwrite-test")
	if a2.Name() != "overwritten" {
		t.Errorf("After overwrite, got %q, want %q", a2.Name(), "overwritten")
	}
}
