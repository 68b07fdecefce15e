package supervisor

import (
	"encoding/json"
	"testing"

	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/patch"
	"github.com/andywolf/agentium-supervisor/internal/timeline"
)

func TestStatusForExit(t *testing.T) {
	cases := []struct {
		name       string
		code       int
		err        error
		wantStatus gateway.ProcessStatus
	}{
		{"clean exit", 0, nil, gateway.StatusCompleted},
		{"nonzero exit", 1, nil, gateway.StatusFailed},
		{"negative code with error", -1, errKill{}, gateway.StatusFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, _ := statusForExit(c.code, c.err)
			if status != c.wantStatus {
				t.Errorf("statusForExit(%d, %v) = %v, want %v", c.code, c.err, status, c.wantStatus)
			}
		})
	}
}

type errKill struct{}

func (errKill) Error() string { return "signal: killed" }

func TestShouldStartNext(t *testing.T) {
	s := &Supervisor{}

	if s.shouldStartNext(gateway.ExecutorAction{}, gateway.RunCodingAgent, gateway.StatusCompleted, false) {
		t.Error("CodingAgent run with no commit should not chain")
	}
	if !s.shouldStartNext(gateway.ExecutorAction{}, gateway.RunCodingAgent, gateway.StatusCompleted, true) {
		t.Error("CodingAgent run that committed should chain")
	}
	if !s.shouldStartNext(gateway.ExecutorAction{}, gateway.RunSetupScript, gateway.StatusCompleted, false) {
		t.Error("non-CodingAgent run should chain regardless of commit")
	}
	if s.shouldStartNext(gateway.ExecutorAction{}, gateway.RunCodingAgent, gateway.StatusFailed, true) {
		t.Error("a failed run should never chain")
	}
}

func TestShouldFinalize(t *testing.T) {
	s := &Supervisor{}

	if s.shouldFinalize(gateway.ExecutorAction{}, gateway.RunDevServer, gateway.StatusCompleted) {
		t.Error("DevServer should never finalize")
	}
	if !s.shouldFinalize(gateway.ExecutorAction{}, gateway.RunCodingAgent, gateway.StatusFailed) {
		t.Error("a failed run must finalize even with a pending next action")
	}
	next := &gateway.ExecutorAction{}
	if s.shouldFinalize(gateway.ExecutorAction{Next: next}, gateway.RunSetupScript, gateway.StatusCompleted) {
		t.Error("a SetupScript with a queued next action should not finalize yet")
	}
	if s.shouldFinalize(gateway.ExecutorAction{}, gateway.RunSetupScript, gateway.StatusCompleted) {
		t.Error("a SetupScript with no next action (parallel setup) should not finalize")
	}
	if !s.shouldFinalize(gateway.ExecutorAction{}, gateway.RunCodingAgent, gateway.StatusCompleted) {
		t.Error("an exhausted CodingAgent chain should finalize")
	}
}

func TestLastAssistantMessage(t *testing.T) {
	store := timeline.NewMsgStore()
	idx := patch.NewIndexProvider(0)

	push := func(entry timeline.NormalizedEntry) int {
		i := idx.Next()
		data, err := json.Marshal(entry)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		store.PushPatch(patch.Add(i, data))
		return i
	}

	push(timeline.NormalizedEntry{EntryType: timeline.EntryUserMessage, Content: "hi"})
	firstIdx := push(timeline.NormalizedEntry{EntryType: timeline.EntryAssistantMessage, Content: "hello"})
	push(timeline.NormalizedEntry{EntryType: timeline.EntryToolUse, Content: "ls"})

	if got := lastAssistantMessage(store); got != "hello" {
		t.Fatalf("lastAssistantMessage = %q, want %q", got, "hello")
	}

	data, err := json.Marshal(timeline.NormalizedEntry{EntryType: timeline.EntryAssistantMessage, Content: "hello world"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store.PushPatch(patch.Replace(firstIdx, data))

	if got := lastAssistantMessage(store); got != "hello world" {
		t.Fatalf("lastAssistantMessage after replace = %q, want %q", got, "hello world")
	}

	store.PushPatch(patch.Remove(firstIdx))
	if got := lastAssistantMessage(store); got != "" {
		t.Fatalf("lastAssistantMessage after remove = %q, want empty", got)
	}
}
