package gateway

import (
	"context"
	"testing"
)

func TestInMemoryExecutionProcessTerminalWriteOnce(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory()

	if err := g.CreateExecutionProcess(ctx, ExecutionProcess{ID: "p1", Status: StatusRunning}); err != nil {
		t.Fatalf("create: %v", err)
	}

	code := 0
	if err := g.UpdateStatus(ctx, "p1", StatusCompleted, &code); err != nil {
		t.Fatalf("first status write: %v", err)
	}

	failCode := 1
	err := g.UpdateStatus(ctx, "p1", StatusFailed, &failCode)
	if err == nil {
		t.Fatal("expected terminal write to be rejected")
	}
	if _, ok := err.(*ErrTerminal); !ok {
		t.Fatalf("expected ErrTerminal, got %T: %v", err, err)
	}

	got, err := g.GetExecutionProcess(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status overwritten despite terminal guard: %v", got.Status)
	}
}

func TestInMemoryLatestSessionPerWorkspace(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory()

	if err := g.SaveSession(ctx, Session{ID: "s1", WorkspaceID: "w1"}); err != nil {
		t.Fatalf("save s1: %v", err)
	}
	if err := g.SaveSession(ctx, Session{ID: "s2", WorkspaceID: "w2"}); err != nil {
		t.Fatalf("save s2: %v", err)
	}
	if err := g.SaveSession(ctx, Session{ID: "s3", WorkspaceID: "w1"}); err != nil {
		t.Fatalf("save s3: %v", err)
	}

	latest, err := g.LatestSession(ctx, "w1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != "s3" {
		t.Fatalf("expected s3, got %s", latest.ID)
	}
}

func TestInMemoryFollowUpQueueDrainsOnce(t *testing.T) {
	ctx := context.Background()
	g := NewInMemory()

	if err := g.EnqueueFollowUp(ctx, "s1", "keep going"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	prompt, ok, err := g.DequeueFollowUp(ctx, "s1")
	if err != nil || !ok || prompt != "keep going" {
		t.Fatalf("unexpected dequeue: %q %v %v", prompt, ok, err)
	}

	_, ok, err = g.DequeueFollowUp(ctx, "s1")
	if err != nil {
		t.Fatalf("second dequeue err: %v", err)
	}
	if ok {
		t.Fatal("expected queue to be empty after first dequeue")
	}
}
