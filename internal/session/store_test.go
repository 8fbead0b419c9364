package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ylzuimeng/rag-chatbot/internal/agent"
)

func newTestStore(t *testing.T, window int) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sessions.db"), window)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndExists(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	ok, err := s.Exists(ctx, id)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("created session not found")
	}

	ok, err = s.Exists(ctx, "nope")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("unknown session reported as existing")
	}
}

func TestHistory_WindowAndOrder(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if err := s.AddExchange(ctx, id, q, a, nil); err != nil {
			t.Fatalf("AddExchange %d: %v", i, err)
		}
	}

	history, err := s.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// Window of 2 pairs: exchanges 2 and 3 only, oldest first
	if len(history) != 4 {
		t.Fatalf("history = %d messages, want 4", len(history))
	}
	if history[0].Content != "question 2" || history[0].Role != "user" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[3].Content != "answer 3" || history[3].Role != "assistant" {
		t.Errorf("history[3] = %+v", history[3])
	}
}

func TestHistory_EmptySession(t *testing.T) {
	s := newTestStore(t, 2)
	history, err := s.History(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %+v, want empty", history)
	}
}

func TestAddExchange_ImplicitSessionAndToolAudit(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	outcomes := []agent.ToolOutcome{
		{Round: 0, Name: "search_course_content", DurationMs: 12},
		{Round: 1, Name: "search_course_content", IsError: true, DurationMs: 3},
	}
	if err := s.AddExchange(ctx, "client-chosen-id", "q", "a", outcomes); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	ok, err := s.Exists(ctx, "client-chosen-id")
	if err != nil || !ok {
		t.Fatalf("session not auto-created: ok=%v err=%v", ok, err)
	}

	n, err := s.ToolCallCount(ctx, "client-chosen-id")
	if err != nil {
		t.Fatalf("ToolCallCount: %v", err)
	}
	if n != 2 {
		t.Errorf("tool calls = %d, want 2", n)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	id, _ := s.Create(ctx)
	if err := s.AddExchange(ctx, id, "q", "a", []agent.ToolOutcome{{Name: "t"}}); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, _ := s.Exists(ctx, id)
	if ok {
		t.Error("session survived delete")
	}
	history, _ := s.History(ctx, id)
	if len(history) != 0 {
		t.Error("messages survived delete")
	}
	n, _ := s.ToolCallCount(ctx, id)
	if n != 0 {
		t.Error("tool calls survived delete")
	}
}
