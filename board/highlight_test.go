package board

import (
	"testing"
	"time"

	"board-api/domain"
)

func highlightFixture() []domain.Task {
	return []domain.Task{
		{ID: "a", Status: domain.StatusTodo, Priority: domain.PriorityUrgent},
		{ID: "b", Status: domain.StatusTodo, Priority: domain.PriorityLow},
		{ID: "c", Status: domain.StatusDone, Priority: domain.PriorityUrgent},
	}
}

func TestHighlightByStatus(t *testing.T) {
	h := NewHighlighter(time.Minute)
	h.ByStatus(domain.StatusTodo, highlightFixture())

	snap := h.Snapshot()
	if snap.Status != domain.StatusTodo {
		t.Fatalf("expected status todo, got %q", snap.Status)
	}
	if !sameIDs(snap.TaskIDs, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %v", snap.TaskIDs)
	}
	if h.Active("c") {
		t.Fatal("c is not in the flashed column")
	}
}

func TestHighlightUrgent(t *testing.T) {
	h := NewHighlighter(time.Minute)
	h.Urgent(highlightFixture())

	snap := h.Snapshot()
	if snap.Status != "" {
		t.Fatalf("urgent flash carries no column status, got %q", snap.Status)
	}
	if !sameIDs(snap.TaskIDs, []string{"a", "c"}) {
		t.Fatalf("expected [a c], got %v", snap.TaskIDs)
	}
}

func TestHighlightReplacesNotAccumulates(t *testing.T) {
	h := NewHighlighter(time.Minute)
	h.ByStatus(domain.StatusTodo, highlightFixture())
	h.Task("c")

	snap := h.Snapshot()
	if snap.Status != "" {
		t.Fatalf("replacement must drop the previous column, got %q", snap.Status)
	}
	if !sameIDs(snap.TaskIDs, []string{"c"}) {
		t.Fatalf("expected only [c], got %v", snap.TaskIDs)
	}
	if h.Active("a") {
		t.Fatal("replaced highlight must not linger")
	}
}

func TestHighlightExpires(t *testing.T) {
	h := NewHighlighter(20 * time.Millisecond)
	h.Task("a")
	if !h.Active("a") {
		t.Fatal("highlight should be active immediately")
	}

	deadline := time.Now().Add(time.Second)
	for h.Active("a") {
		if time.Now().After(deadline) {
			t.Fatal("highlight never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap := h.Snapshot(); snap.Status != "" || len(snap.TaskIDs) != 0 {
		t.Fatalf("expired highlight left residue: %+v", snap)
	}
}

func TestHighlightStaleTimerIsNoOp(t *testing.T) {
	h := NewHighlighter(20 * time.Millisecond)
	h.Task("a")
	// Re-arm before the first timer fires; the first expiry must not clear
	// the replacement.
	time.Sleep(10 * time.Millisecond)
	h.Task("b")
	time.Sleep(15 * time.Millisecond)

	if !h.Active("b") {
		t.Fatal("stale timer cleared the active highlight")
	}
}

func TestEngineHighlightStatus(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot(highlightFixture())

	e.HighlightStatus(domain.StatusDone)
	view := e.View()
	if view.Highlight.Status != domain.StatusDone {
		t.Fatalf("expected done flash, got %q", view.Highlight.Status)
	}
	if !sameIDs(view.Highlight.TaskIDs, []string{"c"}) {
		t.Fatalf("expected [c], got %v", view.Highlight.TaskIDs)
	}

	e.HighlightUrgent()
	view = e.View()
	if !sameIDs(view.Highlight.TaskIDs, []string{"a", "c"}) {
		t.Fatalf("expected urgent set [a c], got %v", view.Highlight.TaskIDs)
	}
}
