package board

import (
	"errors"
	"testing"

	"board-api/domain"
)

func seedTwoColumns(e *Engine) {
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "Alpha", Order: intp(0)},
		{ID: "b", Status: domain.StatusTodo, Title: "Beta", Order: intp(1)},
		{ID: "x", Status: domain.StatusInProgress, Title: "Xi", Order: intp(0)},
		{ID: "y", Status: domain.StatusInProgress, Title: "Yankee", Order: intp(1)},
	})
}

func columnIDs(col domain.Column) []string {
	ids := make([]string, len(col.Tasks))
	for i, t := range col.Tasks {
		ids[i] = t.ID
	}
	return ids
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDropReorderWithinColumn(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	seedTwoColumns(e)

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnTodo,
		FromIndex: 0, ToIndex: 1, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	e.Quiesce()

	todo := e.Columns()[0]
	if got := columnIDs(todo); !sameIDs(got, []string{"b", "a"}) {
		t.Fatalf("expected order [b a], got %v", got)
	}
	// Both orders changed, so both tasks get an update.
	updates := store.Updates()
	if len(updates) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(updates))
	}
	want := map[string]int{"b": 0, "a": 1}
	for _, u := range updates {
		if u.patch.Order == nil {
			t.Fatalf("write for %s missing order", u.taskID)
		}
		if *u.patch.Order != want[u.taskID] {
			t.Fatalf("write for %s: order %d, want %d", u.taskID, *u.patch.Order, want[u.taskID])
		}
	}
}

func TestDropTransferAcrossColumns(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	seedTwoColumns(e)

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnProgress,
		FromIndex: 0, ToIndex: 1, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	e.Quiesce()

	cols := e.Columns()
	if got := columnIDs(cols[0]); !sameIDs(got, []string{"b"}) {
		t.Fatalf("source column: got %v", got)
	}
	if got := columnIDs(cols[1]); !sameIDs(got, []string{"x", "a", "y"}) {
		t.Fatalf("target column: got %v", got)
	}
	for i, task := range cols[1].Tasks {
		if !task.Sequenced() || *task.Order != i {
			t.Fatalf("target reindex: %s has order %v at position %d", task.ID, task.Order, i)
		}
	}

	// b shifts to 0, a moves to 1 with the new status, y shifts to 2.
	updates := store.Updates()
	if len(updates) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(updates))
	}
	for _, u := range updates {
		if u.taskID == "a" {
			if u.patch.Status == nil || *u.patch.Status != domain.StatusInProgress {
				t.Fatalf("moved task write missing status change: %+v", u.patch)
			}
			if u.patch.Order == nil || *u.patch.Order != 1 {
				t.Fatalf("moved task write missing order: %+v", u.patch)
			}
		}
	}
}

func TestDropTransferStatusPersistsWhenOrderUnchanged(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "Alpha", Order: intp(0)},
	})

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnDone,
		FromIndex: 0, ToIndex: 0, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	e.Quiesce()

	updates := store.Updates()
	if len(updates) != 1 {
		t.Fatalf("expected 1 write, got %d", len(updates))
	}
	if updates[0].patch.Status == nil || *updates[0].patch.Status != domain.StatusDone {
		t.Fatalf("status change not persisted: %+v", updates[0].patch)
	}
}

func TestDropDeniedForGuest(t *testing.T) {
	store := &mockStore{}
	rec := &noticeRecorder{}
	e := newTestEngine(t, store, rec.sink)
	seedTwoColumns(e)

	err := e.Drop(guest, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnProgress,
		FromIndex: 0, ToIndex: 0, TaskID: "a",
	})
	if err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	e.Quiesce()

	if len(store.Updates()) != 0 {
		t.Fatal("denied drop must issue zero store calls")
	}
	cols := e.Columns()
	if got := columnIDs(cols[0]); !sameIDs(got, []string{"a", "b"}) {
		t.Fatalf("denied drop must not mutate state, got %v", got)
	}
	notices := rec.all()
	if len(notices) != 1 || !notices[0].Denial {
		t.Fatalf("expected one denial notice, got %+v", notices)
	}
}

func TestDropRejectsUnknownColumn(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	seedTwoColumns(e)

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnID("backlog"),
		FromIndex: 0, ToIndex: 0, TaskID: "a",
	})
	if err != ErrUnknownColumn {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
	e.Quiesce()
	if len(store.Updates()) != 0 {
		t.Fatal("rejected drop must issue zero store calls")
	}
}

func TestDropDragUnknownTask(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	seedTwoColumns(e)

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnTodo,
		FromIndex: 5, ToIndex: 0, TaskID: "ghost",
	})
	if err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDropStaleIndexFallsBackToScan(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	seedTwoColumns(e)

	// The index points at b but the gesture names a; the scan wins.
	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnTodo,
		FromIndex: 1, ToIndex: 1, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got := columnIDs(e.Columns()[0]); !sameIDs(got, []string{"b", "a"}) {
		t.Fatalf("expected order [b a], got %v", got)
	}
}

func TestDropFilteredReorderSkipsPersistence(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "alpha report", Order: intp(0)},
		{ID: "b", Status: domain.StatusTodo, Title: "hidden", Order: intp(1)},
		{ID: "c", Status: domain.StatusTodo, Title: "alpha followup", Order: intp(2)},
	})
	e.Search("alpha")

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnTodo,
		FromIndex: 0, ToIndex: 1, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	e.Quiesce()

	if len(store.Updates()) != 0 {
		t.Fatal("filtered reorder must not persist order values")
	}
	if got := columnIDs(e.View().Columns[0]); !sameIDs(got, []string{"c", "a"}) {
		t.Fatalf("filtered view: got %v", got)
	}
	// Canonical orders are untouched.
	for _, task := range e.Tasks() {
		want := map[string]int{"a": 0, "b": 1, "c": 2}[task.ID]
		if *task.Order != want {
			t.Fatalf("canonical order for %s changed to %d", task.ID, *task.Order)
		}
	}
}

func TestDropFilteredTransferWritesStatusOnly(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "alpha report", Order: intp(0)},
		{ID: "b", Status: domain.StatusTodo, Title: "hidden", Order: intp(1)},
	})
	e.Search("alpha")

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnDone,
		FromIndex: 0, ToIndex: 0, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	e.Quiesce()

	updates := store.Updates()
	if len(updates) != 1 {
		t.Fatalf("expected exactly 1 write, got %d", len(updates))
	}
	u := updates[0]
	if u.taskID != "a" || u.patch.Status == nil || *u.patch.Status != domain.StatusDone {
		t.Fatalf("expected status write for a, got %+v", u)
	}
	if u.patch.Order != nil {
		t.Fatal("filtered transfer must not write order")
	}
}

func TestDropPersistenceFailureKeepsLocalState(t *testing.T) {
	store := &mockStore{updateErr: errors.New("table unavailable")}
	rec := &noticeRecorder{}
	e := newTestEngine(t, store, rec.sink)
	seedTwoColumns(e)

	err := e.Drop(member, Gesture{
		From: domain.ColumnTodo, To: domain.ColumnTodo,
		FromIndex: 0, ToIndex: 1, TaskID: "a",
	})
	if err != nil {
		t.Fatalf("drop itself must not fail on async persistence: %v", err)
	}
	e.Quiesce()

	// No rollback: the optimistic order stands until the next snapshot.
	if got := columnIDs(e.Columns()[0]); !sameIDs(got, []string{"b", "a"}) {
		t.Fatalf("expected optimistic order [b a], got %v", got)
	}
	notices := rec.all()
	if len(notices) == 0 {
		t.Fatal("expected a transient notice on persistence failure")
	}
	for _, n := range notices {
		if n.Denial {
			t.Fatalf("store failure must not look like a denial: %+v", n)
		}
	}
}
