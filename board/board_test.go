package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"board-api/domain"
)

func intp(v int) *int { return &v }

// mockStore records every persistence call for assertions.
type mockStore struct {
	mu      sync.Mutex
	updates []recordedUpdate
	deletes []string
	created []domain.Task

	createID  string
	updateErr error
	deleteErr error
	createErr error
}

type recordedUpdate struct {
	taskID string
	patch  domain.TaskPatch
}

func (m *mockStore) FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	return nil, nil
}

func (m *mockStore) CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, t)
	if m.createID != "" {
		return m.createID, nil
	}
	return "generated-id", nil
}

func (m *mockStore) UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, recordedUpdate{taskID: taskID, patch: patch})
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, boardID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, taskID)
	return nil
}

func (m *mockStore) Updates() []recordedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedUpdate(nil), m.updates...)
}

func (m *mockStore) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) sink(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func newTestEngine(t *testing.T, store Store, notify NoticeSink) *Engine {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := New(Config{
		BoardID:      "main",
		Store:        store,
		Logger:       logger,
		Notify:       notify,
		FlashTTL:     50 * time.Millisecond,
		WriteWorkers: 2,
	})
	t.Cleanup(e.Shutdown)
	return e
}

var member = Actor{UserID: "user-1"}
var guest = Actor{UserID: "guest-1", Guest: true}

func TestApplySnapshotOverwritesOptimisticState(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "A", Order: intp(0)},
		{ID: "b", Status: domain.StatusTodo, Title: "B", Order: intp(1)},
	})

	if err := e.Drop(member, Gesture{From: domain.ColumnTodo, To: domain.ColumnDone, FromIndex: 0, ToIndex: 0, TaskID: "a"}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	// The next push reasserts the store's view wholesale.
	e.ApplySnapshot([]domain.Task{
		{ID: "a", Status: domain.StatusTodo, Title: "A", Order: intp(0)},
		{ID: "b", Status: domain.StatusTodo, Title: "B", Order: intp(1)},
	})
	cols := e.Columns()
	if len(cols[0].Tasks) != 2 {
		t.Fatalf("snapshot should restore both tasks to todo, got %d", len(cols[0].Tasks))
	}
	if len(cols[3].Tasks) != 0 {
		t.Fatalf("done column should be empty after snapshot, got %d", len(cols[3].Tasks))
	}
}

func TestToggleSubtaskPersistsFullList(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{{
		ID: "a", Status: domain.StatusTodo, Title: "A",
		Subtasks: []domain.Subtask{{Title: "one"}, {Title: "two", Done: true}},
	}})

	if err := e.ToggleSubtask(context.Background(), member, "a", 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	e.Quiesce()

	updates := store.Updates()
	if len(updates) != 1 {
		t.Fatalf("expected 1 write, got %d", len(updates))
	}
	got := updates[0]
	if got.taskID != "a" || got.patch.Subtasks == nil {
		t.Fatalf("unexpected write: %+v", got)
	}
	subtasks := *got.patch.Subtasks
	if len(subtasks) != 2 || !subtasks[0].Done || !subtasks[1].Done {
		t.Fatalf("expected full toggled list, got %+v", subtasks)
	}
}

func TestToggleSubtaskIndexOutOfRange(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{{ID: "a", Status: domain.StatusTodo, Title: "A"}})

	if err := e.ToggleSubtask(context.Background(), member, "a", 3); err != ErrSubtaskIndex {
		t.Fatalf("expected ErrSubtaskIndex, got %v", err)
	}
	e.Quiesce()
	if len(store.Updates()) != 0 {
		t.Fatal("out-of-range toggle must not write")
	}
}

func TestDeleteRemovesLocallyAndPersists(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	e.ApplySnapshot([]domain.Task{{ID: "a", Status: domain.StatusTodo, Title: "A"}})

	if err := e.Delete(context.Background(), member, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	e.Quiesce()

	if len(e.Columns()[0].Tasks) != 0 {
		t.Fatal("task should disappear from the local view immediately")
	}
	if got := store.Deletes(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected one delete for a, got %v", got)
	}
}

func TestDeleteDeniedForGuest(t *testing.T) {
	store := &mockStore{}
	rec := &noticeRecorder{}
	e := newTestEngine(t, store, rec.sink)
	e.ApplySnapshot([]domain.Task{{ID: "a", Status: domain.StatusTodo, Title: "A"}})

	if err := e.Delete(context.Background(), guest, "a"); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	e.Quiesce()

	if len(store.Deletes()) != 0 {
		t.Fatal("denied delete must issue zero store calls")
	}
	if len(e.Columns()[0].Tasks) != 1 {
		t.Fatal("denied delete must not mutate local state")
	}
	notices := rec.all()
	if len(notices) != 1 || !notices[0].Denial {
		t.Fatalf("expected one denial notice, got %+v", notices)
	}
}

func TestCreateHighlightsNewTask(t *testing.T) {
	store := &mockStore{createID: "fresh"}
	e := newTestEngine(t, store, nil)

	id, err := e.Create(context.Background(), member, domain.Task{Title: "New"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "fresh" {
		t.Fatalf("expected store-assigned id, got %s", id)
	}
	if !e.Highlighter().Active("fresh") {
		t.Fatal("newly created task should be highlighted")
	}
}

func TestCreateDeniedForGuest(t *testing.T) {
	store := &mockStore{}
	e := newTestEngine(t, store, nil)
	if _, err := e.Create(context.Background(), guest, domain.Task{Title: "New"}); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("denied create must issue zero store calls")
	}
}

func TestUpdateFieldsOptimisticWithoutRollback(t *testing.T) {
	store := &mockStore{updateErr: context.DeadlineExceeded}
	rec := &noticeRecorder{}
	e := newTestEngine(t, store, rec.sink)
	e.ApplySnapshot([]domain.Task{{ID: "a", Status: domain.StatusTodo, Title: "A"}})

	title := "Renamed"
	err := e.UpdateFields(context.Background(), member, "a", domain.TaskPatch{Title: &title})
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	// The optimistic change stands until the next snapshot corrects it.
	if got := e.Tasks()[0].Title; got != "Renamed" {
		t.Fatalf("expected optimistic title, got %s", got)
	}
	if len(rec.all()) == 0 {
		t.Fatal("expected a transient notice on store failure")
	}
}
