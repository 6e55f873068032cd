package board

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Store is the narrow task-store contract the engine reads and persists
// through.
type Store interface {
	FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error)
	UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, boardID, taskID string) error
}

// Notice is a transient user-visible message produced by the engine.
type Notice struct {
	Message string `json:"message"`
	// Denial marks a permission refusal as opposed to a store failure.
	Denial bool `json:"denial,omitempty"`
}

// NoticeSink receives transient notices. It is injected at construction so
// the engine has no ambient signaling channel.
type NoticeSink func(Notice)

// View is the displayed board state handed to the presentation layer.
type View struct {
	Columns      []domain.Column `json:"columns"`
	NoTasksFound bool            `json:"noTasksFound"`
	Highlight    Highlight       `json:"highlight"`
}

// Config carries the engine dependencies and tunables.
type Config struct {
	BoardID string
	Store   Store
	Logger  *log.Logger
	Notify  NoticeSink
	// FlashTTL bounds how long a highlight stays active. Zero picks the
	// default flash duration.
	FlashTTL time.Duration
	// WriteWorkers sizes the asynchronous persistence pool. Zero reads
	// BOARD_WRITE_WORKERS or falls back to the default.
	WriteWorkers int
}

// Engine owns the authoritative local copy of the task collection and
// reconciles store push snapshots with locally-initiated optimistic
// mutations. Every state transition runs under one mutex; that is the Go
// shape of the single-threaded event loop the board model assumes. Local
// mutation always completes before any persistence call is issued, and
// persistence runs fire-and-forget through the writer pool.
type Engine struct {
	boardID string
	store   Store
	logger  *log.Logger
	notify  NoticeSink
	writer  *writer

	highlighter *Highlighter

	mu       sync.Mutex
	tasks    []domain.Task
	columns  []domain.Column
	query    string
	filtered []domain.Column
	noTasks  bool
	onChange func()
}

// New constructs an engine with empty columns. Call ApplySnapshot with the
// first store emission to populate it.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		panic("board.New: store is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(Notice) {}
	}
	e := &Engine{
		boardID:     cfg.BoardID,
		store:       cfg.Store,
		logger:      logger,
		notify:      notify,
		highlighter: NewHighlighter(cfg.FlashTTL),
	}
	e.columns = domain.NewColumns()
	e.filtered = domain.NewColumns()
	e.writer = newWriter(cfg.BoardID, cfg.Store, logger, notify, cfg.WriteWorkers)
	return e
}

// BoardID returns the board this engine reconciles.
func (e *Engine) BoardID() string { return e.boardID }

// SetChangeListener registers a callback invoked after every visible state
// change (snapshot applied, gesture processed). Used to fan out live
// updates to stream subscribers.
func (e *Engine) SetChangeListener(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// ApplySnapshot replaces the authoritative task collection with a fresh
// store emission. The snapshot fully overwrites any optimistic local state;
// the store is the eventual source of truth.
func (e *Engine) ApplySnapshot(tasks []domain.Task) {
	e.mu.Lock()
	e.tasks = append([]domain.Task(nil), tasks...)
	domain.Partition(e.columns, e.tasks)
	e.refreshViewLocked()
	e.mu.Unlock()
	e.changed()
}

// Search sets the active free-text filter and recomputes the displayed
// view. A blank query clears the filter.
func (e *Engine) Search(query string) {
	e.mu.Lock()
	e.query = query
	e.refreshViewLocked()
	e.mu.Unlock()
	e.changed()
}

// Query returns the active filter text.
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// View returns the current displayed board state: the filtered columns
// when a query is active, the canonical columns otherwise.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		Columns:      cloneColumns(e.filtered),
		NoTasksFound: e.noTasks,
		Highlight:    e.highlighter.Snapshot(),
	}
}

// Columns returns a copy of the canonical, unfiltered column set.
func (e *Engine) Columns() []domain.Column {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneColumns(e.columns)
}

// Tasks returns a copy of the authoritative task collection.
func (e *Engine) Tasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Task(nil), e.tasks...)
}

// Create persists a new task and highlights it once the store assigns an
// id. Unlike drag writes this is synchronous: the caller needs the id.
func (e *Engine) Create(ctx context.Context, actor Actor, t domain.Task) (string, error) {
	if !actor.CanCreate() {
		e.notify(Notice{Message: "Guests cannot create tasks.", Denial: true})
		return "", ErrPermissionDenied
	}
	t.ID = ""
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	id, err := e.store.CreateTask(ctx, e.boardID, t)
	if err != nil {
		e.notify(Notice{Message: "Failed to create task. Please try again."})
		return "", err
	}
	e.highlighter.Task(id)
	e.changed()
	return id, nil
}

// UpdateFields applies an edit-form patch to a task: optimistically to the
// local collection, then synchronously to the store.
func (e *Engine) UpdateFields(ctx context.Context, actor Actor, taskID string, patch domain.TaskPatch) error {
	if !actor.CanEdit() {
		e.notify(Notice{Message: "Guests cannot edit tasks.", Denial: true})
		return ErrPermissionDenied
	}
	if patch.Empty() {
		return nil
	}

	e.mu.Lock()
	if !e.applyPatchLocked(taskID, patch) {
		e.mu.Unlock()
		return ErrTaskNotFound
	}
	domain.Partition(e.columns, e.tasks)
	e.refreshViewLocked()
	e.mu.Unlock()
	e.changed()

	if err := e.store.UpdateTaskFields(ctx, e.boardID, taskID, patch); err != nil {
		// The optimistic state stands; the next snapshot corrects it.
		e.notify(Notice{Message: "Failed to save task. Please try again."})
		return err
	}
	return nil
}

// ToggleSubtask flips one checklist entry and persists the full subtask
// list, the write shape the store adapter expects for checklist changes.
func (e *Engine) ToggleSubtask(ctx context.Context, actor Actor, taskID string, index int) error {
	if !actor.CanEdit() {
		e.notify(Notice{Message: "Guests cannot edit tasks.", Denial: true})
		return ErrPermissionDenied
	}

	e.mu.Lock()
	t := e.taskLocked(taskID)
	if t == nil {
		e.mu.Unlock()
		return ErrTaskNotFound
	}
	if index < 0 || index >= len(t.Subtasks) {
		e.mu.Unlock()
		return ErrSubtaskIndex
	}
	t.Subtasks[index].Done = !t.Subtasks[index].Done
	subtasks := append([]domain.Subtask(nil), t.Subtasks...)
	domain.Partition(e.columns, e.tasks)
	e.refreshViewLocked()
	e.mu.Unlock()
	e.changed()

	e.writer.enqueue(writeJob{patches: []patchWrite{{
		taskID: taskID,
		patch:  domain.TaskPatch{Subtasks: &subtasks},
	}}})
	return nil
}

// Delete removes a task. The local copy drops it immediately; the store
// delete runs through the writer pool. The task's final disappearance is
// observed as its absence from the next snapshot.
func (e *Engine) Delete(ctx context.Context, actor Actor, taskID string) error {
	if !actor.CanDelete() {
		e.notify(Notice{Message: "Guests cannot delete tasks.", Denial: true})
		return ErrPermissionDenied
	}

	e.mu.Lock()
	found := false
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if t.ID == taskID {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	e.tasks = kept
	if found {
		domain.Partition(e.columns, e.tasks)
		e.refreshViewLocked()
	}
	e.mu.Unlock()
	if !found {
		return ErrTaskNotFound
	}
	e.changed()

	e.writer.enqueue(writeJob{deletes: []string{taskID}})
	return nil
}

// HighlightStatus flashes the column for the given status and every task
// currently in it.
func (e *Engine) HighlightStatus(status domain.Status) {
	e.highlighter.ByStatus(status, e.Tasks())
	e.changed()
}

// HighlightUrgent flashes every urgent-priority task.
func (e *Engine) HighlightUrgent() {
	e.highlighter.Urgent(e.Tasks())
	e.changed()
}

// Highlighter exposes the highlight state, mainly for tests.
func (e *Engine) Highlighter() *Highlighter { return e.highlighter }

// Quiesce blocks until all in-flight persistence writes have completed.
func (e *Engine) Quiesce() { e.writer.quiesce() }

// Shutdown stops the writer pool after draining pending writes.
func (e *Engine) Shutdown() { e.writer.shutdown() }

func (e *Engine) refreshViewLocked() {
	e.filtered, e.noTasks = FilterColumns(e.columns, e.query)
}

func (e *Engine) filterActiveLocked() bool {
	return strings.TrimSpace(e.query) != ""
}

func (e *Engine) taskLocked(taskID string) *domain.Task {
	for i := range e.tasks {
		if e.tasks[i].ID == taskID {
			return &e.tasks[i]
		}
	}
	return nil
}

func (e *Engine) applyPatchLocked(taskID string, patch domain.TaskPatch) bool {
	t := e.taskLocked(taskID)
	if t == nil {
		return false
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = *patch.AssignedTo
	}
	if patch.Subtasks != nil {
		t.Subtasks = *patch.Subtasks
	}
	if patch.Order != nil {
		order := *patch.Order
		t.Order = &order
	}
	return true
}

func (e *Engine) changed() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func cloneColumns(columns []domain.Column) []domain.Column {
	out := make([]domain.Column, len(columns))
	for i, col := range columns {
		col.Tasks = append([]domain.Task(nil), col.Tasks...)
		out[i] = col
	}
	return out
}
