package board

import (
	"sync"
	"time"

	"board-api/domain"
)

const defaultFlashTTL = 2 * time.Second

// Highlight is the active transient emphasis set: at most one column and
// the ids of the flashed tasks.
type Highlight struct {
	Status  domain.Status `json:"status,omitempty"`
	TaskIDs []string      `json:"taskIds,omitempty"`
}

// Highlighter marks tasks and columns for a transient flash effect. A new
// request replaces any active one rather than accumulating; expiry timers
// carry the generation they were armed for, so a stale timer firing after
// a replacement is a no-op.
type Highlighter struct {
	ttl time.Duration

	mu      sync.Mutex
	gen     uint64
	status  domain.Status
	taskIDs []string
}

// NewHighlighter creates a highlighter with the given flash duration; zero
// or negative picks the default.
func NewHighlighter(ttl time.Duration) *Highlighter {
	if ttl <= 0 {
		ttl = defaultFlashTTL
	}
	return &Highlighter{ttl: ttl}
}

// ByStatus flashes the column for the given status together with every
// task currently carrying it.
func (h *Highlighter) ByStatus(status domain.Status, tasks []domain.Task) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == status && t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	h.apply(status, ids)
}

// Urgent flashes every task with urgent priority.
func (h *Highlighter) Urgent(tasks []domain.Task) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Priority == domain.PriorityUrgent && t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	h.apply("", ids)
}

// Task flashes exactly one task, used after task creation completes.
func (h *Highlighter) Task(id string) {
	if id == "" {
		return
	}
	h.apply("", []string{id})
}

// Snapshot returns the currently active highlight set.
func (h *Highlighter) Snapshot() Highlight {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Highlight{
		Status:  h.status,
		TaskIDs: append([]string(nil), h.taskIDs...),
	}
}

// Active reports whether the given task id is in the highlighted set.
func (h *Highlighter) Active(taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.taskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

func (h *Highlighter) apply(status domain.Status, ids []string) {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.status = status
	h.taskIDs = ids
	h.mu.Unlock()

	time.AfterFunc(h.ttl, func() { h.clear(gen) })
}

func (h *Highlighter) clear(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen {
		// A newer highlight replaced this one before it expired.
		return
	}
	h.status = ""
	h.taskIDs = nil
}
