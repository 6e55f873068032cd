package domain

import (
	"strings"

	"github.com/bytedance/sonic"
)

// Status determines which board column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inProgress"
	StatusFeedback   Status = "feedback"
	StatusDone       Status = "done"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityUrgent Priority = "urgent"
)

// Subtask is a single checklist entry on a task.
type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// UnmarshalJSON tolerates the legacy representation where a subtask was
// stored as a bare string. Such entries are coerced to an open subtask so
// nothing deeper in the engine has to branch on representation.
func (s *Subtask) UnmarshalJSON(data []byte) error {
	var title string
	if err := sonic.Unmarshal(data, &title); err == nil {
		s.Title = title
		s.Done = false
		return nil
	}
	type plain Subtask
	var v plain
	if err := sonic.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Subtask(v)
	return nil
}

// Task represents a single board item in the read model.
type Task struct {
	ID          string    `json:"id,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	DueDate     string    `json:"dueDate,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	AssignedTo  []string  `json:"assignedTo,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
	// Order is the persisted position within the task's column. Nil means
	// the task has not been sequenced yet.
	Order *int `json:"order,omitempty"`
}

// Sequenced reports whether the task carries an explicit order value.
func (t Task) Sequenced() bool { return t.Order != nil }

// CompletedSubtasks counts the checklist entries marked done.
func (t Task) CompletedSubtasks() int {
	n := 0
	for _, s := range t.Subtasks {
		if s.Done {
			n++
		}
	}
	return n
}

// SubtaskProgress returns the checklist completion percentage, 0 when the
// task has no subtasks.
func (t Task) SubtaskProgress() float64 {
	if len(t.Subtasks) == 0 {
		return 0
	}
	return float64(t.CompletedSubtasks()) / float64(len(t.Subtasks)) * 100
}

// CategoryTag derives the display style tag for the task category, e.g.
// "Technical Task" becomes "category-technical-task".
func (t Task) CategoryTag() string {
	fields := strings.Fields(strings.ToLower(t.Category))
	if len(fields) == 0 {
		return ""
	}
	return "category-" + strings.Join(fields, "-")
}

// PriorityIcon returns the icon reference for the task priority, falling
// back to medium for unknown values.
func (t Task) PriorityIcon() string {
	switch t.Priority {
	case PriorityLow:
		return "/icons/prio-low.svg"
	case PriorityUrgent:
		return "/icons/prio-urgent.svg"
	default:
		return "/icons/prio-medium.svg"
	}
}

// TaskPatch carries the fields of a partial task update. Nil fields are
// left untouched by the store.
type TaskPatch struct {
	Status      *Status    `json:"status,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	DueDate     *string    `json:"dueDate,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	AssignedTo  *[]string  `json:"assignedTo,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
	Order       *int       `json:"order,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Status == nil && p.Title == nil && p.Description == nil &&
		p.Category == nil && p.DueDate == nil && p.Priority == nil &&
		p.AssignedTo == nil && p.Subtasks == nil && p.Order == nil
}
