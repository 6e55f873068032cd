package domain

import (
	"sort"
	"strings"
)

// ColumnID identifies one of the four fixed board columns.
type ColumnID string

const (
	ColumnTodo     ColumnID = "todo"
	ColumnProgress ColumnID = "progress"
	ColumnFeedback ColumnID = "feedback"
	ColumnDone     ColumnID = "done"
)

// Column is a derived bucket of tasks sharing one status value. Column
// identity is stable for the lifetime of the board; the task slice is
// replaced wholesale on every partition.
type Column struct {
	ID    ColumnID `json:"id"`
	Title string   `json:"title"`
	Tasks []Task   `json:"tasks"`
}

// NewColumns returns the four fixed board columns, empty.
func NewColumns() []Column {
	return []Column{
		{ID: ColumnTodo, Title: "To Do", Tasks: []Task{}},
		{ID: ColumnProgress, Title: "In Progress", Tasks: []Task{}},
		{ID: ColumnFeedback, Title: "Await Feedback", Tasks: []Task{}},
		{ID: ColumnDone, Title: "Done", Tasks: []Task{}},
	}
}

// StatusForColumn maps a column identifier to the status it implies. The
// boolean reports whether the identifier is known; an unrecognized drop
// target is rejected rather than silently defaulted to todo.
func StatusForColumn(id ColumnID) (Status, bool) {
	switch id {
	case ColumnTodo:
		return StatusTodo, true
	case ColumnProgress:
		return StatusInProgress, true
	case ColumnFeedback:
		return StatusFeedback, true
	case ColumnDone:
		return StatusDone, true
	}
	return "", false
}

// ColumnForStatus is the inverse mapping. Empty and unknown statuses land
// in the todo column, matching partition defaulting.
func ColumnForStatus(s Status) ColumnID {
	switch s {
	case StatusInProgress:
		return ColumnProgress
	case StatusFeedback:
		return ColumnFeedback
	case StatusDone:
		return ColumnDone
	default:
		return ColumnTodo
	}
}

// Less is the total order over tasks within one column. Sequenced tasks
// sort before unsequenced ones; ties break on case-insensitive title and
// then on id, so the ordering is deterministic even for freshly imported
// data with no order values at all.
func Less(a, b Task) bool {
	switch {
	case a.Sequenced() && b.Sequenced():
		if *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
	case a.Sequenced():
		return true
	case b.Sequenced():
		return false
	}
	at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
	if at != bt {
		return at < bt
	}
	return a.ID < b.ID
}

// SortTasks sorts the slice in place using Less. Sorting an already
// ordered slice leaves it unchanged.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })
}

// Partition recomputes column membership from the full task collection.
// Every task lands in exactly one column; the previous contents are
// discarded.
func Partition(columns []Column, tasks []Task) {
	for i := range columns {
		col := &columns[i]
		bucket := make([]Task, 0, len(tasks))
		for _, t := range tasks {
			if ColumnForStatus(t.Status) == col.ID {
				bucket = append(bucket, t)
			}
		}
		SortTasks(bucket)
		col.Tasks = bucket
	}
}
