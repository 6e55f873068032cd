package board

import (
	"board-api/domain"
)

// Gesture describes a single drop event: where the task came from, where
// it was released, and which task was dragged.
type Gesture struct {
	From      domain.ColumnID `json:"from"`
	To        domain.ColumnID `json:"to"`
	FromIndex int             `json:"fromIndex"`
	ToIndex   int             `json:"toIndex"`
	TaskID    string          `json:"taskId"`
}

// Drop processes a drop gesture: a same-column reorder or a cross-column
// transfer. Local state mutates synchronously; persistence is issued
// afterwards through the writer pool and never blocks the gesture.
//
// While a text filter is active the dragged column contents are the
// filtered subset, not the canonical column. Reordering then only
// rearranges the visible view, and a transfer writes the status change
// alone; computing a dense reindex against a partial view would corrupt
// order values for hidden siblings.
func (e *Engine) Drop(actor Actor, g Gesture) error {
	if !actor.CanEdit() {
		e.notify(Notice{Message: "Guests cannot move tasks.", Denial: true})
		return ErrPermissionDenied
	}
	if _, ok := domain.StatusForColumn(g.From); !ok {
		return ErrUnknownColumn
	}
	status, ok := domain.StatusForColumn(g.To)
	if !ok {
		return ErrUnknownColumn
	}

	e.mu.Lock()
	if e.filterActiveLocked() {
		err := e.dropFilteredLocked(g, status)
		e.mu.Unlock()
		if err != nil {
			return err
		}
		e.changed()
		return nil
	}

	var job writeJob
	var err error
	if g.From == g.To {
		job, err = e.reorderLocked(g)
	} else {
		job, err = e.transferLocked(g, status)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.changed()

	if len(job.patches) > 0 {
		e.writer.enqueue(job)
	}
	return nil
}

// reorderLocked handles a same-column move: splice the task to its new
// position, then reindex the column to dense sequential order values.
func (e *Engine) reorderLocked(g Gesture) (writeJob, error) {
	col := e.columnLocked(g.From)
	from, ok := locateTask(col.Tasks, g.FromIndex, g.TaskID)
	if !ok {
		return writeJob{}, ErrTaskNotFound
	}

	task := col.Tasks[from]
	col.Tasks = append(col.Tasks[:from], col.Tasks[from+1:]...)
	to := clamp(g.ToIndex, len(col.Tasks))
	col.Tasks = append(col.Tasks[:to], append([]domain.Task{task}, col.Tasks[to:]...)...)

	job := writeJob{patches: e.reindexLocked(col)}
	e.refreshViewLocked()
	return job, nil
}

// transferLocked handles a cross-column move: remove from the source,
// insert at the target index, switch the task's status, and reindex both
// columns.
func (e *Engine) transferLocked(g Gesture, status domain.Status) (writeJob, error) {
	src := e.columnLocked(g.From)
	dst := e.columnLocked(g.To)
	from, ok := locateTask(src.Tasks, g.FromIndex, g.TaskID)
	if !ok {
		return writeJob{}, ErrTaskNotFound
	}

	task := src.Tasks[from]
	src.Tasks = append(src.Tasks[:from], src.Tasks[from+1:]...)
	task.Status = status
	to := clamp(g.ToIndex, len(dst.Tasks))
	dst.Tasks = append(dst.Tasks[:to], append([]domain.Task{task}, dst.Tasks[to:]...)...)

	if t := e.taskLocked(task.ID); t != nil {
		t.Status = status
	}

	job := writeJob{patches: append(e.reindexLocked(src), e.reindexLocked(dst)...)}
	// The moved task's write must also carry the status change. When its
	// order happens to be unchanged it got no reindex write, so add one.
	s := status
	carried := false
	for i := range job.patches {
		if job.patches[i].taskID == task.ID {
			job.patches[i].patch.Status = &s
			carried = true
			break
		}
	}
	if !carried {
		job.patches = append(job.patches, patchWrite{
			taskID: task.ID,
			patch:  domain.TaskPatch{Status: &s},
		})
	}
	e.refreshViewLocked()
	return job, nil
}

// dropFilteredLocked handles gestures under an active filter. Same-column
// moves rearrange the filtered view only. Cross-column moves switch the
// status locally and persist that single field; the filtered view is
// rebuilt from the canonical recomputation.
func (e *Engine) dropFilteredLocked(g Gesture, status domain.Status) error {
	if g.From == g.To {
		col := filteredColumn(e.filtered, g.From)
		from, ok := locateTask(col.Tasks, g.FromIndex, g.TaskID)
		if !ok {
			return ErrTaskNotFound
		}
		task := col.Tasks[from]
		col.Tasks = append(col.Tasks[:from], col.Tasks[from+1:]...)
		to := clamp(g.ToIndex, len(col.Tasks))
		col.Tasks = append(col.Tasks[:to], append([]domain.Task{task}, col.Tasks[to:]...)...)
		return nil
	}

	t := e.taskLocked(g.TaskID)
	if t == nil {
		return ErrTaskNotFound
	}
	t.Status = status
	domain.Partition(e.columns, e.tasks)
	e.refreshViewLocked()

	s := status
	e.writer.enqueue(writeJob{patches: []patchWrite{{
		taskID: g.TaskID,
		patch:  domain.TaskPatch{Status: &s},
	}}})
	return nil
}

// reindexLocked assigns each task in the column an order equal to its
// position, mirrors the change into the canonical collection, and returns
// a write for every task whose order actually changed.
func (e *Engine) reindexLocked(col *domain.Column) []patchWrite {
	writes := make([]patchWrite, 0, len(col.Tasks))
	for i := range col.Tasks {
		t := &col.Tasks[i]
		if t.Sequenced() && *t.Order == i {
			continue
		}
		order := i
		t.Order = &order
		if canonical := e.taskLocked(t.ID); canonical != nil {
			canonical.Order = &order
		}
		writes = append(writes, patchWrite{
			taskID: t.ID,
			patch:  domain.TaskPatch{Order: &order},
		})
	}
	return writes
}

func (e *Engine) columnLocked(id domain.ColumnID) *domain.Column {
	for i := range e.columns {
		if e.columns[i].ID == id {
			return &e.columns[i]
		}
	}
	return nil
}

func filteredColumn(columns []domain.Column, id domain.ColumnID) *domain.Column {
	for i := range columns {
		if columns[i].ID == id {
			return &columns[i]
		}
	}
	return nil
}

// locateTask resolves the dragged task inside a column. The index from the
// gesture is trusted when it still points at the task; a stale index falls
// back to a scan by id.
func locateTask(tasks []domain.Task, index int, taskID string) (int, bool) {
	if index >= 0 && index < len(tasks) && tasks[index].ID == taskID {
		return index, true
	}
	for i := range tasks {
		if tasks[i].ID == taskID {
			return i, true
		}
	}
	return 0, false
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
