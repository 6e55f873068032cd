package board

import (
	"strings"

	"board-api/domain"
)

// FilterColumns derives the displayed column set for a free-text query.
// Each column keeps the tasks whose title, description, or any assignee
// contains the query as a case-insensitive substring. A blank query
// returns the columns unfiltered. The second result is true iff the query
// is non-empty and every filtered column came up empty.
//
// This is a pure derivation; it is recomputed on every keystroke and every
// snapshot.
func FilterColumns(columns []domain.Column, query string) ([]domain.Column, bool) {
	term := strings.ToLower(strings.TrimSpace(query))
	filtered := make([]domain.Column, len(columns))
	empty := true
	for i, col := range columns {
		out := col
		if term == "" {
			out.Tasks = append([]domain.Task(nil), col.Tasks...)
		} else {
			tasks := make([]domain.Task, 0, len(col.Tasks))
			for _, t := range col.Tasks {
				if matchesQuery(t, term) {
					tasks = append(tasks, t)
				}
			}
			out.Tasks = tasks
		}
		if len(out.Tasks) > 0 {
			empty = false
		}
		filtered[i] = out
	}
	return filtered, term != "" && empty
}

func matchesQuery(t domain.Task, term string) bool {
	if strings.Contains(strings.ToLower(t.Title), term) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Description), term) {
		return true
	}
	for _, contact := range t.AssignedTo {
		if strings.Contains(strings.ToLower(contact), term) {
			return true
		}
	}
	return false
}
