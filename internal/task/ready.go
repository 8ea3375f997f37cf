package task

import "sort"

// SortReady orders actionable tasks: higher priority first, then earlier due
// time (undated last), then creation time, then id.
func SortReady(items []Task) {
	sort.SliceStable(items, func(i, j int) bool {
		left, right := items[i], items[j]
		if left.Priority.rank() != right.Priority.rank() {
			return left.Priority.rank() < right.Priority.rank()
		}
		switch {
		case left.DueAt != nil && right.DueAt == nil:
			return true
		case left.DueAt == nil && right.DueAt != nil:
			return false
		case left.DueAt != nil && right.DueAt != nil && !left.DueAt.Equal(*right.DueAt):
			return left.DueAt.Before(*right.DueAt)
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.Before(right.CreatedAt)
		}
		return left.ID < right.ID
	})
}
