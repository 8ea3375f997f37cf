// Package task implements the task lifecycle engine: persistence, prerequisite
// checks on completion, and regeneration of recurring tasks.
package task

import (
	"strings"
	"time"

	"github.com/metalagman/taskflow/internal/apperr"
)

// Priority ranks a task.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Recurrence is the cadence of a recurring task. The zero value means none.
type Recurrence string

// Recurrence rules.
const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is a known rule (including none).
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Task describes a task record.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatorID   string     `json:"creator_id"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Recurrence  Recurrence `json:"recurrence,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Fields is the client-supplied content of a new task.
type Fields struct {
	Title       string     `json:"title"                 mapstructure:"title"`
	Description string     `json:"description,omitempty" mapstructure:"description"`
	Priority    Priority   `json:"priority,omitempty"    mapstructure:"priority"`
	Completed   bool       `json:"completed,omitempty"   mapstructure:"completed"`
	DueAt       *time.Time `json:"due_at,omitempty"      mapstructure:"due_at"`
	CreatorID   string     `json:"creator_id,omitempty"  mapstructure:"creator_id"`
	AssigneeID  string     `json:"assignee_id,omitempty" mapstructure:"assignee_id"`
	Recurrence  Recurrence `json:"recurrence,omitempty"  mapstructure:"recurrence"`
}

// Normalize trims text and fills the default priority.
func (f Fields) Normalize() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.AssigneeID = strings.TrimSpace(f.AssigneeID)
	if f.Priority == "" {
		f.Priority = PriorityMedium
	}
	return f
}

// Validate checks required fields and enumerations.
func (f Fields) Validate() error {
	errs := map[string]string{}
	if strings.TrimSpace(f.Title) == "" {
		errs["title"] = "is required"
	}
	if f.Priority != "" && !f.Priority.Valid() {
		errs["priority"] = "must be one of high, medium, low"
	}
	if !f.Recurrence.Valid() {
		errs["recurrence"] = "must be one of daily, weekly, monthly"
	}
	if len(errs) > 0 {
		return &apperr.ValidationError{Fields: errs}
	}
	return nil
}

func (f Fields) task(id string, now time.Time) Task {
	f = f.Normalize()
	return Task{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Priority:    f.Priority,
		Completed:   f.Completed,
		DueAt:       utcPtr(f.DueAt),
		CreatorID:   f.CreatorID,
		AssigneeID:  f.AssigneeID,
		Recurrence:  f.Recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string     `json:"title,omitempty"       mapstructure:"title"`
	Description *string     `json:"description,omitempty" mapstructure:"description"`
	Priority    *Priority   `json:"priority,omitempty"    mapstructure:"priority"`
	Completed   *bool       `json:"completed,omitempty"   mapstructure:"completed"`
	DueAt       *time.Time  `json:"due_at,omitempty"      mapstructure:"due_at"`
	ClearDueAt  bool        `json:"clear_due_at,omitempty" mapstructure:"clear_due_at"`
	AssigneeID  *string     `json:"assignee_id,omitempty" mapstructure:"assignee_id"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"  mapstructure:"recurrence"`
}

// Validate checks the fields present in the patch.
func (p Patch) Validate() error {
	errs := map[string]string{}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		errs["title"] = "must not be empty"
	}
	if p.Priority != nil && !p.Priority.Valid() {
		errs["priority"] = "must be one of high, medium, low"
	}
	if p.Recurrence != nil && !p.Recurrence.Valid() {
		errs["recurrence"] = "must be one of daily, weekly, monthly"
	}
	if p.ClearDueAt && p.DueAt != nil {
		errs["due_at"] = "cannot be set and cleared at once"
	}
	if len(errs) > 0 {
		return &apperr.ValidationError{Fields: errs}
	}
	return nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueAt != nil {
		t.DueAt = utcPtr(p.DueAt)
	}
	if p.ClearDueAt {
		t.DueAt = nil
	}
	if p.AssigneeID != nil {
		t.AssigneeID = strings.TrimSpace(*p.AssigneeID)
	}
	if p.Recurrence != nil {
		t.Recurrence = *p.Recurrence
	}
	return t
}

// Completes reports whether the patch marks the task completed.
func (p Patch) Completes() bool {
	return p.Completed != nil && *p.Completed
}

// Decision is the outcome of a prerequisite check.
type Decision struct {
	Allowed  bool     `json:"allowed"`
	Blocking []string `json:"blocking,omitempty"`
}

// UpdateResult is the outcome of an update. Successor is set when completing a
// recurring task produced its next instance.
type UpdateResult struct {
	Task      Task  `json:"task"`
	Successor *Task `json:"successor,omitempty"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
