package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// UTC returns a copy of t with the due date in UTC, the form both stores keep.
func (t Task) UTC() Task {
	t = t.Clone()
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	return t
}

// TaskInput is the payload for a new task. Id and timestamps are assigned by the store.
type TaskInput struct {
	Title       string
	Description string
	Status      Status
	DueDate     *time.Time
}

// TaskPatch holds the fields of a partial update. Nil fields keep their current value;
// ClearDueDate removes the due date.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *Status
	DueDate      *time.Time
	ClearDueDate bool
}

// Apply merges p over t and returns the result.
func (p TaskPatch) Apply(t Task) Task {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		d := *p.DueDate
		t.DueDate = &d
	}
	return t
}

// FilterAll disables the status constraint of a TaskFilter.
const FilterAll = "all"

type TaskFilter struct {
	Status string
	Query  string
}

// StatusConstraint reports the status the filter requires, if any.
func (f TaskFilter) StatusConstraint() (Status, bool) {
	if f.Status == "" || f.Status == FilterAll {
		return "", false
	}
	return Status(f.Status), true
}
