package model

import (
	"strings"
	"time"
)

// Matches reports whether t satisfies both constraints of f.
// The query is a case-insensitive substring of the title or the description.
func (f TaskFilter) Matches(t Task) bool {
	if status, ok := f.StatusConstraint(); ok && t.Status != status {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// IsOverdue reports whether t is late at now, i.e. now is strictly after the due moment.
// A due date at midnight is a calendar date and covers the whole day, so a task
// due today is not overdue. Completed tasks never are.
func IsOverdue(t Task, now time.Time) bool {
	if t.DueDate == nil || t.Status == StatusCompleted {
		return false
	}
	if IsDateOnly(*t.DueDate) {
		return !now.Before(t.DueDate.AddDate(0, 0, 1))
	}
	return now.After(*t.DueDate)
}

// IsDateOnly reports whether d has no time of day in its location.
func IsDateOnly(d time.Time) bool {
	h, m, s := d.Clock()
	return h == 0 && m == 0 && s == 0 && d.Nanosecond() == 0
}
