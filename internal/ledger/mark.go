// Package ledger owns per-student attendance marks: the uniqueness
// invariant on (student, day, subject) and the update-vs-append decision.
package ledger

import (
	"errors"
	"time"
)

// Sentinel errors shared across the attendance core.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// Status is the recorded state of one attendance mark.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusLeave   Status = "Leave"
)

// Valid reports whether the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLeave:
		return true
	default:
		return false
	}
}

// Mark is one attendance fact. At most one mark exists per
// (StudentID, Day, SubjectID); marking the same key again updates the
// stored row instead of appending.
type Mark struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	SubjectID *string   `json:"subject_id"` // nil on legacy marks; such marks are orphaned
	Day       time.Time `json:"day"`        // calendar day, midnight in the ledger's zone
	MarkedAt  time.Time `json:"marked_at"`  // the instant the mark was taken
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"marked_by"`
	Period    *int      `json:"period,omitempty"` // display-only timetable annotation, never stored
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window is an inclusive day range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// DayOf truncates an instant to its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
