// Package school exposes the read-only collaborators the attendance core
// depends on: class rosters, subject existence, and timetable periods.
// User, class, subject, and timetable management live elsewhere.
package school

import (
	"context"
	"time"
)

// Student is one roster entry.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RollNumber int    `json:"roll_number"`
}

// Subject is the resolution of a subject id.
type Subject struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
}

// Directory is the lookup surface the core consumes. Implementations may
// be local tables or a remote service.
type Directory interface {
	// GetRoster returns the students of a class ordered by roll number.
	GetRoster(ctx context.Context, classID string) ([]Student, error)

	// StudentExists reports whether a student id resolves.
	StudentExists(ctx context.Context, studentID string) (bool, error)

	// SubjectExists resolves a subject id to existence and display name.
	SubjectExists(ctx context.Context, subjectID string) (Subject, error)

	// GetPeriodForDaySubject returns the timetable period for a class,
	// weekday, and subject. ok is false when no slot is scheduled.
	GetPeriodForDaySubject(ctx context.Context, classID string, day time.Weekday, subjectID string) (period int, ok bool, err error)
}
