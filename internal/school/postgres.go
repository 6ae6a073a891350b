package school

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresDirectory reads rosters, subjects, and timetable slots from the
// portal's own tables.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory over an open connection.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// GetRoster returns the students of a class ordered by roll number.
func (d *PostgresDirectory) GetRoster(ctx context.Context, classID string) ([]Student, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, roll_number
		FROM students
		WHERE class_id = $1
		ORDER BY roll_number
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.RollNumber); err != nil {
			return nil, err
		}
		roster = append(roster, s)
	}
	return roster, rows.Err()
}

// StudentExists reports whether a student id resolves.
func (d *PostgresDirectory) StudentExists(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&exists)
	return exists, err
}

// SubjectExists resolves a subject id to existence and display name.
func (d *PostgresDirectory) SubjectExists(ctx context.Context, subjectID string) (Subject, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		`SELECT name FROM subjects WHERE id = $1`, subjectID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, nil
	}
	if err != nil {
		return Subject{}, err
	}
	return Subject{Exists: true, Name: name}, nil
}

// GetPeriodForDaySubject returns the timetable period for a class, weekday,
// and subject.
func (d *PostgresDirectory) GetPeriodForDaySubject(ctx context.Context, classID string, day time.Weekday, subjectID string) (int, bool, error) {
	var period int
	err := d.db.QueryRowContext(ctx, `
		SELECT period FROM timetable_slots
		WHERE class_id = $1 AND day_of_week = $2 AND subject_id = $3
		ORDER BY period
		LIMIT 1
	`, classID, int(day), subjectID).Scan(&period)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return period, true, nil
}
