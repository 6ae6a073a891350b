package ledger

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"
)

// Repository persists attendance marks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const markColumns = `id, student_id, class_id, subject_id, day, marked_at, status, marked_by, created_at, updated_at`

// Upsert writes a mark atomically: insert when the (student, day, subject)
// key is new, otherwise update status, marker, and timestamp in place.
// The single statement is what makes concurrent writers converge to
// last-write-wins without a read-modify-write race.
func (r *Repository) Upsert(ctx context.Context, m Mark) (Mark, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_marks (id, student_id, class_id, subject_id, day, marked_at, status, marked_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, day, COALESCE(subject_id, '')) DO UPDATE SET
			status     = EXCLUDED.status,
			marked_by  = EXCLUDED.marked_by,
			marked_at  = EXCLUDED.marked_at,
			updated_at = NOW()
		RETURNING `+markColumns+`
	`, m.ID, m.StudentID, m.ClassID, m.SubjectID, m.Day, m.MarkedAt, m.Status, m.MarkedBy)
	return scanMark(row)
}

// List returns a student's marks, optionally filtered to a day window and
// subject. Re-querying yields current state, not a snapshot cursor.
func (r *Repository) List(ctx context.Context, studentID string, w *Window, subjectID *string) ([]Mark, error) {
	query := `SELECT ` + markColumns + ` FROM attendance_marks WHERE student_id = $1`
	args := []any{studentID}
	if w != nil {
		query += ` AND day BETWEEN $2 AND $3`
		args = append(args, w.Start, w.End)
	}
	if subjectID != nil {
		query += ` AND subject_id = $` + strconv.Itoa(len(args)+1)
		args = append(args, *subjectID)
	}
	query += ` ORDER BY day, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []Mark
	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// Delete removes marks by id. Used by the self-healing read to prune
// orphans.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM attendance_marks WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMark(row scanner) (Mark, error) {
	var m Mark
	var subject sql.NullString
	if err := row.Scan(&m.ID, &m.StudentID, &m.ClassID, &subject, &m.Day, &m.MarkedAt, &m.Status, &m.MarkedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Mark{}, err
	}
	if subject.Valid {
		m.SubjectID = &subject.String
	}
	return m, nil
}
