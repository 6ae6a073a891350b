package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// EnsureSchema creates the tables the attendance core needs. The unique
// index on (student_id, day, subject_id) is what makes mark upserts atomic;
// everything else is plain storage.
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id          TEXT PRIMARY KEY,
			class_id    TEXT NOT NULL,
			name        TEXT NOT NULL,
			roll_number INT  NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS subjects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS timetable_slots (
			class_id    TEXT NOT NULL,
			day_of_week INT  NOT NULL,
			subject_id  TEXT NOT NULL,
			period      INT  NOT NULL,
			PRIMARY KEY (class_id, day_of_week, period)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_marks (
			id         TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			class_id   TEXT NOT NULL,
			subject_id TEXT,
			day        DATE NOT NULL,
			marked_at  TIMESTAMPTZ NOT NULL,
			status     TEXT NOT NULL,
			marked_by  TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS attendance_marks_key
			ON attendance_marks (student_id, day, COALESCE(subject_id, ''))`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
