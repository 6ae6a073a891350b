package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"schoolattend/internal/school"
)

func newTestLedger(t *testing.T) (*Service, *MemStore, *school.InMemory) {
	t.Helper()
	store := NewMemStore()
	dir := school.NewInMemory()
	dir.AddStudent("c1", school.Student{ID: "s1", Name: "Asha", RollNumber: 1})
	dir.AddStudent("c1", school.Student{ID: "s2", Name: "Binod", RollNumber: 2})
	dir.AddSubject("math", "Mathematics")
	dir.AddSubject("sci", "Science")
	return NewService(store, dir, time.UTC), store, dir
}

func date(y int, m time.Month, d, hh int) time.Time {
	return time.Date(y, m, d, hh, 0, 0, 0, time.UTC)
}

func TestMarkOneIdempotent(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.MarkOne(ctx, "s1", "c1", "math", date(2024, 1, 10, 9), StatusPresent, "t1"); err != nil {
			t.Fatalf("MarkOne: %v", err)
		}
	}
	if got := store.Size("s1"); got != 1 {
		t.Errorf("ledger size = %d, want 1", got)
	}
}

func TestMarkOneUpdateNotAppend(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.MarkOne(ctx, "s1", "c1", "math", date(2024, 1, 10, 9), StatusPresent, "t1"); err != nil {
		t.Fatalf("first MarkOne: %v", err)
	}
	// Same calendar day at a different hour, different marker.
	m, err := svc.MarkOne(ctx, "s1", "c1", "math", date(2024, 1, 10, 14), StatusAbsent, "t2")
	if err != nil {
		t.Fatalf("second MarkOne: %v", err)
	}
	if m.Status != StatusAbsent {
		t.Errorf("status = %s, want Absent", m.Status)
	}
	if m.MarkedBy != "t2" {
		t.Errorf("markedBy = %s, want t2", m.MarkedBy)
	}
	if got := store.Size("s1"); got != 1 {
		t.Errorf("ledger size = %d, want 1", got)
	}
}

func TestMarkOneSeparateKeys(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()

	writes := []struct {
		subject string
		day     time.Time
	}{
		{"math", date(2024, 1, 10, 9)},
		{"sci", date(2024, 1, 10, 10)}, // same day, other subject
		{"math", date(2024, 1, 11, 9)}, // other day, same subject
	}
	for _, w := range writes {
		if _, err := svc.MarkOne(ctx, "s1", "c1", w.subject, w.day, StatusPresent, "t1"); err != nil {
			t.Fatalf("MarkOne(%s %s): %v", w.subject, w.day, err)
		}
	}
	if got := store.Size("s1"); got != 3 {
		t.Errorf("ledger size = %d, want 3", got)
	}
}

func TestMarkOneErrors(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		student string
		subject string
		status  Status
		wantErr error
	}{
		{name: "bad status", student: "s1", subject: "math", status: Status("Late"), wantErr: ErrValidation},
		{name: "empty subject", student: "s1", subject: "", status: StatusPresent, wantErr: ErrValidation},
		{name: "unknown student", student: "ghost", subject: "math", status: StatusPresent, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MarkOne(ctx, tt.student, "c1", tt.subject, date(2024, 1, 10, 9), tt.status, "t1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MarkOne() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadMarksUnknownStudent(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	_, err := svc.ReadMarks(context.Background(), "ghost", nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadMarks() error = %v, want %v", err, ErrNotFound)
	}
}

func TestReadMarksWindowAndSubjectFilter(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()

	marks := []struct {
		subject string
		day     time.Time
	}{
		{"math", date(2024, 1, 8, 9)},
		{"math", date(2024, 1, 10, 9)},
		{"sci", date(2024, 1, 10, 10)},
		{"math", date(2024, 1, 20, 9)},
	}
	for _, m := range marks {
		if _, err := svc.MarkOne(ctx, "s1", "c1", m.subject, m.day, StatusPresent, "t1"); err != nil {
			t.Fatalf("MarkOne: %v", err)
		}
	}

	w := &Window{Start: date(2024, 1, 8, 0), End: date(2024, 1, 12, 0)}
	math := "math"
	got, err := svc.ReadMarks(ctx, "s1", w, &math)
	if err != nil {
		t.Fatalf("ReadMarks: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(marks) = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.SubjectID == nil || *m.SubjectID != "math" {
			t.Errorf("unexpected subject in result: %+v", m)
		}
	}
}

func TestReadMarksPrunesOrphans(t *testing.T) {
	svc, store, dir := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.MarkOne(ctx, "s1", "c1", "math", date(2024, 1, 10, 9), StatusPresent, "t1"); err != nil {
		t.Fatalf("MarkOne math: %v", err)
	}
	if _, err := svc.MarkOne(ctx, "s1", "c1", "sci", date(2024, 1, 10, 10), StatusAbsent, "t1"); err != nil {
		t.Fatalf("MarkOne sci: %v", err)
	}

	// Subject deleted elsewhere; its marks become orphans.
	dir.RemoveSubject("sci")

	got, err := svc.ReadMarks(ctx, "s1", nil, nil)
	if err != nil {
		t.Fatalf("ReadMarks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(marks) = %d, want 1", len(got))
	}
	if *got[0].SubjectID != "math" {
		t.Errorf("kept subject = %s, want math", *got[0].SubjectID)
	}
	// The orphan is gone from backing storage, not just filtered.
	if size := store.Size("s1"); size != 1 {
		t.Errorf("stored marks after prune = %d, want 1", size)
	}
}

func TestReadMarksPrunesNilSubjectMarks(t *testing.T) {
	svc, store, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := svc.MarkOne(ctx, "s1", "c1", "math", date(2024, 1, 10, 9), StatusPresent, "t1"); err != nil {
		t.Fatalf("MarkOne: %v", err)
	}
	// Legacy rows predate the subject column; seed one directly.
	if _, err := store.Upsert(ctx, Mark{
		StudentID: "s1",
		ClassID:   "c1",
		Day:       date(2024, 1, 11, 0),
		MarkedAt:  date(2024, 1, 11, 9),
		Status:    StatusPresent,
		MarkedBy:  "t1",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := svc.ReadMarks(ctx, "s1", nil, nil)
	if err != nil {
		t.Fatalf("ReadMarks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(marks) = %d, want 1", len(got))
	}
	if got[0].SubjectID == nil || *got[0].SubjectID != "math" {
		t.Errorf("kept mark = %+v, want the math mark", got[0])
	}
	if size := store.Size("s1"); size != 1 {
		t.Errorf("stored marks after prune = %d, want 1", size)
	}
}

func TestDayOf(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"morning", date(2024, 1, 10, 9), date(2024, 1, 10, 0)},
		{"just before midnight", time.Date(2024, 1, 10, 23, 59, 59, 0, loc), date(2024, 1, 10, 0)},
		{"midnight stays", date(2024, 1, 10, 0), date(2024, 1, 10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayOf(tt.in, loc); !got.Equal(tt.want) {
				t.Errorf("DayOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
