package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolattend/internal/metrics"
	"schoolattend/internal/school"
)

// Store is the persistence surface the service runs on. Satisfied by the
// Postgres Repository and by MemStore.
type Store interface {
	Upsert(ctx context.Context, m Mark) (Mark, error)
	List(ctx context.Context, studentID string, w *Window, subjectID *string) ([]Mark, error)
	Delete(ctx context.Context, ids []string) error
}

// Service applies the ledger rules on top of a Store: key derivation,
// validation, and orphan pruning on read.
type Service struct {
	store Store
	dir   school.Directory
	loc   *time.Location
}

// NewService creates a ledger service. loc defines calendar-day boundaries.
func NewService(store Store, dir school.Directory, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, dir: dir, loc: loc}
}

// Location returns the zone the ledger computes days in.
func (s *Service) Location() *time.Location { return s.loc }

// MarkOne records or updates the mark for (studentID, day(date), subjectID).
// A second call with the same key updates the existing mark rather than
// appending.
func (s *Service) MarkOne(ctx context.Context, studentID, classID, subjectID string, date time.Time, status Status, markedBy string) (Mark, error) {
	if !status.Valid() {
		return Mark{}, fmt.Errorf("%w: status %q", ErrValidation, status)
	}
	if studentID == "" || classID == "" || subjectID == "" {
		return Mark{}, fmt.Errorf("%w: student, class, and subject required", ErrValidation)
	}
	exists, err := s.dir.StudentExists(ctx, studentID)
	if err != nil {
		return Mark{}, fmt.Errorf("resolve student: %w", err)
	}
	if !exists {
		return Mark{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
	}

	m := Mark{
		StudentID: studentID,
		ClassID:   classID,
		SubjectID: &subjectID,
		Day:       DayOf(date, s.loc),
		MarkedAt:  date,
		Status:    status,
		MarkedBy:  markedBy,
	}
	return s.store.Upsert(ctx, m)
}

// ReadMarks returns a student's marks within the window and subject filter.
// An unknown student fails with ErrNotFound. Marks whose subject no longer
// resolves are excluded and pruned from storage as a side effect, so
// repeated reads converge on clean state.
func (s *Service) ReadMarks(ctx context.Context, studentID string, w *Window, subjectID *string) ([]Mark, error) {
	exists, err := s.dir.StudentExists(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("resolve student: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
	}

	marks, err := s.store.List(ctx, studentID, w, subjectID)
	if err != nil {
		return nil, err
	}

	kept := marks[:0]
	var orphans []string
	resolved := make(map[string]bool) // subjectID -> exists, per-call cache
	for _, m := range marks {
		if m.SubjectID == nil {
			orphans = append(orphans, m.ID)
			continue
		}
		exists, ok := resolved[*m.SubjectID]
		if !ok {
			subj, err := s.dir.SubjectExists(ctx, *m.SubjectID)
			if err != nil {
				return nil, fmt.Errorf("resolve subject: %w", err)
			}
			exists = subj.Exists
			resolved[*m.SubjectID] = exists
		}
		if !exists {
			orphans = append(orphans, m.ID)
			continue
		}
		kept = append(kept, m)
	}

	if len(orphans) > 0 {
		// Pruning is best effort; the next read retries.
		if err := s.store.Delete(ctx, orphans); err != nil {
			log.Printf("orphan prune failed for student %s: %v", studentID, err)
		} else {
			metrics.OrphansPruned.Add(float64(len(orphans)))
		}
	}
	return kept, nil
}

// AnnotatePeriods fills the display-only Period field from the timetable.
// Lookup failures leave marks unannotated; the period is never
// authoritative.
func (s *Service) AnnotatePeriods(ctx context.Context, classID string, marks []Mark) {
	type slot struct {
		day     int
		subject string
	}
	cache := make(map[slot]*int)
	for i := range marks {
		if marks[i].SubjectID == nil {
			continue
		}
		k := slot{int(marks[i].Day.Weekday()), *marks[i].SubjectID}
		p, ok := cache[k]
		if !ok {
			period, scheduled, err := s.dir.GetPeriodForDaySubject(ctx, classID, marks[i].Day.Weekday(), *marks[i].SubjectID)
			if err != nil {
				log.Printf("timetable lookup failed: %v", err)
				cache[k] = nil
				continue
			}
			if scheduled {
				p = &period
			}
			cache[k] = p
		}
		marks[i].Period = p
	}
}
