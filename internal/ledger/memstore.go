package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps marks in memory with the same upsert key semantics as the
// Postgres repository. Used in dev mode when no database is reachable, and
// by tests.
type MemStore struct {
	mu    sync.Mutex
	marks map[string]Mark // id -> mark
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{marks: make(map[string]Mark)}
}

func key(studentID string, day time.Time, subjectID *string) string {
	s := ""
	if subjectID != nil {
		s = *subjectID
	}
	return studentID + "|" + day.Format("2006-01-02") + "|" + s
}

// Upsert inserts or updates under the (student, day, subject) key.
func (s *MemStore) Upsert(ctx context.Context, m Mark) (Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	k := key(m.StudentID, m.Day, m.SubjectID)
	for id, existing := range s.marks {
		if key(existing.StudentID, existing.Day, existing.SubjectID) == k {
			existing.Status = m.Status
			existing.MarkedBy = m.MarkedBy
			existing.MarkedAt = m.MarkedAt
			existing.UpdatedAt = now
			s.marks[id] = existing
			return existing, nil
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	s.marks[m.ID] = m
	return m, nil
}

// List returns a student's marks filtered by window and subject.
func (s *MemStore) List(ctx context.Context, studentID string, w *Window, subjectID *string) ([]Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Mark
	for _, m := range s.marks {
		if m.StudentID != studentID {
			continue
		}
		if w != nil && !w.Contains(m.Day) {
			continue
		}
		if subjectID != nil && (m.SubjectID == nil || *m.SubjectID != *subjectID) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes marks by id.
func (s *MemStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.marks, id)
	}
	return nil
}

// Size returns the number of stored marks for a student. Test hook for the
// uniqueness invariant.
func (s *MemStore) Size(studentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.marks {
		if m.StudentID == studentID {
			n++
		}
	}
	return n
}
