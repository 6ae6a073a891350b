package school

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory is a directory backed by maps, for dev mode and tests.
type InMemory struct {
	mu       sync.RWMutex
	rosters  map[string][]Student              // classID -> students
	subjects map[string]string                 // subjectID -> name
	periods  map[string]map[int]map[string]int // classID -> weekday -> subjectID -> period
}

// NewInMemory creates an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		rosters:  make(map[string][]Student),
		subjects: make(map[string]string),
		periods:  make(map[string]map[int]map[string]int),
	}
}

// AddStudent places a student on a class roster.
func (d *InMemory) AddStudent(classID string, s Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rosters[classID] = append(d.rosters[classID], s)
	sort.Slice(d.rosters[classID], func(i, j int) bool {
		return d.rosters[classID][i].RollNumber < d.rosters[classID][j].RollNumber
	})
}

// AddSubject registers a subject.
func (d *InMemory) AddSubject(subjectID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[subjectID] = name
}

// RemoveSubject deletes a subject, orphaning any marks that reference it.
func (d *InMemory) RemoveSubject(subjectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subjects, subjectID)
}

// SetPeriod records a timetable slot.
func (d *InMemory) SetPeriod(classID string, day time.Weekday, subjectID string, period int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.periods[classID] == nil {
		d.periods[classID] = make(map[int]map[string]int)
	}
	if d.periods[classID][int(day)] == nil {
		d.periods[classID][int(day)] = make(map[string]int)
	}
	d.periods[classID][int(day)][subjectID] = period
}

// GetRoster returns the students of a class ordered by roll number.
func (d *InMemory) GetRoster(ctx context.Context, classID string) ([]Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roster := make([]Student, len(d.rosters[classID]))
	copy(roster, d.rosters[classID])
	return roster, nil
}

// StudentExists reports whether a student id resolves on any roster.
func (d *InMemory) StudentExists(ctx context.Context, studentID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, roster := range d.rosters {
		for _, s := range roster {
			if s.ID == studentID {
				return true, nil
			}
		}
	}
	return false, nil
}

// SubjectExists resolves a subject id to existence and display name.
func (d *InMemory) SubjectExists(ctx context.Context, subjectID string) (Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.subjects[subjectID]
	return Subject{Exists: ok, Name: name}, nil
}

// GetPeriodForDaySubject returns the timetable period for a class, weekday,
// and subject.
func (d *InMemory) GetPeriodForDaySubject(ctx context.Context, classID string, day time.Weekday, subjectID string) (int, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byDay, ok := d.periods[classID]
	if !ok {
		return 0, false, nil
	}
	bySubject, ok := byDay[int(day)]
	if !ok {
		return 0, false, nil
	}
	period, ok := bySubject[subjectID]
	return period, ok, nil
}
