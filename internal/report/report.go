// Package report aggregates ledger marks into per-class views with the
// portal's overall-status policy and summary counts.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"schoolattend/internal/ledger"
	"schoolattend/internal/metrics"
	"schoolattend/internal/school"
)

// OverallStatus is the per-student, per-window derived status.
type OverallStatus string

const (
	OverallNoRecord OverallStatus = "NoRecord"
	OverallPresent  OverallStatus = "Present"
	OverallAbsent   OverallStatus = "Absent"
	OverallLeave    OverallStatus = "Leave"
)

// Overall applies the status policy: no marks is NoRecord, any Present
// wins, then any Absent, then Leave. A student present in one of ten
// periods still reports Present; that is recorded source behavior, kept
// pending product sign-off, not a bug to fix here.
func Overall(marks []ledger.Mark) OverallStatus {
	if len(marks) == 0 {
		return OverallNoRecord
	}
	sawAbsent := false
	for _, m := range marks {
		switch m.Status {
		case ledger.StatusPresent:
			return OverallPresent
		case ledger.StatusAbsent:
			sawAbsent = true
		}
	}
	if sawAbsent {
		return OverallAbsent
	}
	return OverallLeave
}

// Row is one student's view in a report.
type Row struct {
	StudentID  string        `json:"student_id"`
	Name       string        `json:"name"`
	RollNumber int           `json:"roll_number"`
	Marks      []ledger.Mark `json:"marks"`
	Overall    OverallStatus `json:"overall_status"`
}

// Summary holds the class-level counts, computed over per-student overall
// statuses, never over individual marks.
type Summary struct {
	TotalRecords int `json:"total_records"`
	PresentCount int `json:"present_count"`
	AbsentCount  int `json:"absent_count"`
	Percentage   int `json:"percentage"`
}

// Report is a per-class attendance view over a window.
type Report struct {
	ClassID   string        `json:"class_id"`
	SubjectID *string       `json:"subject_id,omitempty"`
	Window    ledger.Window `json:"window"`
	Rows      []Row         `json:"rows"`
	Summary   Summary       `json:"summary"`
}

// Aggregator builds reports from the ledger and the school directory.
type Aggregator struct {
	ledger *ledger.Service
	dir    school.Directory
	loc    *time.Location
	now    func() time.Time
}

// NewAggregator creates an aggregator. now defaults to time.Now.
func NewAggregator(svc *ledger.Service, dir school.Directory, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{ledger: svc, dir: dir, loc: loc, now: time.Now}
}

// readConcurrency bounds parallel per-student ledger reads.
const readConcurrency = 8

// BuildReport resolves the window, pulls the roster, and reads each
// student's matching marks. Side-effect free apart from the ledger's
// self-healing orphan prune; calling it again on unchanged state yields
// the same result.
func (a *Aggregator) BuildReport(ctx context.Context, classID string, subjectID *string, filter FilterType, start, end *time.Time) (*Report, error) {
	w, err := ResolveWindow(a.now(), a.loc, filter, start, end)
	if err != nil {
		return nil, err
	}
	if subjectID != nil {
		subj, err := a.dir.SubjectExists(ctx, *subjectID)
		if err != nil {
			return nil, fmt.Errorf("resolve subject: %w", err)
		}
		if !subj.Exists {
			return nil, fmt.Errorf("%w: subject %s", ledger.ErrNotFound, *subjectID)
		}
	}

	roster, err := a.dir.GetRoster(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}

	rows := make([]Row, len(roster))
	errs := make([]error, len(roster))
	sem := make(chan struct{}, readConcurrency)
	var wg sync.WaitGroup
	for i, s := range roster {
		wg.Add(1)
		go func(i int, s school.Student) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			marks, err := a.ledger.ReadMarks(ctx, s.ID, &w, subjectID)
			if err != nil {
				errs[i] = err
				return
			}
			a.ledger.AnnotatePeriods(ctx, classID, marks)
			rows[i] = Row{
				StudentID:  s.ID,
				Name:       s.Name,
				RollNumber: s.RollNumber,
				Marks:      marks,
				Overall:    Overall(marks),
			}
		}(i, s)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	r := &Report{
		ClassID:   classID,
		SubjectID: subjectID,
		Window:    w,
		Rows:      rows,
	}
	r.Summary = Summarize(r)
	metrics.ReportsBuilt.Inc()
	return r, nil
}

// Summarize counts per-student overall statuses. A class of 30 students
// with 5 marks each yields at most 30 counted units. Percentage is
// round(present / (present + absent) * 100), 0 when the denominator is 0.
func Summarize(r *Report) Summary {
	var s Summary
	for _, row := range r.Rows {
		switch row.Overall {
		case OverallNoRecord:
			continue
		case OverallPresent:
			s.PresentCount++
		case OverallAbsent:
			s.AbsentCount++
		}
		s.TotalRecords++
	}
	if denom := s.PresentCount + s.AbsentCount; denom > 0 {
		s.Percentage = int(math.Round(float64(s.PresentCount) / float64(denom) * 100))
	}
	return s
}

// sortedByRoll returns rows ordered by roll number without mutating the
// report.
func sortedByRoll(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	return out
}
