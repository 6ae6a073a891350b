// Package reconcile applies a batch of per-student marks for one
// (class, subject, date) request, tolerating per-student failures, and
// announces successful mutations on the broadcast bus.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"schoolattend/internal/auth"
	"schoolattend/internal/broadcast"
	"schoolattend/internal/ledger"
	"schoolattend/internal/metrics"
	"schoolattend/internal/school"
)

// Entry is one student's mark in a batch.
type Entry struct {
	StudentID string        `json:"student_id"`
	Status    ledger.Status `json:"status"`
}

// Failure records a per-student error inside a batch.
type Failure struct {
	StudentID string `json:"student_id"`
	Err       error  `json:"-"`
	Reason    string `json:"error"`
}

// BatchResult reports how a batch fared. Callers must inspect Failures;
// the batch call itself succeeds as long as it could run.
type BatchResult struct {
	Touched  int       `json:"touched"`
	Failures []Failure `json:"failures"`
}

// Engine coordinates batch marking.
type Engine struct {
	ledger *ledger.Service
	dir    school.Directory
	bus    broadcast.Bus
}

// NewEngine creates an engine. bus may be nil in tests that don't observe
// events.
func NewEngine(svc *ledger.Service, dir school.Directory, bus broadcast.Bus) *Engine {
	return &Engine{ledger: svc, dir: dir, bus: bus}
}

// markConcurrency bounds parallel per-student upserts. Keys are disjoint
// per student, so writes never contend with each other.
const markConcurrency = 8

// MarkClass marks every entry for (classID, subjectID, day(date)).
// Students missing from the roster fail individually with NotFound; the
// rest of the batch proceeds. Re-submitting an identical batch is a state
// no-op because each mark updates rather than duplicates.
func (e *Engine) MarkClass(ctx context.Context, actor auth.Actor, classID, subjectID string, date time.Time, entries []Entry) (BatchResult, error) {
	if !actor.CanWriteMarks() {
		return BatchResult{}, fmt.Errorf("%w: role %s may not write marks", ledger.ErrUnauthorized, actor.Role)
	}

	roster, err := e.dir.GetRoster(ctx, classID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("resolve roster: %w", err)
	}
	onRoster := make(map[string]bool, len(roster))
	for _, s := range roster {
		onRoster[s.ID] = true
	}

	var (
		mu     sync.Mutex
		result BatchResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, markConcurrency)
	)
	for _, entry := range entries {
		if !onRoster[entry.StudentID] {
			err := fmt.Errorf("%w: student %s not on roster of %s", ledger.ErrNotFound, entry.StudentID, classID)
			mu.Lock()
			result.Failures = append(result.Failures, Failure{StudentID: entry.StudentID, Err: err, Reason: "NotFound"})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			_, err := e.ledger.MarkOne(ctx, entry.StudentID, classID, subjectID, date, entry.Status, actor.UserID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{StudentID: entry.StudentID, Err: err, Reason: reason(err)})
				return
			}
			result.Touched++
		}(entry)
	}
	wg.Wait()

	metrics.MarksWritten.Add(float64(result.Touched))
	metrics.MarkFailures.Add(float64(len(result.Failures)))

	if result.Touched > 0 {
		e.publish(ctx, broadcast.Event{
			Type:    broadcast.TypeMarked,
			ClassID: classID,
			Date:    date,
			Count:   result.Touched,
		})
	}
	return result, nil
}

// MarkOne records or edits a single mark, gated by role, and announces the
// update.
func (e *Engine) MarkOne(ctx context.Context, actor auth.Actor, studentID, classID, subjectID string, date time.Time, status ledger.Status) (ledger.Mark, error) {
	if !actor.CanWriteMarks() {
		return ledger.Mark{}, fmt.Errorf("%w: role %s may not write marks", ledger.ErrUnauthorized, actor.Role)
	}
	m, err := e.ledger.MarkOne(ctx, studentID, classID, subjectID, date, status, actor.UserID)
	if err != nil {
		return ledger.Mark{}, err
	}
	metrics.MarksWritten.Inc()
	e.publish(ctx, broadcast.Event{
		Type:      broadcast.TypeUpdated,
		ClassID:   classID,
		Date:      date,
		StudentID: studentID,
	})
	return m, nil
}

// publish runs after the durable write succeeded. Broadcast failures are
// absorbed; the mutation already happened.
func (e *Engine) publish(ctx context.Context, evt broadcast.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, evt); err != nil {
		log.Printf("broadcast publish failed: %v", err)
		return
	}
	metrics.EventsPublished.Inc()
}

func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ledger.ErrNotFound):
		return "NotFound"
	case errors.Is(err, ledger.ErrValidation):
		return "ValidationError"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "Unauthorized"
	default:
		return "Internal"
	}
}
