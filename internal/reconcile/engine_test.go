package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"schoolattend/internal/auth"
	"schoolattend/internal/broadcast"
	"schoolattend/internal/ledger"
	"schoolattend/internal/report"
	"schoolattend/internal/school"
)

type fixture struct {
	engine *Engine
	agg    *report.Aggregator
	store  *ledger.MemStore
	hub    *broadcast.Hub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := school.NewInMemory()
	dir.AddStudent("c1", school.Student{ID: "s1", Name: "Asha", RollNumber: 1})
	dir.AddStudent("c1", school.Student{ID: "s2", Name: "Binod", RollNumber: 2})
	dir.AddStudent("c1", school.Student{ID: "s3", Name: "Chandra", RollNumber: 3})
	dir.AddSubject("math", "Mathematics")

	store := ledger.NewMemStore()
	svc := ledger.NewService(store, dir, time.UTC)
	hub := broadcast.NewHub(16, nil)
	return fixture{
		engine: NewEngine(svc, dir, hub),
		agg:    report.NewAggregator(svc, dir, time.UTC),
		store:  store,
		hub:    hub,
	}
}

var (
	teacher = auth.Actor{UserID: "t1", Role: auth.RoleTeacher}
	student = auth.Actor{UserID: "s1", Role: auth.RoleStudent}
	markDay = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
)

func allPresent(ids ...string) []Entry {
	var entries []Entry
	for _, id := range ids {
		entries = append(entries, Entry{StudentID: id, Status: ledger.StatusPresent})
	}
	return entries
}

func buildDayReport(t *testing.T, agg *report.Aggregator) *report.Report {
	t.Helper()
	math := "math"
	rep, err := agg.BuildReport(context.Background(), "c1", &math, report.FilterRange, &markDay, &markDay)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	return rep
}

func TestMarkClassThenReport(t *testing.T) {
	// Scenario: mark three students present, report the day.
	f := newFixture(t)
	result, err := f.engine.MarkClass(context.Background(), teacher, "c1", "math", markDay, allPresent("s1", "s2", "s3"))
	if err != nil {
		t.Fatalf("MarkClass: %v", err)
	}
	if result.Touched != 3 || len(result.Failures) != 0 {
		t.Fatalf("result = %+v, want touched 3, no failures", result)
	}

	want := report.Summary{TotalRecords: 3, PresentCount: 3, AbsentCount: 0, Percentage: 100}
	if got := buildDayReport(t, f.agg).Summary; got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}

func TestEditOneChangesSummary(t *testing.T) {
	// Scenario: flip one of three present marks to absent for the same key.
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.MarkClass(ctx, teacher, "c1", "math", markDay, allPresent("s1", "s2", "s3")); err != nil {
		t.Fatalf("MarkClass: %v", err)
	}
	if _, err := f.engine.MarkOne(ctx, teacher, "s2", "c1", "math", markDay, ledger.StatusAbsent); err != nil {
		t.Fatalf("MarkOne: %v", err)
	}

	if got := f.store.Size("s2"); got != 1 {
		t.Errorf("s2 ledger size after edit = %d, want 1", got)
	}
	want := report.Summary{TotalRecords: 3, PresentCount: 2, AbsentCount: 1, Percentage: 67}
	if got := buildDayReport(t, f.agg).Summary; got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}

func TestMarkClassIdempotentResubmit(t *testing.T) {
	// Scenario: re-running the exact batch leaves state unchanged.
	f := newFixture(t)
	ctx := context.Background()
	batch := allPresent("s1", "s2", "s3")

	for i := 0; i < 2; i++ {
		if _, err := f.engine.MarkClass(ctx, teacher, "c1", "math", markDay, batch); err != nil {
			t.Fatalf("MarkClass run %d: %v", i+1, err)
		}
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		if got := f.store.Size(id); got != 1 {
			t.Errorf("%s ledger size = %d, want 1", id, got)
		}
	}
	want := report.Summary{TotalRecords: 3, PresentCount: 3, AbsentCount: 0, Percentage: 100}
	if got := buildDayReport(t, f.agg).Summary; got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}

func TestMarkClassPartialFailure(t *testing.T) {
	// Scenario: one unknown student mixed into a valid batch.
	f := newFixture(t)
	batch := append(allPresent("s1", "s2"), Entry{StudentID: "ghost", Status: ledger.StatusPresent})

	result, err := f.engine.MarkClass(context.Background(), teacher, "c1", "math", markDay, batch)
	if err != nil {
		t.Fatalf("MarkClass: %v", err)
	}
	if result.Touched != 2 {
		t.Errorf("touched = %d, want 2", result.Touched)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v, want exactly one", result.Failures)
	}
	fail := result.Failures[0]
	if fail.StudentID != "ghost" || fail.Reason != "NotFound" {
		t.Errorf("failure = %+v, want ghost/NotFound", fail)
	}
	if !errors.Is(fail.Err, ledger.ErrNotFound) {
		t.Errorf("failure err = %v, want ErrNotFound", fail.Err)
	}
	// The valid marks persisted.
	for _, id := range []string{"s1", "s2"} {
		if got := f.store.Size(id); got != 1 {
			t.Errorf("%s ledger size = %d, want 1", id, got)
		}
	}
}

func TestMarkClassUnauthorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.MarkClass(context.Background(), student, "c1", "math", markDay, allPresent("s1"))
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
	if got := f.store.Size("s1"); got != 0 {
		t.Errorf("marks written despite unauthorized caller: %d", got)
	}
}

func TestMarkClassPublishesAfterWrite(t *testing.T) {
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer f.hub.Unsubscribe(sub)

	if _, err := f.engine.MarkClass(context.Background(), teacher, "c1", "math", markDay, allPresent("s1", "s2")); err != nil {
		t.Fatalf("MarkClass: %v", err)
	}

	select {
	case evt := <-sub.C:
		if evt.Type != broadcast.TypeMarked || evt.ClassID != "c1" || evt.Count != 2 {
			t.Errorf("event = %+v, want marked/c1/count 2", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestMarkOnePublishesUpdate(t *testing.T) {
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer f.hub.Unsubscribe(sub)

	if _, err := f.engine.MarkOne(context.Background(), teacher, "s1", "c1", "math", markDay, ledger.StatusLeave); err != nil {
		t.Fatalf("MarkOne: %v", err)
	}

	select {
	case evt := <-sub.C:
		if evt.Type != broadcast.TypeUpdated || evt.StudentID != "s1" {
			t.Errorf("event = %+v, want updated/s1", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestMarkClassNoEventWhenNothingTouched(t *testing.T) {
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer f.hub.Unsubscribe(sub)

	batch := []Entry{{StudentID: "ghost", Status: ledger.StatusPresent}}
	if _, err := f.engine.MarkClass(context.Background(), teacher, "c1", "math", markDay, batch); err != nil {
		t.Fatalf("MarkClass: %v", err)
	}

	select {
	case evt := <-sub.C:
		t.Errorf("unexpected event %+v for all-failed batch", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
