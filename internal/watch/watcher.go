// Package watch implements the consumer side of the consistency contract:
// poll the authoritative report on a fixed interval, and refetch early,
// debounced, when a broadcast event arrives. Events never replace polling;
// they only cut latency.
package watch

import (
	"context"
	"log"
	"time"

	"schoolattend/internal/broadcast"
)

// Watcher drives a report-consuming view.
type Watcher struct {
	// Fetch re-queries the authoritative source. It must be idempotent.
	Fetch func(ctx context.Context) error

	// Events is the best-effort push channel. May be nil; polling alone
	// still converges.
	Events <-chan broadcast.Event

	// Relevant filters events to the view currently displayed. Nil means
	// every event triggers a refetch.
	Relevant func(broadcast.Event) bool

	// Interval is the polling period, the guaranteed-convergence path.
	Interval time.Duration

	// Debounce coalesces bursts of events into one refetch.
	Debounce time.Duration
}

// Run polls until ctx is cancelled. Fetch errors are logged and the loop
// continues; the next tick retries.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 5 * time.Second
	}
	if w.Debounce <= 0 {
		w.Debounce = 300 * time.Millisecond
	}

	w.fetch(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			w.fetch(ctx)

		case evt, ok := <-w.Events:
			if !ok {
				// Stream gone; polling carries on alone.
				w.Events = nil
				continue
			}
			if w.Relevant != nil && !w.Relevant(evt) {
				continue
			}
			if armed && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(w.Debounce)
			armed = true

		case <-debounce.C:
			armed = false
			w.fetch(ctx)
		}
	}
}

func (w *Watcher) fetch(ctx context.Context) {
	if w.Fetch == nil {
		return
	}
	if err := w.Fetch(ctx); err != nil {
		log.Printf("watch fetch failed: %v", err)
	}
}
