// Package broadcast fans out attendance mutation notifications to live
// subscribers. Delivery is best effort: no ordering, no replay, and a slow
// subscriber only loses its own events. Consumers must poll the
// authoritative store regardless; events exist to cut latency.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMarked  = "marked"
	TypeUpdated = "updated"
)

// Event announces that marks changed. It carries no mark payload; viewers
// refetch from the authoritative store.
type Event struct {
	Type      string    `json:"type"`
	ClassID   string    `json:"class_id"`
	Date      time.Time `json:"date"`
	StudentID string    `json:"student_id,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Subscriber receives events on C until Unsubscribe closes it.
type Subscriber struct {
	ID string
	C  chan Event
}

// Bus is the abstraction over broadcast backends.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe() *Subscriber
	Unsubscribe(sub *Subscriber)
}

// Hub is the in-process fan-out backend.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	buffer  int
	dropped func() // metric hook, may be nil
}

// NewHub creates a hub whose subscribers buffer up to buffer events each.
func NewHub(buffer int, onDrop func()) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:    make(map[string]*Subscriber),
		buffer:  buffer,
		dropped: onDrop,
	}
}

// Subscribe registers a new subscriber. A subscriber that connects after an
// event was published never sees it.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.NewString(),
		C:  make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		close(sub.C)
	}
	h.mu.Unlock()
}

// Publish delivers to every subscriber without blocking. A full buffer
// drops the event for that subscriber only.
func (h *Hub) Publish(ctx context.Context, evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.C <- evt:
		default:
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
	return nil
}

// Len returns the live subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
