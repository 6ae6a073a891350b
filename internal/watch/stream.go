package watch

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"schoolattend/internal/broadcast"
)

// Stream maintains a websocket subscription to the API's event endpoint,
// reconnecting with backoff. A fresh subscription misses events published
// while disconnected; the Watcher's polling covers that gap.
type Stream struct {
	URL     string
	Token   string
	Backoff Backoff
}

// Run dials and reads events until ctx is cancelled, delivering them on
// the returned channel. The channel closes when Run exits.
func (s *Stream) Run(ctx context.Context) <-chan broadcast.Event {
	out := make(chan broadcast.Event)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.readLoop(ctx, out); err != nil {
				delay := s.Backoff.Next()
				log.Printf("event stream disconnected: %v, retrying in %s", err, delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *Stream) readLoop(ctx context.Context, out chan<- broadcast.Event) error {
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.Backoff.Reset()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var evt broadcast.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
