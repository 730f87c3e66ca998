// Package eventfeed broadcasts console command-started events to WebSocket
// subscribers. The feed is strictly passive: slow or absent subscribers
// drop events and never block the session driving the console.
package eventfeed

import (
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const subscriberBuffer = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one command dispatched to the console.
type Event struct {
	Command string    `json:"command"`
	At      time.Time `json:"at"`
}

// Feed fans command-started events out to WebSocket subscribers.
type Feed struct {
	log *slog.Logger

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// New creates an empty feed.
func New(log *slog.Logger) *Feed {
	return &Feed{
		log:         log.With("component", "event_feed"),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish fans an event out to all current subscribers without blocking.
func (f *Feed) Publish(command string) {
	ev := Event{Command: command, At: time.Now().UTC()}

	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber, drop the event
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	unsub := func() {
		f.mu.Lock()
		delete(f.subscribers, ch)
		f.mu.Unlock()
	}

	return ch, unsub
}

// Run pumps session events into the feed until the sequence ends.
func (f *Feed) Run(events iter.Seq[string]) {
	for text := range events {
		f.Publish(text)
	}
}

// ServeHTTP upgrades the request and streams events to the client as JSON
// text messages until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("WebSocket upgrade failed", "error", err)

		return
	}
	defer conn.Close()

	f.log.Debug("Feed subscriber connected", "remote", r.RemoteAddr)

	events, unsub := f.Subscribe()
	defer unsub()

	done := make(chan struct{})

	// Drain client frames to observe disconnection.
	go func() {
		defer close(done)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				f.log.Debug("Feed write failed", "remote", r.RemoteAddr, "error", err)

				return
			}

		case <-done:
			f.log.Debug("Feed subscriber disconnected", "remote", r.RemoteAddr)

			return

		case <-r.Context().Done():
			return
		}
	}
}
