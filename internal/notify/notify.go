package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Event is one progress notification for a document run. Progress is
// informational, not authoritative: the document row is the source of truth.
type Event struct {
	DocumentID uuid.UUID `json:"document_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
}

// Publisher delivers events to a user, best effort. Implementations may drop
// events silently; publishing must never block or fail the caller.
type Publisher interface {
	Publish(userID uuid.UUID, event Event)
}

// Hub is an in-process Publisher fanning events out to per-user subscribers
// over buffered channels. A subscriber that cannot keep up loses events
// rather than slowing the pipeline down.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe registers a channel for the user's events. The returned cancel
// function unregisters and closes it.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends the event to every subscriber of the user without blocking.
func (h *Hub) Publish(userID uuid.UUID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- event:
		default:
			// subscriber is behind, drop
		}
	}
}

// Discard is a Publisher that drops everything. Useful in tests and tools.
type Discard struct{}

func (Discard) Publish(uuid.UUID, Event) {}
