package notify

import (
	"errors"
	"sync"

	"coin_exchange/internal/metrics"
)

// ErrHubClosed is returned by Register after Close.
var ErrHubClosed = errors.New("notify: hub closed")

// Event is one push message for a connected client.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Deliverer forwards an event to whatever push channel the user holds.
// Delivery is best effort: false means the event was not handed over.
type Deliverer interface {
	Deliver(userID uint, ev Event) bool
}

// Listener is one user's registered push channel. Its owner is the only
// goroutine that reads Events and writes to the client connection.
type Listener struct {
	UserID uint
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the channel of pending events.
func (l *Listener) Events() <-chan Event { return l.events }

// Done is closed when the listener is unregistered, replaced or the hub shuts down.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// Hub is the process-wide registry of push listeners, one per user.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint]*Listener
	buffer    int
	closed    bool
}

// NewHub creates an empty registry. Each listener buffers up to buffer events
// before further events for it are dropped.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{listeners: make(map[uint]*Listener), buffer: buffer}
}

// Register opens a push channel for the user. A newer registration replaces
// the previous one, whose Done channel is closed.
func (h *Hub) Register(userID uint) (*Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if old, ok := h.listeners[userID]; ok {
		old.stop()
	}
	l := &Listener{
		UserID: userID,
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}
	h.listeners[userID] = l
	metrics.SetListeners(len(h.listeners))
	return l, nil
}

// Unregister removes the listener if it is still the user's current one.
func (h *Hub) Unregister(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.listeners[l.UserID]; ok && cur == l {
		delete(h.listeners, l.UserID)
	}
	l.stop()
	metrics.SetListeners(len(h.listeners))
}

// Deliver hands ev to the user's listener without blocking.
func (h *Hub) Deliver(userID uint, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.listeners[userID]
	if !ok {
		metrics.RecordPush("offline")
		return false
	}
	select {
	case <-l.done:
		metrics.RecordPush("offline")
		return false
	default:
	}
	select {
	case l.events <- ev:
		metrics.RecordPush("delivered")
		return true
	default:
		metrics.RecordPush("dropped")
		return false
	}
}

// Connected reports whether the user holds a registration.
func (h *Hub) Connected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.listeners[userID]
	return ok
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close stops every listener and refuses further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, l := range h.listeners {
		l.stop()
		delete(h.listeners, id)
	}
	h.closed = true
	metrics.SetListeners(0)
}
