package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region event

// Event types broadcast by navigation and the companion service.
const (
	EventNavigationStarted   = "navigation_started"
	EventNavigationCompleted = "navigation_completed"
	EventNavigationCancelled = "navigation_cancelled"
	EventAssistantPosition   = "assistant_position"
	EventRoomTransition      = "room_transition"
	EventDoorOpened          = "door_opened"
	EventObjectState         = "object_state"
	EventAssistantState      = "assistant_state"
	EventCouncilDecision     = "council_decision"
)

// Event is one fire-and-forget notification.
type Event struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data map[string]interface{}) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// #endregion event

// #region notifier

// Notifier broadcasts events to external listeners. Implementations must not block
// the caller on slow listeners and never report delivery failures.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// OrNop returns n, or Nop when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}

// #endregion notifier

// #region hub

// Hub delivers events to in-process subscribers over buffered channels.
// A subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped int
	log     *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[int]chan Event), log: log.Named("hub")}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify delivers ev to every subscriber without blocking.
func (h *Hub) Notify(_ context.Context, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("subscriber buffer full, event dropped", zap.Int("subscriber", id), zap.String("type", ev.Type))
		}
	}
}

// Subscribers returns the number of registered listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// #endregion hub
