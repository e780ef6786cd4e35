package hub

import (
	"sync"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

// Hub tracks live subscribers per room and fans events out to them. Publish
// never blocks: a subscriber whose buffer is full has the event dropped and
// keeps its subscription (it is expected to refetch history on gaps).
// Delivery is therefore at-least-once only for subscribers that keep up,
// which matches the transport contract: persistence is the store's job, the
// hub is best-effort push.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// Subscriber is one listener on a room's event stream.
type Subscriber struct {
	room string
	ch   chan domain.Event
}

// C returns the subscriber's delivery channel. It is closed on unsubscribe.
func (s *Subscriber) C() <-chan domain.Event { return s.ch }

// Room returns the room this subscriber listens on.
func (s *Subscriber) Room() string { return s.room }

// New creates an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a listener on room with the given delivery buffer.
// Events published before Subscribe returns are not replayed.
func (h *Hub) Subscribe(room string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscriber{room: room, ch: make(chan domain.Event, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[room] = subs
	}
	subs[sub] = struct{}{}

	return sub
}

// Unsubscribe removes the listener and closes its channel. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[sub.room]
	if !ok {
		return
	}
	if _, member := subs[sub]; !member {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
	close(sub.ch)
}

// Publish delivers ev to every subscriber of room without blocking. Slow
// subscribers lose the event rather than stalling the publisher.
func (h *Hub) Publish(room string, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[room] {
		select {
		case sub.ch <- ev:
		default:
			l := log.L()
			l.Debug().Str(log.FieldRoom, room).Str("event", ev.Name).Msg("subscriber buffer full, event dropped")
		}
	}
}

// SubscriberCount returns the number of live subscribers for room.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
