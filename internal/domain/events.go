package domain

// Event names on the push stream. The stream always opens with a synthetic
// ready event; each delivered chat message produces one message event.
const (
	EventReady    = "ready"
	EventMessage  = "message"
	EventPresence = "presence"
)

// Event is one frame on a room's push stream.
type Event struct {
	Name     string          `json:"name"`
	Room     string          `json:"room"`
	Message  *ChatMessage    `json:"message,omitempty"`
	Presence *PresenceUpdate `json:"presence,omitempty"`
}

// Data returns the frame payload serialised under the event name.
func (e Event) Data() interface{} {
	switch e.Name {
	case EventMessage:
		return e.Message
	case EventPresence:
		return e.Presence
	default:
		return map[string]string{"room": e.Room}
	}
}

// EventEnvelope wraps an Event for cross-instance pub/sub. The origin
// instance id lets subscribers skip events they already delivered locally.
type EventEnvelope struct {
	Event
	OriginInstanceID string `json:"origin_instance_id,omitempty"`
}

// NewMessageEvent builds a message event frame.
func NewMessageEvent(msg ChatMessage) Event {
	return Event{Name: EventMessage, Room: msg.Room, Message: &msg}
}

// NewPresenceEvent builds a presence event frame.
func NewPresenceEvent(update PresenceUpdate) Event {
	return Event{Name: EventPresence, Room: update.Room, Presence: &update}
}
