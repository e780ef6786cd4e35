package domain

import "time"

// ChatMessage is one entry in a room's append-only message log. Messages are
// never mutated after creation; the log is ordered by Ts ascending and
// truncated to the retention limit.
type ChatMessage struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Ts       time.Time `json:"ts"`
}

// SlotSnapshot reports broadcaster-slot usage for a room.
type SlotSnapshot struct {
	Used     int `json:"used"`
	Capacity int `json:"capacity"`
}
