package store

import (
	"context"
	"time"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/lease"
)

// Store is the coordination state backend. All mutating operations are atomic
// per key: two concurrent requests for the same room must serialise at the
// store, never in caller code. No operation takes a lock that spans rooms.
//
// Two implementations exist: Redis for shared multi-instance deployments and
// an in-memory store for single-instance and test use.
type Store interface {
	lease.KV

	// TouchPresence upserts a presence entry with the given last-seen time.
	// Last write by timestamp wins: a touch older than the stored entry must
	// not regress it (late heartbeats arriving out of order are no-ops).
	TouchPresence(ctx context.Context, room, username string, isLive bool, now time.Time) error

	// ListPresence returns entries seen strictly after cutoff, ordered by
	// last-seen descending. Entries at or before cutoff are stale: they are
	// pruned as a side effect and never returned.
	ListPresence(ctx context.Context, room string, cutoff time.Time) ([]domain.PresenceEntry, error)

	// AddSlot admits member to the room's broadcaster set iff the set holds
	// fewer than capacity members. Adding a current member is an idempotent
	// grant. The capacity check and insert are a single atomic step.
	AddSlot(ctx context.Context, room, member string, capacity int) (bool, error)

	// RemoveSlots removes members from the broadcaster set. Idempotent.
	RemoveSlots(ctx context.Context, room string, members ...string) error

	// ListSlots returns the current broadcaster set.
	ListSlots(ctx context.Context, room string) ([]string, error)

	// AppendMessage appends msg to the room log and trims it to the newest
	// retain entries.
	AppendMessage(ctx context.Context, msg domain.ChatMessage, retain int) error

	// ListMessages returns the newest limit messages, ascending by timestamp.
	ListMessages(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)

	// PublishEvent fans an event out to peer instances. Single-instance
	// backends may treat this as a no-op; local delivery is the caller's job.
	PublishEvent(ctx context.Context, env domain.EventEnvelope) error

	// Close releases backend connections.
	Close() error
}
