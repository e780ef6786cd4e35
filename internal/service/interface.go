package service

import (
	"context"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/lease"
)

// Coordinator is the room coordination service: presence tracking,
// occupancy leasing, broadcaster-slot admission, chat fan-out, and the
// directory projection. It owns all coordination state; callers never
// touch the stores directly.
type Coordinator interface {
	// Touch upserts the caller's presence. Best-effort heartbeat semantics:
	// callers treat failures as try-again-next-tick.
	Touch(ctx context.Context, room, username string, isLive bool) error

	// Presence lists non-stale entries in the requested order.
	Presence(ctx context.Context, room string, order domain.PresenceOrder) ([]domain.PresenceEntry, error)

	// Join acquires the room occupancy lease for principal and records
	// initial presence. A denial reports the current holder.
	Join(ctx context.Context, room, principal string) (lease.Grant, error)

	// Heartbeat touches presence and, when holding is set, refreshes the
	// occupancy lease. A denied refresh means the caller was superseded.
	Heartbeat(ctx context.Context, room, principal string, isLive, holding bool) (lease.Grant, error)

	// Leave releases the occupancy lease and any broadcast slot. Presence is
	// left to expire by TTL.
	Leave(ctx context.Context, room, principal string) error

	// Chat-tab lock: the same leased-mutex pattern at per-tab scope, used so
	// only one of a user's browser tabs chats in a room at a time. The lock is
	// keyed by room and username; the holder is the tab id.
	AcquireChatLock(ctx context.Context, room, username, tabID string) (lease.Grant, error)
	RefreshChatLock(ctx context.Context, room, username, tabID string) (lease.Grant, error)
	ReleaseChatLock(ctx context.Context, room, username, tabID string) error

	// RequestSlot admits principal as a broadcaster unless the room is at
	// capacity. Granted is false when full; the snapshot reflects post-call
	// usage either way.
	RequestSlot(ctx context.Context, room, principal string) (granted bool, snap domain.SlotSnapshot, err error)

	// ReleaseSlot removes principal's broadcast slot. Idempotent.
	ReleaseSlot(ctx context.Context, room, principal string) error

	// SlotSnapshot reports slot usage after reclaiming stale occupants.
	SlotSnapshot(ctx context.Context, room string) (domain.SlotSnapshot, error)

	// Send validates, persists, and fans out a chat message. Persistence is
	// the only hard guarantee; per-subscriber delivery is best-effort.
	Send(ctx context.Context, room, username, text, clientID string) (domain.ChatMessage, error)

	// History returns the newest limit messages, ascending by timestamp.
	History(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)

	// Directory returns one page of the room directory projection.
	Directory(ctx context.Context, page int) (domain.DirectoryPage, error)

	// UpdateProfile upserts the owner's room metadata.
	UpdateProfile(ctx context.Context, room, owner, description, avatarRef string) (domain.RoomProfile, error)
}
