package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/internal/lease"
	"github.com/ezchat-cam/coordinator/internal/repository"
	"github.com/ezchat-cam/coordinator/internal/store"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

// Lease scopes. Two instances of the same leased-mutex pattern: room
// occupancy across clients, chat lock across one user's browser tabs.
const (
	scopeRoomHold = "room"
	scopeChatTab  = "chattab"
)

// Config holds coordination policy. All windows and caps are configured,
// never hard-coded at call sites.
type Config struct {
	PresenceTTL   time.Duration
	RoomLeaseTTL  time.Duration
	ChatLockTTL   time.Duration
	SlotCapacity  int
	ChatRetention int
	MaxMessageLen int
	PageSize      int
	PromotedCap   int
	InstanceID    string
}

type coordinator struct {
	store    store.Store
	profiles repository.RoomProfileRepository
	hub      *hub.Hub
	cfg      Config

	roomHold *lease.Mutex
	chatLock *lease.Mutex

	sf  singleflight.Group
	now func() time.Time
}

// NewCoordinator wires the coordination service over its stores.
func NewCoordinator(s store.Store, profiles repository.RoomProfileRepository, h *hub.Hub, cfg Config) Coordinator {
	return &coordinator{
		store:    s,
		profiles: profiles,
		hub:      h,
		cfg:      cfg,
		roomHold: lease.NewMutex(s, scopeRoomHold, cfg.RoomLeaseTTL),
		chatLock: lease.NewMutex(s, scopeChatTab, cfg.ChatLockTTL),
		now:      time.Now,
	}
}

// withClock overrides the time source for the coordinator and its leases.
// Tests only.
func (c *coordinator) withClock(now func() time.Time) *coordinator {
	c.now = now
	c.roomHold.WithClock(now)
	c.chatLock.WithClock(now)
	return c
}

// presenceCutoff is the oldest last-seen time still considered fresh.
func (c *coordinator) presenceCutoff() time.Time {
	return c.now().Add(-c.cfg.PresenceTTL)
}

// publish delivers an event to local subscribers and fans it out to peer
// instances. Fan-out failures are logged, never surfaced: persistence is the
// caller's hard guarantee, push is best-effort.
func (c *coordinator) publish(ctx context.Context, ev domain.Event) {
	c.hub.Publish(ev.Room, ev)

	env := domain.EventEnvelope{Event: ev, OriginInstanceID: c.cfg.InstanceID}
	if err := c.store.PublishEvent(ctx, env); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, ev.Room).Msg("event fan-out to peers failed")
	}
}

// publishPresence recomputes the room headcount and pushes it to
// subscribers. Called after joins, leaves, and slot transitions; plain
// heartbeats do not generate traffic.
func (c *coordinator) publishPresence(ctx context.Context, room string) {
	entries, err := c.store.ListPresence(ctx, room, c.presenceCutoff())
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence update skipped")
		return
	}

	broadcasting := 0
	for _, e := range entries {
		if e.IsLive {
			broadcasting++
		}
	}

	c.publish(ctx, domain.NewPresenceEvent(domain.PresenceUpdate{
		Room:         room,
		Watching:     len(entries),
		Broadcasting: broadcasting,
	}))
}
