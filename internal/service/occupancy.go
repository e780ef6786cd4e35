package service

import (
	"context"

	"github.com/ezchat-cam/coordinator/internal/lease"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

func (c *coordinator) Join(ctx context.Context, room, principal string) (lease.Grant, error) {
	if room == "" {
		return lease.Grant{}, ErrMissingRoom
	}
	if principal == "" {
		return lease.Grant{}, ErrMissingUsername
	}

	grant, err := c.roomHold.Acquire(ctx, room, principal)
	if err != nil {
		return lease.Grant{}, err
	}
	if !grant.Granted {
		return grant, nil
	}

	// Record presence immediately so the joiner shows up in listings before
	// its first heartbeat. Best effort.
	if err := c.store.TouchPresence(ctx, room, principal, false, c.now()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence touch on join failed")
	}
	c.publishPresence(ctx, room)

	return grant, nil
}

func (c *coordinator) Heartbeat(ctx context.Context, room, principal string, isLive, holding bool) (lease.Grant, error) {
	if room == "" {
		return lease.Grant{}, ErrMissingRoom
	}
	if principal == "" {
		return lease.Grant{}, ErrMissingUsername
	}

	// Heartbeat failures are try-again-next-tick for the caller, so a failed
	// touch is logged, not returned.
	if err := c.store.TouchPresence(ctx, room, principal, isLive, c.now()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence touch failed")
	}

	if !holding {
		return lease.Grant{Granted: true}, nil
	}

	// A denial here means another principal took the room after our lease
	// went stale; the caller must stop treating itself as the owner.
	return c.roomHold.Refresh(ctx, room, principal)
}

func (c *coordinator) Leave(ctx context.Context, room, principal string) error {
	if room == "" {
		return ErrMissingRoom
	}
	if principal == "" {
		return ErrMissingUsername
	}

	if err := c.roomHold.Release(ctx, room, principal); err != nil {
		return err
	}
	if err := c.store.RemoveSlots(ctx, room, principal); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("slot release on leave failed")
	}

	// Presence is not deleted; the entry expires by TTL.
	c.publishPresence(ctx, room)
	return nil
}

// chatLockName scopes the tab lock to one user's tabs within one room.
func chatLockName(room, username string) string {
	return room + ":" + username
}

func (c *coordinator) AcquireChatLock(ctx context.Context, room, username, tabID string) (lease.Grant, error) {
	if room == "" {
		return lease.Grant{}, ErrMissingRoom
	}
	if username == "" || tabID == "" {
		return lease.Grant{}, ErrMissingUsername
	}
	return c.chatLock.Acquire(ctx, chatLockName(room, username), tabID)
}

func (c *coordinator) RefreshChatLock(ctx context.Context, room, username, tabID string) (lease.Grant, error) {
	if room == "" {
		return lease.Grant{}, ErrMissingRoom
	}
	if username == "" || tabID == "" {
		return lease.Grant{}, ErrMissingUsername
	}
	return c.chatLock.Refresh(ctx, chatLockName(room, username), tabID)
}

func (c *coordinator) ReleaseChatLock(ctx context.Context, room, username, tabID string) error {
	if room == "" {
		return ErrMissingRoom
	}
	if username == "" || tabID == "" {
		return ErrMissingUsername
	}
	return c.chatLock.Release(ctx, chatLockName(room, username), tabID)
}
