package service

import (
	"context"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

func (c *coordinator) RequestSlot(ctx context.Context, room, principal string) (bool, domain.SlotSnapshot, error) {
	if room == "" {
		return false, domain.SlotSnapshot{}, ErrMissingRoom
	}
	if principal == "" {
		return false, domain.SlotSnapshot{}, ErrMissingUsername
	}

	// Reclaim stale occupants first so a room full of dead broadcasters does
	// not stay full forever.
	occupants, err := c.reclaimSlots(ctx, room)
	if err != nil {
		return false, domain.SlotSnapshot{}, err
	}

	granted, err := c.store.AddSlot(ctx, room, principal, c.cfg.SlotCapacity)
	if err != nil {
		return false, domain.SlotSnapshot{}, err
	}

	used := len(occupants)
	if granted {
		// Requesting a slot implies the camera is on.
		if err := c.store.TouchPresence(ctx, room, principal, true, c.now()); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence touch on slot grant failed")
		}
		if !contains(occupants, principal) {
			used++
		}
		c.publishPresence(ctx, room)
	}

	return granted, domain.SlotSnapshot{Used: used, Capacity: c.cfg.SlotCapacity}, nil
}

func (c *coordinator) ReleaseSlot(ctx context.Context, room, principal string) error {
	if room == "" {
		return ErrMissingRoom
	}
	if principal == "" {
		return ErrMissingUsername
	}

	if err := c.store.RemoveSlots(ctx, room, principal); err != nil {
		return err
	}
	if err := c.store.TouchPresence(ctx, room, principal, false, c.now()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence touch on slot release failed")
	}

	c.publishPresence(ctx, room)
	return nil
}

func (c *coordinator) SlotSnapshot(ctx context.Context, room string) (domain.SlotSnapshot, error) {
	if room == "" {
		return domain.SlotSnapshot{}, ErrMissingRoom
	}

	occupants, err := c.reclaimSlots(ctx, room)
	if err != nil {
		return domain.SlotSnapshot{}, err
	}

	return domain.SlotSnapshot{Used: len(occupants), Capacity: c.cfg.SlotCapacity}, nil
}

// reclaimSlots garbage-collects occupants whose presence has gone stale and
// returns the remaining occupant set. A crashed broadcaster never consumes
// capacity for longer than the presence TTL.
func (c *coordinator) reclaimSlots(ctx context.Context, room string) ([]string, error) {
	occupants, err := c.store.ListSlots(ctx, room)
	if err != nil {
		return nil, err
	}
	if len(occupants) == 0 {
		return occupants, nil
	}

	entries, err := c.store.ListPresence(ctx, room, c.presenceCutoff())
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]bool, len(entries))
	for _, e := range entries {
		fresh[e.Username] = true
	}

	var stale []string
	kept := occupants[:0]
	for _, member := range occupants {
		if fresh[member] {
			kept = append(kept, member)
		} else {
			stale = append(stale, member)
		}
	}

	if len(stale) > 0 {
		if err := c.store.RemoveSlots(ctx, room, stale...); err != nil {
			return nil, err
		}
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoom, room).Int("reclaimed", len(stale)).Msg("stale broadcast slots reclaimed")
	}

	return kept, nil
}

func contains(members []string, m string) bool {
	for _, member := range members {
		if member == m {
			return true
		}
	}
	return false
}
