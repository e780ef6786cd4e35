package service

import (
	"context"
	"sort"

	"github.com/ezchat-cam/coordinator/internal/domain"
)

func (c *coordinator) Touch(ctx context.Context, room, username string, isLive bool) error {
	if room == "" {
		return ErrMissingRoom
	}
	if username == "" {
		return ErrMissingUsername
	}

	return c.store.TouchPresence(ctx, room, username, isLive, c.now())
}

func (c *coordinator) Presence(ctx context.Context, room string, order domain.PresenceOrder) ([]domain.PresenceEntry, error) {
	if room == "" {
		return nil, ErrMissingRoom
	}

	// The store returns recency order; staleness pruning happens there.
	entries, err := c.store.ListPresence(ctx, room, c.presenceCutoff())
	if err != nil {
		return nil, err
	}

	if order == domain.OrderAlpha {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Username < entries[j].Username
		})
	}

	return entries, nil
}
