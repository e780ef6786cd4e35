package service

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/repository"
)

// directoryFanout bounds concurrent per-room store reads during a snapshot.
const directoryFanout = 8

func (c *coordinator) Directory(ctx context.Context, page int) (domain.DirectoryPage, error) {
	if page < 1 {
		page = 1
	}

	// Concurrent directory loads collapse into one recomputation; the result
	// is a pure function of current store state, so sharing it is safe. The
	// build detaches from the caller's cancellation: the first caller hanging
	// up must not fail every collapsed request.
	v, err, _ := c.sf.Do("directory", func() (interface{}, error) {
		return c.buildDirectory(context.WithoutCancel(ctx))
	})
	if err != nil {
		return domain.DirectoryPage{}, err
	}
	summaries := v.([]domain.DirectorySummary)

	// Promoted rooms are listed apart from the general pages, capped; any
	// promoted room over the cap falls back to the general listing.
	var promoted, general []domain.DirectorySummary
	for _, s := range summaries {
		if s.Promoted && len(promoted) < c.cfg.PromotedCap {
			promoted = append(promoted, s)
		} else {
			general = append(general, s)
		}
	}

	totalPages := (len(general) + c.cfg.PageSize - 1) / c.cfg.PageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * c.cfg.PageSize
	end := start + c.cfg.PageSize
	if start > len(general) {
		start = len(general)
	}
	if end > len(general) {
		end = len(general)
	}

	return domain.DirectoryPage{
		Promoted:   promoted,
		Rooms:      general[start:end],
		Page:       page,
		PageSize:   c.cfg.PageSize,
		TotalPages: totalPages,
	}, nil
}

// buildDirectory projects every registered room into a summary. Each room's
// presence and slot reads fan out on a bounded errgroup; the profile
// repository is the authoritative room registry.
func (c *coordinator) buildDirectory(ctx context.Context) ([]domain.DirectorySummary, error) {
	profiles, err := c.profiles.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.DirectorySummary, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(directoryFanout)
	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			summary, err := c.summarizeRoom(gctx, profile)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Live rooms first, then busiest, then most recently seen.
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.IsLive != b.IsLive {
			return a.IsLive
		}
		if a.WatchingCount != b.WatchingCount {
			return a.WatchingCount > b.WatchingCount
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.Room < b.Room
	})

	return summaries, nil
}

func (c *coordinator) summarizeRoom(ctx context.Context, profile domain.RoomProfile) (domain.DirectorySummary, error) {
	entries, err := c.store.ListPresence(ctx, profile.Room, c.presenceCutoff())
	if err != nil {
		return domain.DirectorySummary{}, err
	}

	occupants, err := c.reclaimSlots(ctx, profile.Room)
	if err != nil {
		return domain.DirectorySummary{}, err
	}

	summary := domain.DirectorySummary{
		Room:             profile.Room,
		Promoted:         profile.Promoted,
		WatchingCount:    len(entries),
		BroadcasterCount: len(occupants),
		Description:      profile.Description,
		AvatarRef:        profile.AvatarRef,
		LastSeen:         profile.UpdatedAt,
	}

	for _, e := range entries {
		if e.IsLive {
			summary.IsLive = true
		}
		if e.LastSeen.After(summary.LastSeen) {
			summary.LastSeen = e.LastSeen
		}
	}

	return summary, nil
}

func (c *coordinator) UpdateProfile(ctx context.Context, room, owner, description, avatarRef string) (domain.RoomProfile, error) {
	if room == "" {
		return domain.RoomProfile{}, ErrMissingRoom
	}
	if owner == "" {
		return domain.RoomProfile{}, ErrMissingUsername
	}
	// Rooms are keyed by their owner's username.
	if room != owner {
		return domain.RoomProfile{}, ErrNotRoomOwner
	}

	// The promoted flag is operator-managed; the owner upsert keeps it. A
	// transient read failure must abort the upsert, not clear the flag.
	promoted := false
	existing, err := c.profiles.Get(ctx, room)
	switch {
	case err == nil:
		promoted = existing.Promoted
	case !errors.Is(err, repository.ErrProfileNotFound):
		return domain.RoomProfile{}, err
	}

	profile := domain.RoomProfile{
		Room:        room,
		Description: description,
		AvatarRef:   avatarRef,
		Promoted:    promoted,
	}
	if err := c.profiles.Upsert(ctx, &profile); err != nil {
		return domain.RoomProfile{}, err
	}

	return profile, nil
}
