package domain

import "time"

// PresenceOrder selects the ordering of a presence listing.
type PresenceOrder string

const (
	// OrderRecency orders entries by last-seen time, most recent first.
	OrderRecency PresenceOrder = "recent"
	// OrderAlpha orders entries by username, ascending. Used where a stable
	// listing is needed (member rosters).
	OrderAlpha PresenceOrder = "alpha"
)

// PresenceEntry is one user's presence in a room. Usernames are case-folded
// identity keys; at most one entry exists per (room, username). An entry is
// never deleted explicitly - it goes stale once its last-seen time falls
// behind the presence TTL and is filtered out (and lazily pruned) at read
// time.
type PresenceEntry struct {
	Room     string    `json:"room"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"last_seen"`
	IsLive   bool      `json:"is_live"`
}

// PresenceUpdate is the derived per-room headcount pushed to subscribers when
// presence facts change.
type PresenceUpdate struct {
	Room         string `json:"room"`
	Watching     int    `json:"watching"`
	Broadcasting int    `json:"broadcasting"`
}
