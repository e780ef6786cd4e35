package domain

import "time"

// RoomProfile is the externally-owned metadata for a room. The coordinator
// treats description and avatar as opaque strings; it only reads them for the
// directory projection.
type RoomProfile struct {
	Room        string    `json:"room"`
	Description string    `json:"description,omitempty"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	Promoted    bool      `json:"promoted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DirectorySummary is the derived, read-only per-room view shown in the
// directory listing. It is recomputed from the presence and slot stores plus
// profile metadata on every snapshot; it is never a source of truth.
type DirectorySummary struct {
	Room             string    `json:"room"`
	IsLive           bool      `json:"is_live"`
	Promoted         bool      `json:"promoted"`
	WatchingCount    int       `json:"watching_count"`
	BroadcasterCount int       `json:"broadcaster_count"`
	Description      string    `json:"description,omitempty"`
	AvatarRef        string    `json:"avatar_ref,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
}

// DirectoryPage is one page of the directory snapshot. Promoted rooms are
// listed separately and never appear in the general pages.
type DirectoryPage struct {
	Promoted   []DirectorySummary `json:"promoted"`
	Rooms      []DirectorySummary `json:"rooms"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}
