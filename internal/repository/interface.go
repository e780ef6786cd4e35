package repository

import (
	"context"
	"errors"

	"github.com/ezchat-cam/coordinator/internal/domain"
)

// ErrProfileNotFound is returned when a room has no profile row.
var ErrProfileNotFound = errors.New("room profile not found")

// RoomProfileRepository reads and writes the collaborator-owned room
// metadata (description, avatar reference, promoted flag). The coordinator
// consumes it read-mostly for the directory projection; the only write path
// is the owner's profile upsert.
type RoomProfileRepository interface {
	Get(ctx context.Context, room string) (*domain.RoomProfile, error)
	List(ctx context.Context) ([]domain.RoomProfile, error)
	Upsert(ctx context.Context, profile *domain.RoomProfile) error
}
