package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ezchat-cam/coordinator/internal/domain"
)

// MemoryProfileRepository is an in-memory RoomProfileRepository for
// single-instance deployments and tests.
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.RoomProfile
}

// NewMemoryProfileRepository creates an empty in-memory repository.
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[string]domain.RoomProfile)}
}

func (r *MemoryProfileRepository) Get(_ context.Context, room string) (*domain.RoomProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[room]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &profile, nil
}

func (r *MemoryProfileRepository) List(_ context.Context) ([]domain.RoomProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]domain.RoomProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Room < profiles[j].Room })
	return profiles, nil
}

func (r *MemoryProfileRepository) Upsert(_ context.Context, profile *domain.RoomProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile.UpdatedAt = time.Now()
	r.profiles[profile.Room] = *profile
	return nil
}

var _ RoomProfileRepository = (*MemoryProfileRepository)(nil)
