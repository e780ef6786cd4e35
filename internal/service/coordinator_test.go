package service

import (
	"sync"
	"time"

	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/internal/repository"
	"github.com/ezchat-cam/coordinator/internal/store"
)

// testClock is a manually advanced time source shared by the coordinator and
// its leases.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	coord    *coordinator
	clock    *testClock
	store    *store.MemoryStore
	profiles *repository.MemoryProfileRepository
	hub      *hub.Hub
}

func testConfig() Config {
	return Config{
		PresenceTTL:   30 * time.Second,
		RoomLeaseTTL:  2 * time.Minute,
		ChatLockTTL:   15 * time.Second,
		SlotCapacity:  12,
		ChatRetention: 200,
		MaxMessageLen: 500,
		PageSize:      20,
		PromotedCap:   5,
		InstanceID:    "test-instance",
	}
}

func newTestEnv(mutate ...func(*Config)) *testEnv {
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	st := store.NewMemoryStore()
	profiles := repository.NewMemoryProfileRepository()
	h := hub.New()
	clock := newTestClock()

	c := NewCoordinator(st, profiles, h, cfg).(*coordinator)
	c.withClock(clock.Now)

	return &testEnv{coord: c, clock: clock, store: st, profiles: profiles, hub: h}
}
