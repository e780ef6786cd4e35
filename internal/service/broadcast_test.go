package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSlotFillsToCapacity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		granted, snap, err := env.coord.RequestSlot(ctx, "lobby", fmt.Sprintf("cam-%d", i))
		require.NoError(t, err)
		assert.True(t, granted)
		assert.Equal(t, i+1, snap.Used)
		assert.Equal(t, 12, snap.Capacity)
	}

	granted, snap, err := env.coord.RequestSlot(ctx, "lobby", "cam-overflow")
	require.NoError(t, err)
	assert.False(t, granted, "the thirteenth broadcaster is denied")
	assert.Equal(t, 12, snap.Used)
}

// TestRequestSlotConcurrentAtCap races one more requester than capacity and
// checks the cap holds: the check-and-insert must be a single atomic step.
func TestRequestSlotConcurrentAtCap(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	const contenders = 13
	var wg sync.WaitGroup
	var granted atomic.Int32

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, _, err := env.coord.RequestSlot(ctx, "lobby", fmt.Sprintf("cam-%d", id))
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 12, granted.Load(), "exactly capacity many requesters may win")

	snap, err := env.coord.SlotSnapshot(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 12, snap.Used)
}

func TestRequestSlotIsIdempotentForHolder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)

	granted, snap, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, snap.Used, "re-requesting an own slot does not consume another")
}

func TestRequestSlotMarksPresenceLive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)

	entries, err := env.coord.Presence(ctx, "lobby", "recent")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsLive)
}

func TestStaleSlotsAreReclaimed(t *testing.T) {
	env := newTestEnv(func(c *Config) { c.SlotCapacity = 2 })
	ctx := context.Background()

	_, _, err := env.coord.RequestSlot(ctx, "lobby", "dead-1")
	require.NoError(t, err)
	_, _, err = env.coord.RequestSlot(ctx, "lobby", "dead-2")
	require.NoError(t, err)

	granted, _, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)
	require.False(t, granted, "room is full while occupants are fresh")

	// Both occupants stop heartbeating and fall past the presence TTL.
	env.clock.Advance(31 * time.Second)

	granted, snap, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)
	assert.True(t, granted, "stale occupants must not consume capacity")
	assert.Equal(t, 1, snap.Used)
}

func TestReleaseSlotFreesCapacity(t *testing.T) {
	env := newTestEnv(func(c *Config) { c.SlotCapacity = 1 })
	ctx := context.Background()

	_, _, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)

	granted, _, err := env.coord.RequestSlot(ctx, "lobby", "bob")
	require.NoError(t, err)
	require.False(t, granted)

	require.NoError(t, env.coord.ReleaseSlot(ctx, "lobby", "alice"))

	granted, _, err = env.coord.RequestSlot(ctx, "lobby", "bob")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestSlotSnapshotReflectsReclaim(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.coord.RequestSlot(ctx, "lobby", "alice")
	require.NoError(t, err)

	snap, err := env.coord.SlotSnapshot(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Used)

	env.clock.Advance(31 * time.Second)

	snap, err = env.coord.SlotSnapshot(ctx, "lobby")
	require.NoError(t, err)
	assert.Zero(t, snap.Used)
}
