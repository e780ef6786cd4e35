package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/store"
)

func TestTouchPresenceIgnoresLateHeartbeat(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.TouchPresence(ctx, "lobby", "alice", true, base))
	// A heartbeat from before the stored entry must not regress it.
	require.NoError(t, s.TouchPresence(ctx, "lobby", "alice", false, base.Add(-10*time.Second)))

	entries, err := s.ListPresence(ctx, "lobby", base.Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsLive, "older touch must not overwrite the live flag")
	assert.Equal(t, base.Unix(), entries[0].LastSeen.Unix())
}

func TestListPresencePrunesAndOrdersByRecency(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.TouchPresence(ctx, "lobby", "old", false, base.Add(-time.Minute)))
	require.NoError(t, s.TouchPresence(ctx, "lobby", "alice", false, base.Add(-20*time.Second)))
	require.NoError(t, s.TouchPresence(ctx, "lobby", "bob", false, base))

	entries, err := s.ListPresence(ctx, "lobby", base.Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 2, "stale entries are pruned, not returned")
	assert.Equal(t, "bob", entries[0].Username)
	assert.Equal(t, "alice", entries[1].Username)
}

func TestListPresenceTreatsCutoffBoundaryAsStale(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.TouchPresence(ctx, "lobby", "boundary", false, base))
	require.NoError(t, s.TouchPresence(ctx, "lobby", "fresh", false, base.Add(time.Millisecond)))

	// An entry aged exactly the TTL is stale, not fresh.
	entries, err := s.ListPresence(ctx, "lobby", base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Username)
}

func TestAddSlotEnforcesCapacity(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.AddSlot(ctx, "lobby", fmt.Sprintf("cam-%d", i), 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := s.AddSlot(ctx, "lobby", "cam-overflow", 3)
	require.NoError(t, err)
	assert.False(t, ok, "a full room must deny admission")

	// Admitting a current member is an idempotent grant, not a new slot.
	ok, err = s.AddSlot(ctx, "lobby", "cam-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.ListSlots(ctx, "lobby")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestRemoveSlotsIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.AddSlot(ctx, "lobby", "alice", 12)
	require.NoError(t, err)

	require.NoError(t, s.RemoveSlots(ctx, "lobby", "alice", "ghost"))
	require.NoError(t, s.RemoveSlots(ctx, "lobby", "alice"))

	members, err := s.ListSlots(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAppendMessageTrimsToRetention(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 7; i++ {
		msg := domain.ChatMessage{
			ID:       fmt.Sprintf("m%d", i),
			Room:     "lobby",
			Username: "alice",
			Text:     fmt.Sprintf("message %d", i),
			Ts:       base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendMessage(ctx, msg, 5))
	}

	msgs, err := s.ListMessages(ctx, "lobby", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5, "the log keeps only the newest retain messages")
	assert.Equal(t, "m2", msgs[0].ID, "oldest messages are evicted first")
	assert.Equal(t, "m6", msgs[4].ID)
}

func TestListMessagesLimitReturnsNewestAscending(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		msg := domain.ChatMessage{
			ID:   fmt.Sprintf("m%d", i),
			Room: "lobby",
			Ts:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendMessage(ctx, msg, 200))
	}

	msgs, err := s.ListMessages(ctx, "lobby", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].ID)
	assert.Equal(t, "m4", msgs[1].ID)
}
