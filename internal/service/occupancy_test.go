package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezchat-cam/coordinator/internal/domain"
)

func TestJoinGrantsAndRecordsPresence(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.True(t, grant.Granted)

	entries, err := env.coord.Presence(ctx, "alice", domain.OrderRecency)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the joiner is visible before its first heartbeat")
	assert.Equal(t, "alice", entries[0].Username)
	assert.False(t, entries[0].IsLive)
}

func TestJoinDeniedWhileHeld(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)

	grant, err := env.coord.Join(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
	assert.Equal(t, "alice", grant.HeldBy)
}

func TestJoinReclaimsAfterLeaseStaleness(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)

	env.clock.Advance(2*time.Minute + time.Second)

	grant, err := env.coord.Join(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, grant.Granted, "an abandoned room is reclaimable after the lease window")
}

func TestHeartbeatKeepsLeaseAlive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)

	// Regular heartbeats inside the window keep the hold far past the TTL.
	for i := 0; i < 5; i++ {
		env.clock.Advance(time.Minute)
		grant, err := env.coord.Heartbeat(ctx, "alice", "alice", false, true)
		require.NoError(t, err)
		require.True(t, grant.Granted)
	}

	grant, err := env.coord.Join(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
}

func TestHeartbeatReportsSupersession(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)

	env.clock.Advance(2*time.Minute + time.Second)
	_, err = env.coord.Join(ctx, "alice", "bob")
	require.NoError(t, err)

	grant, err := env.coord.Heartbeat(ctx, "alice", "alice", false, true)
	require.NoError(t, err)
	assert.False(t, grant.Granted, "the superseded holder must learn it lost the room")
	assert.Equal(t, "bob", grant.HeldBy)
}

func TestHeartbeatWithoutHoldAlwaysSucceeds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.coord.Heartbeat(ctx, "alice", "viewer", false, false)
	require.NoError(t, err)
	assert.True(t, grant.Granted)

	entries, err := env.coord.Presence(ctx, "alice", domain.OrderRecency)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLeaveFreesRoomAndSlot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.Join(ctx, "alice", "alice")
	require.NoError(t, err)
	_, _, err = env.coord.RequestSlot(ctx, "alice", "alice")
	require.NoError(t, err)

	require.NoError(t, env.coord.Leave(ctx, "alice", "alice"))

	grant, err := env.coord.Join(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, grant.Granted, "a clean leave frees the room immediately")

	snap, err := env.coord.SlotSnapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, snap.Used)
}

func TestChatLockIsPerUserScope(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-1")
	require.NoError(t, err)
	require.True(t, grant.Granted)

	// A second tab of the same user is locked out.
	grant, err = env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-2")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
	assert.Equal(t, "tab-1", grant.HeldBy)

	// Another user's tab is an independent lock.
	grant, err = env.coord.AcquireChatLock(ctx, "lobby", "bob", "tab-9")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}

func TestChatLockStalenessIsShort(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-1")
	require.NoError(t, err)

	env.clock.Advance(16 * time.Second)

	grant, err := env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-2")
	require.NoError(t, err)
	assert.True(t, grant.Granted, "a closed tab's lock frees after its short TTL")
}

func TestReleaseChatLockHandsOver(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-1")
	require.NoError(t, err)
	require.NoError(t, env.coord.ReleaseChatLock(ctx, "lobby", "alice", "tab-1"))

	grant, err := env.coord.AcquireChatLock(ctx, "lobby", "alice", "tab-2")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}
