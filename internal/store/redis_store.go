package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/lease"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	EventChannel string // pub/sub channel for cross-instance events
}

// redisStore implements Store on Redis. Per-key atomicity comes from Lua
// scripts (leases, slot admission) and single commands (presence, chat log),
// so concurrent requests for the same room serialise inside Redis.
//
// Key layout:
//
//	coord:presence:{room}        ZSET  username -> last-seen unix millis
//	coord:presence:{room}:live   SET   usernames currently flagged live
//	coord:lease:{scope}:{room}   HASH  holder, acquired_at (millis)
//	coord:slots:{room}           SET   broadcaster principals
//	coord:chat:{room}            LIST  JSON messages, oldest first, trimmed
type redisStore struct {
	client       *redis.Client
	eventChannel string
}

// NewRedisStore connects to Redis and returns a Store backed by it.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.EventChannel
	if channel == "" {
		channel = "coord:events"
	}

	return &redisStore{client: client, eventChannel: channel}, nil
}

func presenceKey(room string) string     { return "coord:presence:" + room }
func presenceLiveKey(room string) string { return "coord:presence:" + room + ":live" }
func slotsKey(room string) string        { return "coord:slots:" + room }
func chatKey(room string) string         { return "coord:chat:" + room }
func leaseKey(scoped string) string      { return "coord:lease:" + scoped }

// touchScript upserts a presence entry. ZADD GT keeps the stored score when
// the incoming one is older, which makes late out-of-order heartbeats no-ops.
var touchScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], 'GT', ARGV[1], ARGV[2])
if ARGV[3] == '1' then
  redis.call('SADD', KEYS[2], ARGV[2])
else
  redis.call('SREM', KEYS[2], ARGV[2])
end
return 1
`)

// acquireScript grants the lease when the key is unheld, held by the same
// holder, or stale. The decision and the write are one atomic script.
var acquireScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder')
local at = tonumber(redis.call('HGET', KEYS[1], 'acquired_at') or '0')
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
if (not holder) or holder == ARGV[1] or (now - at) >= ttl then
  redis.call('HSET', KEYS[1], 'holder', ARGV[1], 'acquired_at', now)
  redis.call('PEXPIRE', KEYS[1], ttl * 2)
  return {1, ARGV[1], now}
end
return {0, holder, at}
`)

var refreshScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder')
local at = tonumber(redis.call('HGET', KEYS[1], 'acquired_at') or '0')
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
if holder == ARGV[1] and (now - at) < ttl then
  redis.call('HSET', KEYS[1], 'acquired_at', now)
  redis.call('PEXPIRE', KEYS[1], ttl * 2)
  return {1, ARGV[1], now}
end
if not holder then
  return {0, '', 0}
end
return {0, holder, at}
`)

var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// slotScript admits a member iff the set is below capacity. Membership is an
// idempotent grant.
var slotScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return 1
end
if redis.call('SCARD', KEYS[1]) < tonumber(ARGV[2]) then
  redis.call('SADD', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

func (s *redisStore) TouchPresence(ctx context.Context, room, username string, isLive bool, now time.Time) error {
	live := "0"
	if isLive {
		live = "1"
	}
	return touchScript.Run(ctx, s.client,
		[]string{presenceKey(room), presenceLiveKey(room)},
		now.UnixMilli(), username, live,
	).Err()
}

func (s *redisStore) ListPresence(ctx context.Context, room string, cutoff time.Time) ([]domain.PresenceEntry, error) {
	pipe := s.client.TxPipeline()
	// Inclusive upper bound: an entry aged exactly the TTL is already stale.
	pipe.ZRemRangeByScore(ctx, presenceKey(room), "-inf", strconv.FormatInt(cutoff.UnixMilli(), 10))
	membersCmd := pipe.ZRevRangeWithScores(ctx, presenceKey(room), 0, -1)
	liveCmd := pipe.SMembers(ctx, presenceLiveKey(room))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(liveCmd.Val()))
	for _, m := range liveCmd.Val() {
		live[m] = true
	}

	members := membersCmd.Val()
	entries := make([]domain.PresenceEntry, 0, len(members))
	fresh := make(map[string]bool, len(members))
	for _, z := range members {
		username, ok := z.Member.(string)
		if !ok {
			continue
		}
		fresh[username] = true
		entries = append(entries, domain.PresenceEntry{
			Room:     room,
			Username: username,
			LastSeen: time.UnixMilli(int64(z.Score)),
			IsLive:   live[username],
		})
	}

	// Drop live flags whose presence entry has been pruned. Best effort.
	var stale []interface{}
	for m := range live {
		if !fresh[m] {
			stale = append(stale, m)
		}
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, presenceLiveKey(room), stale...)
	}

	return entries, nil
}

func (s *redisStore) AcquireLease(ctx context.Context, key, holder string, now time.Time, ttl time.Duration) (lease.Grant, error) {
	res, err := acquireScript.Run(ctx, s.client,
		[]string{leaseKey(key)},
		holder, now.UnixMilli(), ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return lease.Grant{}, err
	}
	return parseGrant(res)
}

func (s *redisStore) RefreshLease(ctx context.Context, key, holder string, now time.Time, ttl time.Duration) (lease.Grant, error) {
	res, err := refreshScript.Run(ctx, s.client,
		[]string{leaseKey(key)},
		holder, now.UnixMilli(), ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return lease.Grant{}, err
	}
	return parseGrant(res)
}

func (s *redisStore) ReleaseLease(ctx context.Context, key, holder string) error {
	return releaseScript.Run(ctx, s.client, []string{leaseKey(key)}, holder).Err()
}

func parseGrant(res []interface{}) (lease.Grant, error) {
	if len(res) != 3 {
		return lease.Grant{}, fmt.Errorf("unexpected lease script reply: %v", res)
	}

	granted, _ := res[0].(int64)
	holder, _ := res[1].(string)
	at, _ := res[2].(int64)

	g := lease.Grant{Granted: granted == 1, HeldBy: holder}
	if at > 0 {
		g.AcquiredAt = time.UnixMilli(at)
	}
	return g, nil
}

func (s *redisStore) AddSlot(ctx context.Context, room, member string, capacity int) (bool, error) {
	res, err := slotScript.Run(ctx, s.client, []string{slotsKey(room)}, member, capacity).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *redisStore) RemoveSlots(ctx context.Context, room string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, slotsKey(room), args...).Err()
}

func (s *redisStore) ListSlots(ctx context.Context, room string) ([]string, error) {
	return s.client.SMembers(ctx, slotsKey(room)).Result()
}

func (s *redisStore) AppendMessage(ctx context.Context, msg domain.ChatMessage, retain int) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, chatKey(msg.Room), data)
	pipe.LTrim(ctx, chatKey(msg.Room), int64(-retain), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListMessages(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	raw, err := s.client.LRange(ctx, chatKey(room), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *redisStore) PublishEvent(ctx context.Context, env domain.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.eventChannel, data).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*redisStore)(nil)
