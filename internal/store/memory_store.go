package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/lease"
)

// MemoryStore is an in-memory Store. Suitable for single-instance
// deployments and tests; atomicity comes from a store-wide mutex, which is
// acceptable at that scale (the Redis store is the horizontally scalable
// path).
type MemoryStore struct {
	mu       sync.Mutex
	presence map[string]map[string]*presenceRec // room -> username -> record
	leases   map[string]leaseRec                // scoped key -> lease
	slots    map[string]map[string]struct{}     // room -> member set
	chats    map[string][]domain.ChatMessage    // room -> ascending log
}

type presenceRec struct {
	lastSeen time.Time
	isLive   bool
}

type leaseRec struct {
	holder     string
	acquiredAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presence: make(map[string]map[string]*presenceRec),
		leases:   make(map[string]leaseRec),
		slots:    make(map[string]map[string]struct{}),
		chats:    make(map[string][]domain.ChatMessage),
	}
}

func (s *MemoryStore) TouchPresence(_ context.Context, room, username string, isLive bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.presence[room]
	if !ok {
		entries = make(map[string]*presenceRec)
		s.presence[room] = entries
	}

	rec, ok := entries[username]
	if !ok {
		entries[username] = &presenceRec{lastSeen: now, isLive: isLive}
		return nil
	}

	// Late heartbeat: an older touch never regresses the stored entry.
	if now.Before(rec.lastSeen) {
		return nil
	}

	rec.lastSeen = now
	rec.isLive = isLive
	return nil
}

func (s *MemoryStore) ListPresence(_ context.Context, room string, cutoff time.Time) ([]domain.PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.presence[room]
	result := make([]domain.PresenceEntry, 0, len(entries))
	for username, rec := range entries {
		// An entry aged exactly the TTL is already stale.
		if !rec.lastSeen.After(cutoff) {
			delete(entries, username)
			continue
		}
		result = append(result, domain.PresenceEntry{
			Room:     room,
			Username: username,
			LastSeen: rec.lastSeen,
			IsLive:   rec.isLive,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].LastSeen.After(result[j].LastSeen)
		}
		return result[i].Username < result[j].Username
	})

	return result, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, key, holder string, now time.Time, ttl time.Duration) (lease.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.leases[key]
	if !ok || rec.holder == holder || now.Sub(rec.acquiredAt) >= ttl {
		s.leases[key] = leaseRec{holder: holder, acquiredAt: now}
		return lease.Grant{Granted: true, HeldBy: holder, AcquiredAt: now}, nil
	}

	return lease.Grant{HeldBy: rec.holder, AcquiredAt: rec.acquiredAt}, nil
}

func (s *MemoryStore) RefreshLease(_ context.Context, key, holder string, now time.Time, ttl time.Duration) (lease.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.leases[key]
	if ok && rec.holder == holder && now.Sub(rec.acquiredAt) < ttl {
		s.leases[key] = leaseRec{holder: holder, acquiredAt: now}
		return lease.Grant{Granted: true, HeldBy: holder, AcquiredAt: now}, nil
	}

	if !ok {
		return lease.Grant{}, nil
	}
	return lease.Grant{HeldBy: rec.holder, AcquiredAt: rec.acquiredAt}, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, key, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.leases[key]; ok && rec.holder == holder {
		delete(s.leases, key)
	}
	return nil
}

func (s *MemoryStore) AddSlot(_ context.Context, room, member string, capacity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.slots[room]
	if !ok {
		members = make(map[string]struct{})
		s.slots[room] = members
	}

	if _, held := members[member]; held {
		return true, nil
	}
	if len(members) >= capacity {
		return false, nil
	}

	members[member] = struct{}{}
	return true, nil
}

func (s *MemoryStore) RemoveSlots(_ context.Context, room string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.slots[room]
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *MemoryStore) ListSlots(_ context.Context, room string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]string, 0, len(s.slots[room]))
	for m := range s.slots[room] {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg domain.ChatMessage, retain int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.chats[msg.Room], msg)
	if retain > 0 && len(log) > retain {
		log = log[len(log)-retain:]
	}
	s.chats[msg.Room] = log
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.chats[room]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}

	out := make([]domain.ChatMessage, len(log))
	copy(out, log)
	return out, nil
}

// PublishEvent is a no-op: with a single instance there are no peers, and
// local subscribers are notified directly by the coordinator.
func (s *MemoryStore) PublishEvent(context.Context, domain.EventEnvelope) error {
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
