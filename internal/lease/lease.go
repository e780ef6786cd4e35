// Package lease implements a leased mutex: a per-key exclusive lock whose
// holder must refresh it periodically, and which anyone may reclaim once the
// holder's last refresh is older than the lease TTL. TTL-based staleness
// tolerates holders that crash or close their tab without a clean release;
// the cost is a bounded window during which a dead holder still blocks
// others.
//
// The same mechanism is used at two scopes: room occupancy (long TTL) and
// the per-browser-tab chat lock (short TTL).
package lease

import (
	"context"
	"time"
)

// Grant is the outcome of an acquire or refresh attempt. When denied, HeldBy
// names the current fresh holder.
type Grant struct {
	Granted    bool      `json:"granted"`
	HeldBy     string    `json:"held_by,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitempty"`
}

// KV is the backing store contract. Implementations must make each operation
// atomic per key: the unheld-or-stale-or-same-holder decision and the write
// must be a single linearizable step, so two concurrent acquires for one key
// can never both succeed.
type KV interface {
	// AcquireLease grants the key to holder if it is unheld, held by the same
	// holder (re-entry refreshes acquiredAt), or stale relative to ttl.
	AcquireLease(ctx context.Context, key, holder string, now time.Time, ttl time.Duration) (Grant, error)

	// RefreshLease extends the lease only when holder currently holds a fresh
	// lease on key. A denial means the caller has been superseded and must
	// stop treating itself as the owner.
	RefreshLease(ctx context.Context, key, holder string, now time.Time, ttl time.Duration) (Grant, error)

	// ReleaseLease clears the lease only when holder owns it; otherwise it is
	// a no-op. Releasing someone else's lease is never allowed.
	ReleaseLease(ctx context.Context, key, holder string) error
}

// Mutex is a leased mutex over a namespace of keys. The scope prefix keeps
// independent lease families (room occupancy, chat tab lock) from colliding
// in the shared store.
type Mutex struct {
	kv    KV
	scope string
	ttl   time.Duration

	now func() time.Time
}

// NewMutex creates a leased mutex for the given scope and TTL.
func NewMutex(kv KV, scope string, ttl time.Duration) *Mutex {
	return &Mutex{kv: kv, scope: scope, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (m *Mutex) WithClock(now func() time.Time) *Mutex {
	m.now = now
	return m
}

// TTL returns the staleness window of this mutex.
func (m *Mutex) TTL() time.Duration { return m.ttl }

func (m *Mutex) key(name string) string {
	return m.scope + ":" + name
}

// Acquire attempts to take the lease on name for holder.
func (m *Mutex) Acquire(ctx context.Context, name, holder string) (Grant, error) {
	return m.kv.AcquireLease(ctx, m.key(name), holder, m.now(), m.ttl)
}

// Refresh extends the lease on name for holder.
func (m *Mutex) Refresh(ctx context.Context, name, holder string) (Grant, error) {
	return m.kv.RefreshLease(ctx, m.key(name), holder, m.now(), m.ttl)
}

// Release clears the lease on name if holder owns it.
func (m *Mutex) Release(ctx context.Context, name, holder string) error {
	return m.kv.ReleaseLease(ctx, m.key(name), holder)
}
