package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Renewable is implemented by locks that expire on their own. Holders of a
// long operation call Extend periodically, well inside TTL.
type Renewable interface {
	// Extend resets the expiry to ttl. Returns ErrLockLost if the lock is
	// no longer ours.
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// ErrLockLost is returned by Extend once the lock expired or changed hands.
var ErrLockLost = errors.New("distlock: lock no longer held")

// Locker mints a fresh lock for each key. One Locker is shared by a
// process; each operation asks it for its own DistLock.
type Locker interface {
	NewLock(key string) DistLock
}

// NewLock creates a distributed lock using the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// NewLocker picks a backend the same way NewLock does. With neither Redis
// nor a database it returns an in-process LocalLocker, which only protects
// a single instance.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	if redisClient == nil && db == nil {
		return NewLocalLocker()
	}
	return &backendLocker{redis: redisClient, db: db, ttl: ttl}
}

type backendLocker struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

func (b *backendLocker) NewLock(key string) DistLock {
	return NewLock(b.redis, b.db, key, b.ttl)
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// Uses pg_try_advisory_lock / pg_advisory_unlock which are session-scoped.
// The lock is automatically released if the DB connection drops, providing
// crash-safety similar to Redis TTL expiration. The session is pinned to one
// pooled connection between Acquire and Release.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("advisory lock already acquired by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the pinned connection.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock (single instance, no Redis or DB)
// =============================================================================

// LocalLocker hands out locks backed by a process-wide set of held keys.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// NewLock returns a lock on key.
func (l *LocalLocker) NewLock(key string) DistLock {
	return &LocalLock{locker: l, key: key}
}

// LocalLock is a non-blocking in-process lock on one key.
type LocalLock struct {
	locker *LocalLocker
	key    string
	owned  bool
}

// Acquire takes the key if nobody holds it.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if _, taken := l.locker.held[l.key]; taken {
		return false, nil
	}
	l.locker.held[l.key] = struct{}{}
	l.owned = true
	return true, nil
}

// Release frees the key if this lock holds it.
func (l *LocalLock) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.owned {
		delete(l.locker.held, l.key)
		l.owned = false
	}
	return nil
}
