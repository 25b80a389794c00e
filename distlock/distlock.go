// Package distlock serializes writers of the same report destination,
// across processes when Redis or PostgreSQL is available.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock not acquired")

const defaultPoll = 100 * time.Millisecond

// Locker hands out exclusive locks by key. Lock blocks until the lock is
// held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// New picks the best available backend: Redis, then PostgreSQL advisory
// locks, then an in-process keyed mutex.
func New(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	switch {
	case redisClient != nil:
		return NewRedisLocker(redisClient, ttl)
	case db != nil:
		return NewPGLocker(db)
	default:
		return NewLocalLocker()
	}
}

// LocalLocker is a keyed mutex for single-process deployments.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

// LockID maps a key to a PostgreSQL advisory lock id.
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// PGLocker uses session-scoped advisory locks. Each held lock pins one
// pooled connection until released; a dropped connection frees the lock.
type PGLocker struct {
	db   *sql.DB
	poll time.Duration
}

func NewPGLocker(db *sql.DB) *PGLocker {
	return &PGLocker{db: db, poll: defaultPoll}
}

func (l *PGLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	id := LockID(key)

	for {
		var acquired bool
		err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if acquired {
			break
		}
		if err := sleep(ctx, l.poll); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", id); err != nil {
				slog.Warn("Failed to release advisory lock", "key", key, "error", err)
			}
			_ = conn.Close()
		})
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrNotAcquired, ctx.Err())
	}
}
