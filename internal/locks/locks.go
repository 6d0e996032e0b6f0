// Package locks provides keyed mutual exclusion. Token refresh takes one lock
// per user so that different users refresh in parallel while a single user
// never refreshes twice at once. The scheduler takes a lock so only one
// replica polls at a time.
//
// Two implementations share the LockManagerInterface:
//   - LocalManager serializes goroutines within one process.
//   - RedsyncManager serializes across processes through Redis (Redlock).
//
// Example usage:
//
//	manager := locks.NewLockManager(redisClient) // nil client gives a LocalManager
//	defer manager.Close()
//
//	lock, err := manager.AcquireLock(ctx, "token-refresh:alice", 30*time.Second)
//	if err != nil {
//		return err
//	}
//	defer lock.Release(ctx)
package locks

import (
	"context"
	"time"

	"esign-sync/internal/redis"
)

// Lock is a held lock.
type Lock interface {
	// Key returns the unique identifier for this lock.
	Key() string

	// Release gives the lock up. The lock must not be used afterwards.
	Release(ctx context.Context) error

	// IsHeld reports local state only; it does not query Redis.
	IsHeld() bool
}

// LockManagerInterface hands out keyed locks.
type LockManagerInterface interface {
	// AcquireLock blocks until the lock for key is held, ctx is done, or the
	// implementation gives up. expiration bounds how long a crashed holder
	// can keep a distributed lock; local locks ignore it.
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error)

	// TryAcquireLock makes a single attempt and returns ErrNotAcquired when
	// the lock is held elsewhere.
	TryAcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error)

	Close() error
}

// NewLockManager returns a RedsyncManager when a Redis client is available
// and a LocalManager otherwise.
func NewLockManager(redisClient *redis.Client) (LockManagerInterface, error) {
	if redisClient == nil {
		return NewLocalManager(), nil
	}
	return NewRedsyncManager(redisClient)
}
