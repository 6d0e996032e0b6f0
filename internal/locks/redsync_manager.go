package locks

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/redis"
)

// RedsyncManager implements distributed locking with the Redlock algorithm
// from go-redsync/redsync/v4. Held locks are extended in the background at
// a third of their expiry until released.
type RedsyncManager struct {
	redsync    *redsync.Redsync
	localLocks map[*RedsyncLock]struct{}
	mutex      sync.Mutex
	retryDelay time.Duration
}

// RedsyncLock wraps a redsync.Mutex
type RedsyncLock struct {
	mutex      *redsync.Mutex
	key        string
	expiration time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	manager    *RedsyncManager
	once       sync.Once
}

// NewRedsyncManager creates a new distributed lock manager using redsync.
//
// Parameters:
//   - redisClient: a connected Redis client
//
// Returns:
//   - *RedsyncManager: the lock manager
//   - error: a config error when redisClient is nil
func NewRedsyncManager(redisClient *redis.Client) (*RedsyncManager, error) {
	if redisClient == nil {
		return nil, errors.ConfigError("redis client is required")
	}

	pool := goredis.NewPool(redisClient.GetGoRedisClient())

	return &RedsyncManager{
		redsync:    redsync.New(pool),
		localLocks: make(map[*RedsyncLock]struct{}),
		retryDelay: 100 * time.Millisecond,
	}, nil
}

// AcquireLock retries until the lock is held or ctx is done. Callers bound
// the wait through ctx.
func (rm *RedsyncManager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	tries := 1 << 20
	if deadline, ok := ctx.Deadline(); ok {
		tries = int(time.Until(deadline)/rm.retryDelay) + 1
	}
	return rm.acquire(ctx, key, expiration, tries)
}

// TryAcquireLock makes a single attempt.
func (rm *RedsyncManager) TryAcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	return rm.acquire(ctx, key, expiration, 1)
}

func (rm *RedsyncManager) acquire(ctx context.Context, key string, expiration time.Duration, tries int) (Lock, error) {
	mutex := rm.redsync.NewMutex(fmt.Sprintf("lock:%s", key),
		redsync.WithExpiry(expiration),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(rm.retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.TimeoutError("acquiring lock " + key)
		}
		if tries == 1 || stderrors.Is(err, redsync.ErrFailed) {
			return nil, ErrNotAcquired
		}
		return nil, errors.InternalError("failed to acquire distributed lock", err)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &RedsyncLock{
		mutex:      mutex,
		key:        key,
		expiration: expiration,
		ctx:        lockCtx,
		cancel:     cancel,
		manager:    rm,
	}

	rm.mutex.Lock()
	rm.localLocks[lock] = struct{}{}
	rm.mutex.Unlock()

	go rm.renewLock(lock)

	return lock, nil
}

func (rm *RedsyncManager) renewLock(lock *RedsyncLock) {
	renewInterval := lock.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				rm.releaseLock(lock)
				return
			}
		}
	}
}

func (rm *RedsyncManager) releaseLock(lock *RedsyncLock) {
	lock.once.Do(func() {
		rm.mutex.Lock()
		delete(rm.localLocks, lock)
		rm.mutex.Unlock()

		lock.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = lock.mutex.UnlockContext(ctx)
	})
}

// Close releases all locks managed by this manager.
func (rm *RedsyncManager) Close() error {
	rm.mutex.Lock()
	held := make([]*RedsyncLock, 0, len(rm.localLocks))
	for lock := range rm.localLocks {
		held = append(held, lock)
	}
	rm.mutex.Unlock()

	for _, lock := range held {
		rm.releaseLock(lock)
	}
	return nil
}

// Key returns the unique identifier for this lock.
func (rl *RedsyncLock) Key() string {
	return rl.key
}

// Release unlocks in Redis and stops renewal.
func (rl *RedsyncLock) Release(ctx context.Context) error {
	rl.manager.releaseLock(rl)
	return nil
}

// IsHeld returns true until the lock is released or renewal fails.
func (rl *RedsyncLock) IsHeld() bool {
	select {
	case <-rl.ctx.Done():
		return false
	default:
		return true
	}
}
