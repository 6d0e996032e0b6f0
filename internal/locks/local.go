package locks

import (
	"context"
	"sync"
	"time"

	"esign-sync/internal/common/errors"
)

// ErrNotAcquired is returned by TryAcquireLock when the key is busy.
var ErrNotAcquired = errors.ConnectionError("lock is held elsewhere", nil).WithCode("lock_busy")

// LocalManager implements per-key locks for goroutines of one process.
// Entries are reference counted and removed once nobody holds or waits
// for them, so the key space does not grow without bound.
type LocalManager struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// NewLocalManager creates an empty LocalManager.
func NewLocalManager() *LocalManager {
	return &LocalManager{entries: make(map[string]*localEntry)}
}

// AcquireLock blocks until key is free or ctx is done.
func (m *LocalManager) AcquireLock(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	entry := m.ref(key)

	select {
	case entry.slot <- struct{}{}:
		return &localLock{key: key, manager: m, entry: entry}, nil
	case <-ctx.Done():
		m.unref(key, entry)
		return nil, errors.TimeoutError("acquiring lock " + key)
	}
}

// TryAcquireLock takes key only if it is free right now.
func (m *LocalManager) TryAcquireLock(_ context.Context, key string, _ time.Duration) (Lock, error) {
	entry := m.ref(key)

	select {
	case entry.slot <- struct{}{}:
		return &localLock{key: key, manager: m, entry: entry}, nil
	default:
		m.unref(key, entry)
		return nil, ErrNotAcquired
	}
}

// Close is a no-op; held locks stay valid until released.
func (m *LocalManager) Close() error {
	return nil
}

func (m *LocalManager) ref(key string) *localEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (m *LocalManager) unref(key string, entry *localEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}

func (m *LocalManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type localLock struct {
	key      string
	manager  *LocalManager
	entry    *localEntry
	once     sync.Once
	mu       sync.Mutex
	released bool
}

func (l *localLock) Key() string {
	return l.key
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		<-l.entry.slot
		l.manager.unref(l.key, l.entry)
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()
	})
	return nil
}

// IsHeld returns true until Release is called.
func (l *localLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.released
}
