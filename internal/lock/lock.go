package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	errs "okeyonline/internal/errors"
)

const DefaultTimeout = 5 * time.Second

// RoomLockManager serialises work per key. Each key owns a one-slot
// semaphore so a waiter can give up without leaving anything blocked.
// A key is dropped once nobody holds or waits for it.
type RoomLockManager struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	timeout time.Duration
	log     *zap.SugaredLogger
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewRoomLockManager(log *zap.SugaredLogger, timeout time.Duration) *RoomLockManager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RoomLockManager{locks: make(map[string]*keyLock), timeout: timeout, log: log}
}

// Lock acquires the lock for key or fails with ErrLockTimeout.
func (m *RoomLockManager) Lock(ctx context.Context, key string) error {
	l := m.acquire(key)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, l)
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	case <-timer.C:
		m.release(key, l)
		m.log.Warnf("lock %s: gave up after %s", key, m.timeout)
		return fmt.Errorf("lock %s: %w", key, errs.ErrLockTimeout)
	}
}

func (m *RoomLockManager) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		m.log.Warnf("unlock %s: no lock found", key)
		return
	}
	select {
	case <-l.sem:
		m.release(key, l)
	default:
		m.log.Warnf("unlock %s: lock was not held", key)
	}
}

func (m *RoomLockManager) acquire(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *RoomLockManager) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *RoomLockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
