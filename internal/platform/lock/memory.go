package lock

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// MemoryLocker is a single-process Locker with the same lease semantics as
// EtcdLocker: an expired lease can be taken over.
type MemoryLocker struct {
	clock clock.Clock

	mu     sync.Mutex
	leases map[string]time.Time
}

func NewMemoryLocker(clk clock.Clock) *MemoryLocker {
	return &MemoryLocker{
		clock:  clk,
		leases: make(map[string]time.Time),
	}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if expiry, ok := l.leases[key]; ok && now.Before(expiry) {
		return false, nil
	}
	l.leases[key] = now.Add(lease)
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.leases, key)
	return nil
}
