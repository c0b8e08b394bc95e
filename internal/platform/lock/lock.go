// Package lock provides the lease-based mutual exclusion used for the payout
// batch, address pool refills and the outbox relay. A holder that dies loses
// the lock when its lease runs out, so a crashed worker cannot wedge the
// system.
package lock

import (
	"context"
	"time"
)

// Well-known lock keys
const (
	KeyPayoutBatch = "payout-batch"
	KeyPoolRefill  = "address-pool-refill"
	KeyOutboxRelay = "outbox-relay"
)

// Locker acquires named locks without blocking
type Locker interface {
	// TryAcquire returns false, nil when someone else holds key
	TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
