package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/custody-ledger/internal/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

type heldLock struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

// EtcdLocker implements Locker with one etcd session per held lock. The
// session's lease TTL is the lock lease.
type EtcdLocker struct {
	cli    *clientv3.Client
	prefix string
	logger *slog.Logger

	mu sync.Mutex
	// a nil entry reserves a key whose acquisition is still talking to etcd
	held map[string]*heldLock

	lockRemote func(ctx context.Context, key string, lease time.Duration) (*heldLock, error)
}

// NewEtcdLocker connects to etcd
func NewEtcdLocker(ctx context.Context, logger *slog.Logger, cfg config.EtcdConfig) (*EtcdLocker, error) {
	cli, err := clientv3.New(clientv3.Config{
		Context:     ctx,
		Endpoints:   cfg.EndpointList(),
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	logger.Info("Connected to etcd", "endpoints", cfg.EndpointList())

	l := &EtcdLocker{
		cli:    cli,
		prefix: cfg.LockPrefix,
		logger: logger.With("component", "lock"),
		held:   make(map[string]*heldLock),
	}
	l.lockRemote = l.lock
	return l, nil
}

// TryAcquire reserves key locally, then opens the session and locks in etcd
// without holding l.mu, so a slow etcd round trip on one key does not stall
// the others.
func (l *EtcdLocker) TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.held[key] = nil
	l.mu.Unlock()

	h, err := l.lockRemote(ctx, key, lease)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil || h == nil {
		delete(l.held, key)
		return false, err
	}
	l.held[key] = h
	l.logger.Debug("Lock acquired", "key", key, "lease", lease)
	return true, nil
}

// lock returns nil, nil when another process holds key
func (l *EtcdLocker) lock(ctx context.Context, key string, lease time.Duration) (*heldLock, error) {
	session, err := concurrency.NewSession(l.cli, concurrency.WithTTL(leaseSeconds(lease)))
	if err != nil {
		return nil, fmt.Errorf("failed to open etcd session for %s: %w", key, err)
	}

	mutex := concurrency.NewMutex(session, l.prefix+key)
	if err := mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return &heldLock{session: session, mutex: mutex}, nil
}

// Release unlocks key and revokes its lease. Releasing a key that is not
// held, or is still being acquired, is a no-op.
func (l *EtcdLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	h := l.held[key]
	if h != nil {
		delete(l.held, key)
	}
	l.mu.Unlock()

	if h == nil {
		return nil
	}

	unlockErr := h.mutex.Unlock(ctx)
	closeErr := h.session.Close()
	if err := errors.Join(unlockErr, closeErr); err != nil {
		l.logger.Warn("Lock release incomplete, lease will expire", "key", key, "error", err)
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	l.logger.Debug("Lock released", "key", key)
	return nil
}

func (l *EtcdLocker) Close() error {
	l.mu.Lock()
	keys := make([]string, 0, len(l.held))
	for k := range l.held {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	for _, k := range keys {
		_ = l.Release(context.Background(), k)
	}
	return l.cli.Close()
}

// leaseSeconds rounds up to whole seconds, the granularity of etcd leases
func leaseSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
