package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
)

// AddressAllocator hands out receiving addresses from a pre-generated pool.
// Each address is claimed by exactly one wallet through a conditional
// update; losers of a race move on to the next candidate.
type AddressAllocator struct {
	addresses address.Repository
	wallets   wallet.Repository
	node      node.Client
	locker    lock.Locker
	cfg       config.DepositsConfig
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAddressAllocator(
	logger *slog.Logger,
	repos Repositories,
	nodeClient node.Client,
	locker lock.Locker,
	cfg config.DepositsConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *AddressAllocator {
	return &AddressAllocator{
		addresses: repos.Addresses,
		wallets:   repos.Wallets,
		node:      nodeClient,
		locker:    locker,
		cfg:       cfg,
		clock:     clk,
		metrics:   m,
		logger:    logger,
	}
}

// AllocateAddress returns a receiving address owned by walletID. Unless
// freshOnly is set, the wallet's most recent address is reused.
func (a *AddressAllocator) AllocateAddress(ctx context.Context, walletID uuid.UUID, freshOnly bool) (*address.Address, error) {
	return a.AllocateForCommand(ctx, uuid.Nil, walletID, freshOnly)
}

// AllocateForCommand is AllocateAddress keyed by the command that asked for
// it. A redelivered command gets back the address its first delivery claimed
// instead of draining another one from the pool.
func (a *AddressAllocator) AllocateForCommand(ctx context.Context, commandID, walletID uuid.UUID, freshOnly bool) (*address.Address, error) {
	if _, err := a.wallets.GetByID(ctx, walletID); err != nil {
		return nil, err
	}

	if commandID != uuid.Nil {
		prior, err := a.addresses.ClaimedByCommand(ctx, commandID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			a.logger.Info("Address already claimed by command", "command_id", commandID.String(), "address", prior.Address)
			return prior, nil
		}
	}

	if !freshOnly {
		latest, err := a.addresses.LatestForWallet(ctx, walletID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			return latest, nil
		}
	}

	for round := 1; round <= a.cfg.MaxClaimAttempts; round++ {
		claimed, err := a.claimFromPool(ctx, commandID, walletID)
		if errors.Is(err, address.ErrClaimCommandUsed) {
			// a concurrent delivery of the same command won
			return a.addresses.ClaimedByCommand(ctx, commandID)
		}
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			a.metrics.AddressesClaimed.Inc()
			a.logger.Info("Address claimed", "wallet_id", walletID.String(), "address", claimed.Address, "round", round)
			return claimed, nil
		}

		refilled, err := a.ReplenishPool(ctx)
		if err != nil {
			return nil, err
		}
		if !refilled {
			// Another worker is refilling; give it a moment.
			if err := a.wait(ctx, a.cfg.ClaimRetryBackoff); err != nil {
				return nil, err
			}
		}
	}

	a.logger.Warn("Address pool exhausted", "wallet_id", walletID.String(), "rounds", a.cfg.MaxClaimAttempts)
	return nil, fmt.Errorf("%w: %w", shared.ErrExternalNodeTransient, address.ErrAddressPoolExhausted)
}

// claimFromPool tries each free candidate once. It returns nil, nil when
// every candidate was taken by someone else or the pool is empty.
func (a *AddressAllocator) claimFromPool(ctx context.Context, commandID, walletID uuid.UUID) (*address.Address, error) {
	candidates, err := a.addresses.ListFree(ctx, a.cfg.ClaimCandidates)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		ok, err := a.addresses.Claim(ctx, candidate.ID, walletID, commandID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		now := a.clock.Now()
		candidate.Active = true
		candidate.WalletID = &walletID
		candidate.ClaimedAt = &now
		if commandID != uuid.Nil {
			candidate.ClaimCommandID = &commandID
		}
		return candidate, nil
	}
	return nil, nil
}

// ReplenishPool generates PoolRefillSize addresses on the node under the
// refill lock. It returns false without error when another worker holds the
// lock.
func (a *AddressAllocator) ReplenishPool(ctx context.Context) (bool, error) {
	acquired, err := a.locker.TryAcquire(ctx, lock.KeyPoolRefill, a.cfg.RefillLockLease)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := a.locker.Release(context.WithoutCancel(ctx), lock.KeyPoolRefill); err != nil {
			a.logger.Error("Failed to release pool refill lock", "error", err)
		}
	}()

	generated := make([]string, 0, a.cfg.PoolRefillSize)
	for i := 0; i < a.cfg.PoolRefillSize; i++ {
		addr, err := a.node.CreateAddress(ctx)
		if err != nil {
			if len(generated) == 0 {
				return false, err
			}
			a.logger.Warn("Address generation stopped early", "generated", len(generated), "error", err)
			break
		}
		generated = append(generated, addr)
	}

	inserted, err := a.addresses.CreateMany(ctx, generated)
	if err != nil {
		return false, err
	}

	a.logger.Info("Address pool replenished", "generated", len(generated), "inserted", inserted)
	return true, nil
}

// EnsurePoolLevel refills the pool when the free count is under the low
// watermark.
func (a *AddressAllocator) EnsurePoolLevel(ctx context.Context) error {
	free, err := a.addresses.CountFree(ctx)
	if err != nil {
		return err
	}
	a.metrics.AddressPoolFree.Set(float64(free))

	if free >= a.cfg.PoolLowWatermark {
		return nil
	}

	a.logger.Info("Free address pool below watermark", "free", free, "watermark", a.cfg.PoolLowWatermark)
	_, err = a.ReplenishPool(ctx)
	return err
}

func (a *AddressAllocator) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.clock.TickAfter(d):
		return nil
	}
}
