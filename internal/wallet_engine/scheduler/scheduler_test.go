package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func forceTick(t *testing.T, f *ticker.Force) {
	t.Helper()
	select {
	case f.Force <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("job did not take the tick")
	}
}

func TestScheduler_RunsJobsOnTheirTicks(t *testing.T) {
	depositTick := ticker.NewForce(time.Hour)
	batchTick := ticker.NewForce(time.Hour)

	var deposits, batches atomic.Int32
	ran := make(chan string, 8)

	s := New(testLogger(),
		Job{Name: "deposit_poll", Ticker: depositTick, Run: func(context.Context) error {
			deposits.Add(1)
			ran <- "deposit_poll"
			return nil
		}},
		Job{Name: "payout_batch", Ticker: batchTick, Run: func(context.Context) error {
			batches.Add(1)
			ran <- "payout_batch"
			return errors.New("node unreachable")
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	forceTick(t, depositTick)
	assert.Equal(t, "deposit_poll", <-ran)
	forceTick(t, batchTick)
	assert.Equal(t, "payout_batch", <-ran)

	// a failed run does not stop the job
	forceTick(t, batchTick)
	assert.Equal(t, "payout_batch", <-ran)

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.Equal(t, int32(1), deposits.Load())
	assert.Equal(t, int32(2), batches.Load())
}

func TestLedgerJobs(t *testing.T) {
	noop := func(context.Context) error { return nil }
	cfg := &config.Config{
		Deposits:       config.DepositsConfig{PollInterval: time.Second, PoolCheckInterval: time.Minute},
		Payouts:        config.PayoutsConfig{BatchInterval: 30 * time.Second},
		Reconciliation: config.ReconciliationConfig{Interval: 0},
		Outbox:         config.OutboxConfig{PurgeInterval: time.Hour},
	}

	jobs := LedgerJobs(cfg, Runners{
		PollDeposits:    noop,
		EnsurePoolLevel: noop,
		RunBatch:        noop,
		Reconcile:       noop,
	})

	require.Len(t, jobs, 3)
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
		j.Ticker.Stop()
	}
	// purging has an interval but no runner, so it is left out too
	assert.Equal(t, []string{"deposit_poll", "address_pool", "payout_batch"}, names)
}
