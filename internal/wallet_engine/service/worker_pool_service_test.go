package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCommandProcessor struct {
	mock.Mock
}

func (m *MockCommandProcessor) ProcessCommand(ctx context.Context, cmd *shared.Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func TestWorkerPoolCommandProcessor_ProcessCommand(t *testing.T) {
	cmd := command(t, shared.CommandCreateWallet, shared.CreateWalletPayload{Label: "w"})
	sameCommand := mock.MatchedBy(func(c *shared.Command) bool { return c.CommandID == cmd.CommandID })

	tests := []struct {
		name          string
		setupMocks    func(m *MockCommandProcessor)
		expectedError error
	}{
		{
			name: "successful processing",
			setupMocks: func(m *MockCommandProcessor) {
				m.On("ProcessCommand", mock.Anything, sameCommand).Return(nil).Once()
			},
		},
		{
			name: "processing error",
			setupMocks: func(m *MockCommandProcessor) {
				m.On("ProcessCommand", mock.Anything, sameCommand).Return(errors.New("processing error")).Once()
			},
			expectedError: errors.New("processing error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &MockCommandProcessor{}
			pool, err := NewWorkerPoolCommandProcessor(base, 2, testLogger())
			require.NoError(t, err)
			defer pool.Shutdown()

			tt.setupMocks(base)

			err = pool.ProcessCommand(context.Background(), cmd)
			if tt.expectedError != nil {
				assert.EqualError(t, err, tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}
			base.AssertExpectations(t)
		})
	}
}

func TestWorkerPoolCommandProcessor_BoundsConcurrency(t *testing.T) {
	base := &MockCommandProcessor{}
	pool, err := NewWorkerPoolCommandProcessor(base, 3, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	var inFlight, peak, done atomic.Int32
	base.On("ProcessCommand", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
	}).Return(nil)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := command(t, shared.CommandCreateWallet, shared.CreateWalletPayload{})
			assert.NoError(t, pool.ProcessCommand(context.Background(), c))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 3, pool.Capacity())
}
