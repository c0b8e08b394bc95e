package components

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDLQ struct {
	mock.Mock
}

func (m *MockDLQ) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDLQ) Close() error {
	return m.Called().Error(0)
}

func TestRejectionRecorder_RecordRejection(t *testing.T) {
	from := uuid.New()
	cmd := newCommand(t, shared.CommandTransfer, shared.TransferPayload{FromWalletID: from, ToWalletID: uuid.New(), Amount: decimal.NewFromInt(5)})

	sameCommand := mock.MatchedBy(func(value []byte) bool {
		var got shared.Command
		return json.Unmarshal(value, &got) == nil && got.CommandID == cmd.CommandID
	})

	tests := []struct {
		name       string
		setupMocks func(m *MockDLQ)
		wantErr    bool
	}{
		{
			name: "published under the debited wallet",
			setupMocks: func(m *MockDLQ) {
				m.On("PublishToDLQ", mock.Anything, from.String(), sameCommand, "insufficient funds").Return(nil).Once()
			},
		},
		{
			name: "DLQ disabled",
			setupMocks: func(m *MockDLQ) {
				m.On("PublishToDLQ", mock.Anything, from.String(), sameCommand, "insufficient funds").Return(producers.ErrDLQDisabled).Once()
			},
		},
		{
			name: "broker failure is returned",
			setupMocks: func(m *MockDLQ) {
				m.On("PublishToDLQ", mock.Anything, from.String(), sameCommand, "insufficient funds").Return(errors.New("broker down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlq := &MockDLQ{}
			tt.setupMocks(dlq)
			recorder := NewRejectionRecorder(dlq, testLogger())

			err := recorder.RecordRejection(context.Background(), cmd, "insufficient funds")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			dlq.AssertExpectations(t)
		})
	}
}

func TestRejectionRecorder_WithoutDLQ(t *testing.T) {
	recorder := NewRejectionRecorder(nil, testLogger())
	cmd := newCommand(t, shared.CommandCreateWallet, shared.CreateWalletPayload{})
	require.NoError(t, recorder.RecordRejection(context.Background(), cmd, "whatever"))
}

func TestRejectionRecorder_UnknownTypeKeyedByCommand(t *testing.T) {
	cmd := newCommand(t, "MINT", struct{}{})
	dlq := &MockDLQ{}
	dlq.On("PublishToDLQ", mock.Anything, cmd.CommandID.String(), mock.Anything, "unknown command type").Return(nil).Once()

	recorder := NewRejectionRecorder(dlq, testLogger())
	require.NoError(t, recorder.RecordRejection(context.Background(), cmd, "unknown command type"))
	dlq.AssertExpectations(t)
}
