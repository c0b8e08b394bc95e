package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletService) GetBalance(ctx context.Context, id uuid.UUID, confirmedOnly bool) (decimal.Decimal, error) {
	args := m.Called(ctx, id, confirmedOnly)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletService) ListEntries(ctx context.Context, id uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	args := m.Called(ctx, id, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*ledger.Entry), args.Get(1).(int64), args.Error(2)
}

func (m *MockWalletService) ListAddresses(ctx context.Context, id uuid.UUID) ([]*address.Address, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*address.Address), args.Error(1)
}

type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Payout), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Latest(ctx context.Context) (*reconciliation.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Report), args.Error(1)
}

func (m *MockReportService) List(ctx context.Context, from, to time.Time, page, perPage int) ([]*reconciliation.Report, error) {
	args := m.Called(ctx, from, to, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.Report), args.Error(1)
}

type MockCommandService struct {
	mock.Mock
}

func (m *MockCommandService) Submit(ctx context.Context, typ shared.CommandType, commandID uuid.UUID, payload any) (*shared.Command, error) {
	args := m.Called(ctx, typ, commandID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Command), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doRequest(router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// decodeResponse unmarshals the envelope, decoding data into out if given
func decodeResponse(t *testing.T, resp *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Error *ErrorInfo      `json:"error"`
		Meta  *MetaInfo       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &raw))
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return Response{Error: raw.Error, Meta: raw.Meta}
}

func extractData(t *testing.T, body []byte) json.RawMessage {
	t.Helper()
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	return raw.Data
}
