package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newWalletRouter(svc *MockWalletService) http.Handler {
	h := NewWalletHandler(testLogger(), svc)
	router := setupTestRouter()
	router.GET("/wallets/:id", h.Get)
	router.GET("/wallets/:id/balance", h.Balance)
	router.GET("/wallets/:id/entries", h.Entries)
	router.GET("/wallets/:id/addresses", h.Addresses)
	return router
}

func TestWalletHandler_Get(t *testing.T) {
	walletID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		path       string
		setup      func(svc *MockWalletService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Success",
			path: "/wallets/" + walletID.String(),
			setup: func(svc *MockWalletService) {
				svc.On("GetWallet", mock.Anything, walletID).Return(&wallet.Wallet{
					ID: walletID, Label: "ops", Balance: decimal.RequireFromString("1.5"), Version: 3,
					CreatedAt: now, UpdatedAt: now,
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "InvalidID",
			path:       "/wallets/not-a-uuid",
			setup:      func(*MockWalletService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name: "NotFound",
			path: "/wallets/" + walletID.String(),
			setup: func(svc *MockWalletService) {
				svc.On("GetWallet", mock.Anything, walletID).Return(nil, wallet.ErrWalletNotFound{WalletID: walletID})
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name: "StoreFailure",
			path: "/wallets/" + walletID.String(),
			setup: func(svc *MockWalletService) {
				svc.On("GetWallet", mock.Anything, walletID).Return(nil, errors.New("connection reset"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockWalletService)
			tc.setup(svc)
			resp := doRequest(newWalletRouter(svc), http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.wantStatus, resp.Code)

			var body WalletResponse
			env := decodeResponse(t, resp, &body)
			if tc.wantCode != "" {
				if assert.NotNil(t, env.Error) {
					assert.Equal(t, tc.wantCode, env.Error.Code)
				}
			} else {
				assert.Equal(t, walletID.String(), body.ID)
				assert.Equal(t, "1.5", body.Balance)
				assert.Equal(t, int64(3), body.Version)
				assert.Equal(t, "2026-03-01T12:00:00Z", body.CreatedAt)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestWalletHandler_Balance(t *testing.T) {
	walletID := uuid.New()

	testCases := []struct {
		name          string
		query         string
		confirmedOnly bool
	}{
		{"DefaultsToConfirmed", "", true},
		{"ExplicitConfirmed", "?confirmed=true", true},
		{"IncludesPending", "?confirmed=false", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockWalletService)
			svc.On("GetBalance", mock.Anything, walletID, tc.confirmedOnly).Return(decimal.RequireFromString("0.25"), nil)

			resp := doRequest(newWalletRouter(svc), http.MethodGet, "/wallets/"+walletID.String()+"/balance"+tc.query, nil)
			assert.Equal(t, http.StatusOK, resp.Code)

			var body BalanceResponse
			decodeResponse(t, resp, &body)
			assert.Equal(t, "0.25", body.Balance)
			assert.Equal(t, tc.confirmedOnly, body.ConfirmedOnly)
			svc.AssertExpectations(t)
		})
	}

	t.Run("BadFlag", func(t *testing.T) {
		svc := new(MockWalletService)
		resp := doRequest(newWalletRouter(svc), http.MethodGet, "/wallets/"+walletID.String()+"/balance?confirmed=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		svc.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWalletHandler_Entries(t *testing.T) {
	walletID := uuid.New()
	other := uuid.New()
	entries := []*ledger.Entry{
		ledger.NewTransferEntry(uuid.New(), walletID, other, decimal.RequireFromString("0.1"), "rent"),
	}

	t.Run("Paginated", func(t *testing.T) {
		svc := new(MockWalletService)
		svc.On("ListEntries", mock.Anything, walletID, 2, 10).Return(entries, int64(11), nil)

		resp := doRequest(newWalletRouter(svc), http.MethodGet, "/wallets/"+walletID.String()+"/entries?page=2&per_page=10", nil)
		assert.Equal(t, http.StatusOK, resp.Code)

		var body []EntryResponse
		env := decodeResponse(t, resp, &body)
		if assert.Len(t, body, 1) {
			assert.Equal(t, "TRANSFER", body[0].Kind)
			assert.Equal(t, walletID.String(), body[0].FromWalletID)
			assert.Equal(t, other.String(), body[0].ToWalletID)
			assert.Equal(t, "0.1", body[0].Amount)
		}
		if assert.NotNil(t, env.Meta) {
			assert.Equal(t, 2, env.Meta.Page)
			assert.Equal(t, int64(2), env.Meta.TotalPages)
			assert.Equal(t, int64(11), env.Meta.TotalItems)
		}
		svc.AssertExpectations(t)
	})

	t.Run("PerPageTooLarge", func(t *testing.T) {
		svc := new(MockWalletService)
		resp := doRequest(newWalletRouter(svc), http.MethodGet, "/wallets/"+walletID.String()+"/entries?per_page=1000", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestWalletHandler_Addresses(t *testing.T) {
	walletID := uuid.New()
	claimed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owned := []*address.Address{
		{
			ID: 4, Address: "bcrt1qowned", WalletID: &walletID, Active: true,
			ReceivedUnconfirmed: decimal.RequireFromString("0.5"), ReceivedConfirmed: decimal.RequireFromString("0.2"),
			ClaimedAt: &claimed,
		},
	}

	testCases := []struct {
		name       string
		path       string
		setup      func(svc *MockWalletService)
		wantStatus int
		wantCode   string
		wantLen    int
	}{
		{
			name: "Success",
			path: "/wallets/" + walletID.String() + "/addresses",
			setup: func(svc *MockWalletService) {
				svc.On("ListAddresses", mock.Anything, walletID).Return(owned, nil)
			},
			wantStatus: http.StatusOK,
			wantLen:    1,
		},
		{
			name: "NothingClaimedYet",
			path: "/wallets/" + walletID.String() + "/addresses",
			setup: func(svc *MockWalletService) {
				svc.On("ListAddresses", mock.Anything, walletID).Return([]*address.Address{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "InvalidID",
			path:       "/wallets/not-a-uuid/addresses",
			setup:      func(*MockWalletService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name: "NotFound",
			path: "/wallets/" + walletID.String() + "/addresses",
			setup: func(svc *MockWalletService) {
				svc.On("ListAddresses", mock.Anything, walletID).Return(nil, wallet.ErrWalletNotFound{WalletID: walletID})
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name: "StoreFailure",
			path: "/wallets/" + walletID.String() + "/addresses",
			setup: func(svc *MockWalletService) {
				svc.On("ListAddresses", mock.Anything, walletID).Return(nil, errors.New("connection reset"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockWalletService)
			tc.setup(svc)
			resp := doRequest(newWalletRouter(svc), http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.wantStatus, resp.Code)

			var body []AddressResponse
			env := decodeResponse(t, resp, &body)
			if tc.wantCode != "" {
				if assert.NotNil(t, env.Error) {
					assert.Equal(t, tc.wantCode, env.Error.Code)
				}
			} else {
				assert.Len(t, body, tc.wantLen)
			}
			if tc.wantLen > 0 {
				assert.Equal(t, "bcrt1qowned", body[0].Address)
				assert.True(t, body[0].Active)
				assert.Equal(t, "0.5", body[0].ReceivedUnconfirmed)
				assert.Equal(t, "0.2", body[0].ReceivedConfirmed)
				assert.Equal(t, "2026-03-01T12:00:00Z", body[0].ClaimedAt)
			}
			svc.AssertExpectations(t)
		})
	}
}
