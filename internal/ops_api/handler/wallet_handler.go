package handler

import (
	"errors"
	"log/slog"

	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler serves wallet reads
type WalletHandler struct {
	wallets service.WalletService
	logger  *slog.Logger
}

func NewWalletHandler(logger *slog.Logger, wallets service.WalletService) *WalletHandler {
	return &WalletHandler{
		wallets: wallets,
		logger:  logger,
	}
}

func (h *WalletHandler) walletID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid wallet ID")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps a service error to a response
func (h *WalletHandler) fail(c *gin.Context, id uuid.UUID, err error) {
	if errors.Is(err, wallet.ErrWalletNotFound{}) {
		RespondNotFound(c, "Wallet not found")
		return
	}
	h.logger.Error("Wallet read failed", "wallet_id", id.String(), "route", c.FullPath(), "error", err)
	RespondInternalError(c)
}

// Get returns the wallet with its cached balance and version
func (h *WalletHandler) Get(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	w, err := h.wallets.GetWallet(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, err)
		return
	}
	RespondOK(c, mapWallet(w))
}

// Balance recomputes the balance from entries. confirmed defaults to true;
// confirmed=false adds deposits seen but not yet credited.
func (h *WalletHandler) Balance(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	var params BalanceParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid confirmed parameter")
		return
	}
	confirmedOnly := params.Confirmed == nil || *params.Confirmed

	balance, err := h.wallets.GetBalance(c.Request.Context(), id, confirmedOnly)
	if err != nil {
		h.fail(c, id, err)
		return
	}
	RespondOK(c, BalanceResponse{
		WalletID:      id.String(),
		Balance:       balance.String(),
		ConfirmedOnly: confirmedOnly,
	})
}

// Entries pages through the wallet's ledger entries, newest first
func (h *WalletHandler) Entries(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.wallets.ListEntries(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		h.fail(c, id, err)
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, mapEntry(e))
	}
	RespondPage(c, out, pagination.Page, pagination.PerPage, total)
}

// Addresses lists the deposit addresses the wallet claimed, the way a caller
// learns the result of an address allocation command.
func (h *WalletHandler) Addresses(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	addrs, err := h.wallets.ListAddresses(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, err)
		return
	}
	RespondOK(c, mapAddresses(addrs))
}
