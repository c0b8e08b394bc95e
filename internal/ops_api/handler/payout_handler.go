package handler

import (
	"errors"
	"log/slog"

	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler serves withdrawal obligation reads
type PayoutHandler struct {
	payouts service.PayoutService
	logger  *slog.Logger
}

func NewPayoutHandler(logger *slog.Logger, payouts service.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payouts: payouts,
		logger:  logger,
	}
}

// Get returns the obligation's status, txid, fee share and failure reason.
// The id is the command id of the REQUEST_PAYOUT that created it.
func (h *PayoutHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid payout ID")
		return
	}

	p, err := h.payouts.GetPayout(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payout.ErrPayoutNotFound{}) {
			RespondNotFound(c, "Payout not found")
			return
		}
		h.logger.Error("Payout read failed", "payout_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, mapPayout(p))
}
