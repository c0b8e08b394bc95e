package handler

import (
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommandHandler accepts wallet commands and queues them for the workers.
// Only the request shape is checked here; balances are checked when the
// command is applied.
type CommandHandler struct {
	commands service.CommandService
	logger   *slog.Logger
}

func NewCommandHandler(logger *slog.Logger, commands service.CommandService) *CommandHandler {
	return &CommandHandler{
		commands: commands,
		logger:   logger,
	}
}

// parseOptionalID parses a uuid that binding already checked, if present
func parseOptionalID(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	return uuid.MustParse(s)
}

func (h *CommandHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *CommandHandler) parseAmount(c *gin.Context, s string) (decimal.Decimal, bool) {
	amount, err := shared.ParseAmount(s)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return decimal.Zero, false
	}
	return amount, true
}

func (h *CommandHandler) submit(c *gin.Context, typ shared.CommandType, commandID uuid.UUID, payload any, walletID uuid.UUID) {
	cmd, err := h.commands.Submit(c.Request.Context(), typ, commandID, payload)
	if err != nil {
		RespondUnavailable(c, "Command could not be queued, retry with the same command_id")
		return
	}

	resp := CommandAcceptedResponse{CommandID: cmd.CommandID.String(), Type: string(typ)}
	if walletID != uuid.Nil {
		resp.WalletID = walletID.String()
	}
	RespondAccepted(c, resp)
}

// CreateWallet queues CREATE_WALLET. Without a wallet_id the wallet takes the
// command id, so the caller learns the id before the wallet exists.
func (h *CommandHandler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if !h.bind(c, &req) {
		return
	}

	commandID := parseOptionalID(req.CommandID)
	if commandID == uuid.Nil {
		commandID = uuid.New()
	}
	walletID := parseOptionalID(req.WalletID)
	if walletID == uuid.Nil {
		walletID = commandID
	}

	h.submit(c, shared.CommandCreateWallet, commandID, shared.CreateWalletPayload{WalletID: walletID, Label: req.Label}, walletID)
}

func (h *CommandHandler) AllocateAddress(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	// the body is optional here
	var req AllocateAddressRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	h.submit(c, shared.CommandAllocateAddress, parseOptionalID(req.CommandID),
		shared.AllocateAddressPayload{WalletID: walletID, FreshOnly: req.FreshOnly}, walletID)
}

func (h *CommandHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !h.bind(c, &req) {
		return
	}
	amount, ok := h.parseAmount(c, req.Amount)
	if !ok {
		return
	}

	h.submit(c, shared.CommandTransfer, parseOptionalID(req.CommandID), shared.TransferPayload{
		FromWalletID: uuid.MustParse(req.FromWalletID),
		ToWalletID:   uuid.MustParse(req.ToWalletID),
		Amount:       amount,
		Description:  req.Description,
	}, uuid.Nil)
}

func (h *CommandHandler) RequestPayout(c *gin.Context) {
	var req PayoutRequest
	if !h.bind(c, &req) {
		return
	}
	amount, ok := h.parseAmount(c, req.Amount)
	if !ok {
		return
	}

	h.submit(c, shared.CommandRequestPayout, parseOptionalID(req.CommandID), shared.RequestPayoutPayload{
		FromWalletID: uuid.MustParse(req.FromWalletID),
		ToAddress:    req.ToAddress,
		Amount:       amount,
		ExpiresAt:    req.ExpiresAt,
	}, uuid.Nil)
}
