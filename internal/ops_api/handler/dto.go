package handler

import (
	"time"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/wallet"
)

// Amounts travel as decimal strings ("0.015") so no client float rounding
// can creep in.

type CreateWalletRequest struct {
	CommandID string `json:"command_id" binding:"omitempty,uuid"`
	WalletID  string `json:"wallet_id" binding:"omitempty,uuid"`
	Label     string `json:"label" binding:"max=200"`
}

type AllocateAddressRequest struct {
	CommandID string `json:"command_id" binding:"omitempty,uuid"`
	FreshOnly bool   `json:"fresh_only"`
}

type TransferRequest struct {
	CommandID    string `json:"command_id" binding:"omitempty,uuid"`
	FromWalletID string `json:"from_wallet_id" binding:"required,uuid"`
	ToWalletID   string `json:"to_wallet_id" binding:"required,uuid,nefield=FromWalletID"`
	Amount       string `json:"amount" binding:"required"`
	Description  string `json:"description" binding:"max=500"`
}

type PayoutRequest struct {
	CommandID    string     `json:"command_id" binding:"omitempty,uuid"`
	FromWalletID string     `json:"from_wallet_id" binding:"required,uuid"`
	ToAddress    string     `json:"to_address" binding:"required,max=128"`
	Amount       string     `json:"amount" binding:"required"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type CommandAcceptedResponse struct {
	CommandID string `json:"command_id"`
	Type      string `json:"type"`
	WalletID  string `json:"wallet_id,omitempty"`
}

type WalletResponse struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Balance   string `json:"balance"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type BalanceResponse struct {
	WalletID      string `json:"wallet_id"`
	Balance       string `json:"balance"`
	ConfirmedOnly bool   `json:"confirmed_only"`
}

type EntryResponse struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	FromWalletID      string `json:"from_wallet_id,omitempty"`
	ToWalletID        string `json:"to_wallet_id,omitempty"`
	ToExternalAddress string `json:"to_external_address,omitempty"`
	Amount            string `json:"amount"`
	DepositID         *int64 `json:"deposit_id,omitempty"`
	PayoutID          string `json:"payout_id,omitempty"`
	Description       string `json:"description,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type AddressResponse struct {
	Address             string `json:"address"`
	Active              bool   `json:"active"`
	ReceivedUnconfirmed string `json:"received_unconfirmed"`
	ReceivedConfirmed   string `json:"received_confirmed"`
	ClaimedAt           string `json:"claimed_at,omitempty"`
}

// PayoutResponse is the audit view of one obligation. A FAILED payout keeps
// its batch, reason and claim so an operator can resolve it by hand.
type PayoutResponse struct {
	ID            string `json:"id"`
	WalletID      string `json:"wallet_id"`
	ToAddress     string `json:"to_address"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	Claimed       bool   `json:"claimed"`
	BatchID       string `json:"batch_id,omitempty"`
	ExternalTxID  string `json:"external_txid,omitempty"`
	FeeShare      string `json:"fee_share"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
	ExecutedAt    string `json:"executed_at,omitempty"`
}

type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

type BalanceParams struct {
	Confirmed *bool `form:"confirmed"`
}

type ReportRangeParams struct {
	PaginationParams
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

func mapWallet(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		Label:     w.Label,
		Balance:   w.Balance.String(),
		Version:   w.Version,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

func mapEntry(e *ledger.Entry) EntryResponse {
	resp := EntryResponse{
		ID:                e.ID.String(),
		Kind:              string(e.Kind),
		ToExternalAddress: e.ToExternalAddress,
		Amount:            e.Amount.String(),
		DepositID:         e.DepositID,
		Description:       e.Description,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
	}
	if e.FromWalletID != nil {
		resp.FromWalletID = e.FromWalletID.String()
	}
	if e.ToWalletID != nil {
		resp.ToWalletID = e.ToWalletID.String()
	}
	if e.PayoutID != nil {
		resp.PayoutID = e.PayoutID.String()
	}
	return resp
}

func mapAddresses(addrs []*address.Address) []AddressResponse {
	out := make([]AddressResponse, 0, len(addrs))
	for _, a := range addrs {
		resp := AddressResponse{
			Address:             a.Address,
			Active:              a.Active,
			ReceivedUnconfirmed: a.ReceivedUnconfirmed.String(),
			ReceivedConfirmed:   a.ReceivedConfirmed.String(),
		}
		if a.ClaimedAt != nil {
			resp.ClaimedAt = a.ClaimedAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	return out
}

func mapPayout(p *payout.Payout) PayoutResponse {
	resp := PayoutResponse{
		ID:            p.ID.String(),
		WalletID:      p.WalletID.String(),
		ToAddress:     p.ToAddress,
		Amount:        p.Amount.String(),
		Status:        string(p.Status),
		Claimed:       p.Claimed,
		ExternalTxID:  p.ExternalTxID,
		FeeShare:      p.FeeShare.String(),
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		ExpiresAt:     p.ExpiresAt.Format(time.RFC3339),
	}
	if p.BatchID != nil {
		resp.BatchID = p.BatchID.String()
	}
	if p.ExecutedAt != nil {
		resp.ExecutedAt = p.ExecutedAt.Format(time.RFC3339)
	}
	return resp
}

// reports are served as stored; the domain type already carries JSON tags
func mapReports(reports []*reconciliation.Report) []*reconciliation.Report {
	if reports == nil {
		return []*reconciliation.Report{}
	}
	return reports
}
