package shared

// EntryKind classifies a ledger entry by the parties it moves value between
type EntryKind string

const (
	EntryKindTransfer EntryKind = "TRANSFER" // wallet -> wallet
	EntryKindDeposit  EntryKind = "DEPOSIT"  // external deposit -> wallet
	EntryKindPayout   EntryKind = "PAYOUT"   // wallet -> external address
	EntryKindFee      EntryKind = "FEE"      // fee wallet -> network fee sink
)

// NetworkFeeSink is the external counterparty recorded on fee entries
const NetworkFeeSink = "network-fee"

// PayoutStatus tracks an outgoing obligation
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "PENDING"
	PayoutStatusClaimed  PayoutStatus = "CLAIMED"
	PayoutStatusExecuted PayoutStatus = "EXECUTED"
	PayoutStatusFailed   PayoutStatus = "FAILED"
)

// BatchStatus tracks one multi-destination send
type BatchStatus string

const (
	BatchStatusClaimed  BatchStatus = "CLAIMED"
	BatchStatusSent     BatchStatus = "SENT"
	BatchStatusReleased BatchStatus = "RELEASED"
	BatchStatusFailed   BatchStatus = "FAILED"
)

// BalanceView distinguishes the two balance change notifications
type BalanceView string

const (
	BalanceViewUnconfirmed BalanceView = "UNCONFIRMED"
	BalanceViewConfirmed   BalanceView = "CONFIRMED"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusPublished       OutboxStatus = "PUBLISHED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
