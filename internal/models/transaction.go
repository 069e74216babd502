package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Only transfers produce transaction rows.
const (
	TransactionTransferOut = "transfer_out"
	TransactionTransferIn  = "transfer_in"
)

// Mutation action types.
const (
	ActionAddBalance    = "add_balance"
	ActionDeductBalance = "deduct_balance"
	ActionTransferOut   = "transfer_out"
	ActionTransferIn    = "transfer_in"
)

// Transaction is an append-only record of one side of a transfer.
type Transaction struct {
	TrcID            int64           `json:"trcId" db:"trc_id"`
	AccountID        int64           `json:"accountId" db:"account_id"`
	RelatedAccountID int64           `json:"relatedAccountId" db:"related_account_id"`
	Type             string          `json:"type" db:"type"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Timestamp        time.Time       `json:"timestamp" db:"timestamp"`
}

// MutationHistory is an append-only audit row, one per account side of every
// balance-changing event.
type MutationHistory struct {
	MutaID           int64           `json:"mutaId" db:"muta_id"`
	AccountID        int64           `json:"accountId" db:"account_id"`
	RelatedAccountID int64           `json:"relatedAccountId" db:"related_account_id"`
	UUID             string          `json:"uuid" db:"uuid"`
	ActionType       string          `json:"actionType" db:"action_type"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Timestamp        time.Time       `json:"timestamp" db:"timestamp"`
	Note             string          `json:"note" db:"note"`
}

// Page is one offset page of a history listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}
