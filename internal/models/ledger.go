package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a balance-holding entity owned by exactly one user.
type Account struct {
	AccountID int64           `json:"accountId" db:"account_id"`
	UUID      string          `json:"uuid" db:"uuid"`
	Balance   decimal.Decimal `json:"balance" db:"balance"` // NUMERIC(12,2), never negative
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// AccountBalance is the post-operation balance of one account.
type AccountBalance struct {
	AccountID int64           `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

// AccountSummary is the admin listing row.
type AccountSummary struct {
	AccountID int64           `json:"accountId" db:"account_id"`
	UUID      string          `json:"uuid" db:"uuid"`
	Username  string          `json:"username" db:"username"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
}

// Reconciliation compares a stored balance with the signed sum of its mutations.
type Reconciliation struct {
	AccountID   int64           `json:"accountId"`
	Balance     decimal.Decimal `json:"balance"`
	MutationSum decimal.Decimal `json:"mutationSum"`
	Consistent  bool            `json:"consistent"`
}
