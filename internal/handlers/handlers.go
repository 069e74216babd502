package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nexpay/backend/internal/middleware"
	"github.com/nexpay/backend/internal/models"
	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
)

// Ledger is the balance engine as seen by the HTTP layer.
type Ledger interface {
	Deposit(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error)
	Withdraw(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error)
	Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal, initiatorID string) (*services.TransferResult, error)
	GetBalance(ctx context.Context, accountID int64, ownerID string) (decimal.Decimal, error)
	OpenAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (*models.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]models.Account, error)
	OwnerTotalBalance(ctx context.Context, ownerID string) (*services.OwnerBalance, error)
	ListAllAccounts(ctx context.Context, page, pageSize int) (*models.Page[models.AccountSummary], error)
	Reconcile(ctx context.Context, accountID int64) (*models.Reconciliation, error)
}

type History interface {
	ListTransactions(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.Transaction], error)
	ListMutations(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.MutationHistory], error)
}

type QRPayments interface {
	GenerateQRCode(ctx context.Context, ownerID string, accountID int64, amount decimal.Decimal) (*services.PaymentRequest, string, error)
	PayQRCode(ctx context.Context, code, payerID string, fromAccountID int64) (*services.TransferResult, error)
}

type balanceFunc func(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error)

// callerID returns the authenticated user id or writes a 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return identity.UUID, true
}

// pathAccountID parses a positive account id path parameter or writes a 400.
func pathAccountID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter. Missing or malformed values
// yield 0 so the service applies its default.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
