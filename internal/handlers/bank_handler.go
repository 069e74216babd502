package handlers

import (
	"net/http"

	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BankHandler struct {
	ledger    Ledger
	history   History
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewBankHandler(ledger Ledger, history History, logger *zap.Logger) *BankHandler {
	return &BankHandler{
		ledger:    ledger,
		history:   history,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("bank"),
	}
}

type OpenAccountRequest struct {
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

type TransferRequest struct {
	FromAccountID int64           `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64           `json:"to_account_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
}

type BalanceResponse struct {
	AccountID int64           `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

// GetBalance handles GET /users/balance/{account_id}.
func (h *BankHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	accountID, ok := pathAccountID(w, r, "account_id")
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), accountID, ownerID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

// ListAccounts handles GET /bank-accounts.
func (h *BankHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), ownerID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// OpenAccount handles POST /bank-accounts. An empty body opens the account
// with a zero balance.
func (h *BankHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req OpenAccountRequest
	if r.ContentLength != 0 && !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.ledger.OpenAccount(r.Context(), ownerID, req.InitialBalance)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusCreated, account)
}

// Transfer handles POST /transactions/transfer.
func (h *BankHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, req.Amount, ownerID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, map[string]any{
		"message": "Transfer successful",
		"result":  result,
	})
}

// TransactionHistory handles GET /transactions/history?page=&page_size=.
func (h *BankHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	page, err := h.history.ListTransactions(r.Context(), ownerID, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, page)
}

// MutationHistory handles GET /mutations/history?page=&page_size=.
func (h *BankHandler) MutationHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	page, err := h.history.ListMutations(r.Context(), ownerID, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, page)
}
