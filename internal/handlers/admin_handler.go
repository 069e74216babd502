package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nexpay/backend/internal/middleware"
	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminHandler struct {
	ledger    Ledger
	pageSize  int
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewAdminHandler(ledger Ledger, pageSize int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		pageSize:  pageSize,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("admin"),
	}
}

type BalanceChangeRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=255"`
}

// ListAccounts handles GET /admin/users/account?page=.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page, err := h.ledger.ListAllAccounts(r.Context(), queryInt(r, "page"), h.pageSize)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, page)
}

// OwnerBalance handles GET /admin/users/{uuid}/balance.
func (h *AdminHandler) OwnerBalance(w http.ResponseWriter, r *http.Request) {
	total, err := h.ledger.OwnerTotalBalance(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, total)
}

// AddBalance handles POST /admin/users/{user_id}/add-balance.
func (h *AdminHandler) AddBalance(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.ledger.Deposit, "Balance added")
}

// DeductBalance handles POST /admin/users/{user_id}/deduct-balance.
func (h *AdminHandler) DeductBalance(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.ledger.Withdraw, "Balance deducted")
}

func (h *AdminHandler) changeBalance(w http.ResponseWriter, r *http.Request, apply balanceFunc, message string) {
	userID := chi.URLParam(r, "user_id")

	var req BalanceChangeRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	balances, err := apply(r.Context(), userID, req.Amount, req.Note)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	actor, _ := middleware.IdentityFrom(r.Context())
	h.logger.Info(message,
		zap.String("admin", actor.UUID),
		zap.String("user", userID),
		zap.String("amount", req.Amount.StringFixed(2)))
	services.SendJSONResponse(w, http.StatusOK, map[string]any{
		"message":  message,
		"accounts": balances,
	})
}

// Reconcile handles GET /admin/accounts/{account_id}/reconcile.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathAccountID(w, r, "account_id")
	if !ok {
		return
	}

	result, err := h.ledger.Reconcile(r.Context(), accountID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	services.SendJSONResponse(w, http.StatusOK, result)
}
