package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
)

type QRHandler struct {
	service   QRPayments
	validator *services.ValidationHelper
}

func NewQRHandler(service QRPayments) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type GenerateQRRequest struct {
	AccountID int64           `json:"accountId" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type PayQRRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	FromAccountID int64  `json:"fromAccountId" validate:"required,gt=0"`
}

type GenerateQRResponse struct {
	QRCode    string          `json:"qrCode"`
	QRImage   string          `json:"qrImage"`
	AccountID int64           `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// GenerateQR handles POST /qr/generate: a code requesting payment into one of
// the caller's accounts.
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req GenerateQRRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	payment, image, err := h.service.GenerateQRCode(r.Context(), ownerID, req.AccountID, req.Amount)
	if err != nil {
		sendQRError(w, err)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, GenerateQRResponse{
		QRCode:    payment.Code,
		QRImage:   image,
		AccountID: payment.AccountID,
		Amount:    payment.Amount,
		ExpiresAt: payment.ExpiresAt,
	})
}

// PayQR handles POST /qr/pay: settles a scanned code from one of the
// caller's accounts.
func (h *QRHandler) PayQR(w http.ResponseWriter, r *http.Request) {
	payerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req PayQRRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.PayQRCode(r.Context(), req.Code, payerID, req.FromAccountID)
	if err != nil {
		sendQRError(w, err)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, map[string]any{
		"message": "Payment successful",
		"result":  result,
	})
}

func sendQRError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrQRUnavailable) {
		services.SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
		return
	}
	services.SendLedgerError(w, err)
}
