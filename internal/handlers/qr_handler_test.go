package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nexpay/backend/internal/middleware"
	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQRRouter(qr *MockQR) chi.Router {
	h := NewQRHandler(qr)

	r := chi.NewRouter()
	r.Use(asCaller(middleware.Identity{UUID: "usr-b", Username: "bob", Role: "user"}))
	r.Post("/qr/generate", h.GenerateQR)
	r.Post("/qr/pay", h.PayQR)
	return r
}

func TestQRHandler_GenerateQR(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		expires := time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC)
		qr := &MockQR{}
		qr.On("GenerateQRCode", "usr-b", int64(4), "12.5").Return(&services.PaymentRequest{
			Code:      "abc123",
			AccountID: 4,
			OwnerID:   "usr-b",
			Amount:    decimal.RequireFromString("12.5"),
			ExpiresAt: expires,
		}, "aW1hZ2U=", nil)

		w := doRequest(newQRRouter(qr), http.MethodPost, "/qr/generate",
			bytes.NewBufferString(`{"accountId": 4, "amount": 12.50}`))

		require.Equal(t, http.StatusOK, w.Code)
		var body GenerateQRResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "abc123", body.QRCode)
		assert.Equal(t, "aW1hZ2U=", body.QRImage)
		assert.True(t, body.ExpiresAt.Equal(expires))
		qr.AssertExpectations(t)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		qr := &MockQR{}
		qr.On("GenerateQRCode", "usr-b", int64(4), "10").Return(nil, "", services.ErrQRUnavailable)

		w := doRequest(newQRRouter(qr), http.MethodPost, "/qr/generate",
			bytes.NewBufferString(`{"accountId": 4, "amount": 10}`))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("missing account", func(t *testing.T) {
		w := doRequest(newQRRouter(&MockQR{}), http.MethodPost, "/qr/generate",
			bytes.NewBufferString(`{"amount": 10}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQRHandler_PayQR(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		qr := &MockQR{}
		qr.On("PayQRCode", "abc123", "usr-b", int64(9)).Return(&services.TransferResult{
			FromAccountID: 9,
			ToAccountID:   4,
			Amount:        decimal.NewFromInt(10),
			SenderBalance: decimal.NewFromInt(90),
		}, nil)

		w := doRequest(newQRRouter(qr), http.MethodPost, "/qr/pay",
			bytes.NewBufferString(`{"code": "abc123", "fromAccountId": 9}`))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Message string                  `json:"message"`
			Result  services.TransferResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Payment successful", body.Message)
		assert.Equal(t, int64(4), body.Result.ToAccountID)
		qr.AssertExpectations(t)
	})

	t.Run("expired code", func(t *testing.T) {
		qr := &MockQR{}
		qr.On("PayQRCode", "gone", "usr-b", int64(9)).
			Return(nil, &services.LedgerError{Kind: services.KindNotFound, Message: "invalid or expired QR code"})

		w := doRequest(newQRRouter(qr), http.MethodPost, "/qr/pay",
			bytes.NewBufferString(`{"code": "gone", "fromAccountId": 9}`))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "invalid or expired QR code", decodeError(t, w))
	})

	t.Run("unknown field", func(t *testing.T) {
		w := doRequest(newQRRouter(&MockQR{}), http.MethodPost, "/qr/pay",
			bytes.NewBufferString(`{"code": "abc", "fromAccountId": 9, "amount": 1}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
