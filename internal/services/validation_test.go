package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentialsForm struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&credentialsForm{Username: "alice", Password: "secret123"})
		assert.NoError(t, err)
	})

	t.Run("invalid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&credentialsForm{Username: "al"})
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		assert.Len(t, validationErrors, 2)
	})
}

func TestValidationHelper_DecodeAndValidate(t *testing.T) {
	vh := NewValidationHelper()

	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
		wantError  string
	}{
		{"valid body", `{"username":"alice","password":"secret123"}`, true, http.StatusOK, ""},
		{"malformed json", `{"username":`, false, http.StatusBadRequest, "Invalid request body"},
		{"unknown field", `{"username":"alice","password":"secret123","role":"admin"}`, false, http.StatusBadRequest, "Invalid request body"},
		{"two objects", `{"username":"alice","password":"secret123"}{}`, false, http.StatusBadRequest, "Request body must only contain a single JSON object"},
		{"fails validation", `{"username":"al","password":"x"}`, false, http.StatusBadRequest, "Validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			var form credentialsForm
			ok := vh.DecodeAndValidate(w, r, &form)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, w.Code)
			if !tt.wantOK {
				var response ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, tt.wantError, response.Error)
			}
		})
	}
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&credentialsForm{})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details, "Username")
		assert.Contains(t, response.Details, "Password")
	})

	t.Run("non validation error carries no details", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Bad input", http.StatusBadRequest, errors.New("plain"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}

func TestSendLedgerError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"not found", notFound("receiver account not found"), http.StatusNotFound, "receiver account not found"},
		{"insufficient funds", insufficientFunds("insufficient balance"), http.StatusUnprocessableEntity, "insufficient balance"},
		{"validation", validationError("amount must be greater than zero"), http.StatusBadRequest, "amount must be greater than zero"},
		{"conflict", &LedgerError{Kind: KindConflict, Message: "transfer: concurrent update conflict, retry later"}, http.StatusConflict, "transfer: concurrent update conflict, retry later"},
		{"store error is hidden", storeError("transfer", errors.New("dial tcp: refused")), http.StatusInternalServerError, "An Internal Error Occurred"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "An Internal Error Occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendLedgerError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantError, response.Error)
		})
	}
}
