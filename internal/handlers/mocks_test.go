package handlers

import (
	"context"

	"github.com/nexpay/backend/internal/models"
	"github.com/nexpay/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Deposit(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error) {
	args := m.Called(ownerID, amount.String(), note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccountBalance), args.Error(1)
}

func (m *MockLedger) Withdraw(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error) {
	args := m.Called(ownerID, amount.String(), note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccountBalance), args.Error(1)
}

func (m *MockLedger) Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal, initiatorID string) (*services.TransferResult, error) {
	args := m.Called(fromAccountID, toAccountID, amount.String(), initiatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TransferResult), args.Error(1)
}

func (m *MockLedger) GetBalance(ctx context.Context, accountID int64, ownerID string) (decimal.Decimal, error) {
	args := m.Called(accountID, ownerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) OpenAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (*models.Account, error) {
	args := m.Called(ownerID, initialBalance.String())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedger) ListAccounts(ctx context.Context, ownerID string) ([]models.Account, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockLedger) OwnerTotalBalance(ctx context.Context, ownerID string) (*services.OwnerBalance, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.OwnerBalance), args.Error(1)
}

func (m *MockLedger) ListAllAccounts(ctx context.Context, page, pageSize int) (*models.Page[models.AccountSummary], error) {
	args := m.Called(page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.AccountSummary]), args.Error(1)
}

func (m *MockLedger) Reconcile(ctx context.Context, accountID int64) (*models.Reconciliation, error) {
	args := m.Called(accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reconciliation), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) ListTransactions(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.Transaction], error) {
	args := m.Called(ownerID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.Transaction]), args.Error(1)
}

func (m *MockHistory) ListMutations(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.MutationHistory], error) {
	args := m.Called(ownerID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.MutationHistory]), args.Error(1)
}

type MockQR struct {
	mock.Mock
}

func (m *MockQR) GenerateQRCode(ctx context.Context, ownerID string, accountID int64, amount decimal.Decimal) (*services.PaymentRequest, string, error) {
	args := m.Called(ownerID, accountID, amount.String())
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*services.PaymentRequest), args.String(1), args.Error(2)
}

func (m *MockQR) PayQRCode(ctx context.Context, code, payerID string, fromAccountID int64) (*services.TransferResult, error) {
	args := m.Called(code, payerID, fromAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TransferResult), args.Error(1)
}
