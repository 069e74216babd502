package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nexpay/backend/internal/audit"
	"github.com/nexpay/backend/internal/database"
	"github.com/nexpay/backend/internal/metrics"
	"github.com/nexpay/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	lockAccountQuery = `SELECT account_id, uuid, balance FROM accounts
		WHERE account_id = $1
		FOR UPDATE`

	lockOwnerAccountsQuery = `SELECT account_id, balance FROM accounts
		WHERE uuid = $1
		ORDER BY account_id
		FOR UPDATE`

	updateBalanceQuery = `UPDATE accounts SET balance = $1 WHERE account_id = $2`

	insertTransactionQuery = `INSERT INTO transactions (account_id, related_account_id, type, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	insertMutationQuery = `INSERT INTO mutation_history (account_id, related_account_id, uuid, action_type, amount, timestamp, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ownedBalanceQuery = `SELECT balance FROM accounts WHERE account_id = $1 AND uuid = $2`

	insertAccountQuery = `INSERT INTO accounts (uuid, balance) VALUES ($1, $2)
		RETURNING account_id, uuid, balance, created_at`

	listAccountsQuery = `SELECT account_id, uuid, balance, created_at FROM accounts
		WHERE uuid = $1
		ORDER BY account_id`

	ownerTotalQuery = `SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM accounts WHERE uuid = $1`

	listAllAccountsQuery = `SELECT a.account_id, a.uuid, u.username, a.balance
		FROM accounts a
		JOIN users u ON a.uuid = u.uuid
		ORDER BY a.account_id
		LIMIT $1 OFFSET $2`

	countAllAccountsQuery = `SELECT COUNT(*) FROM accounts a JOIN users u ON a.uuid = u.uuid`

	accountBalanceQuery = `SELECT balance FROM accounts WHERE account_id = $1`

	mutationSumQuery = `SELECT COALESCE(SUM(CASE WHEN action_type IN ('deduct_balance', 'transfer_out') THEN -amount ELSE amount END), 0)
		FROM mutation_history
		WHERE account_id = $1`
)

const maxNoteLength = 255

// maxAmount is the largest value a NUMERIC(12,2) column holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

// snapshotTx is used by read paths that issue more than one query.
var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// LedgerService is the balance engine. Every mutating operation runs as a
// single database transaction that locks the affected account rows with
// SELECT ... FOR UPDATE before reading their balances. Balances are never
// cached between calls.
type LedgerService struct {
	db      *sql.DB
	logger  *zap.Logger
	audit   *audit.AuditLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLedgerService(db *sql.DB, logger *zap.Logger, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		db:      db,
		logger:  logger.Named("ledger"),
		audit:   audit.NewAuditLogger(logger),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TransferResult is returned to the initiator of a committed transfer.
type TransferResult struct {
	FromAccountID int64           `json:"fromAccountId"`
	ToAccountID   int64           `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	SenderBalance decimal.Decimal `json:"senderBalance"`
	Timestamp     time.Time       `json:"timestamp"`
}

// OwnerBalance is the admin view of one user's holdings.
type OwnerBalance struct {
	UUID         string          `json:"uuid"`
	Accounts     int             `json:"accounts"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
}

// ValidateAmount checks that amount is a positive value with at most two
// fractional digits that fits the balance column.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("amount must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return validationError("amount must have at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return validationError("amount exceeds the maximum of %s", maxAmount.StringFixed(2))
	}
	return nil
}

// Deposit credits amount to every account owned by ownerID in one unit of
// work and records one add_balance mutation per account.
func (s *LedgerService) Deposit(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error) {
	return s.adjustOwnerBalances(ctx, "deposit", models.ActionAddBalance, ownerID, amount, note)
}

// Withdraw debits amount from every account owned by ownerID. If any account
// holds less than amount the whole call is rolled back.
func (s *LedgerService) Withdraw(ctx context.Context, ownerID string, amount decimal.Decimal, note string) ([]models.AccountBalance, error) {
	return s.adjustOwnerBalances(ctx, "withdraw", models.ActionDeductBalance, ownerID, amount, note)
}

func (s *LedgerService) adjustOwnerBalances(ctx context.Context, op, action, ownerID string, amount decimal.Decimal, note string) (balances []models.AccountBalance, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	if ownerID == "" {
		return nil, validationError("user id is required")
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if len(note) > maxNoteLength {
		return nil, validationError("note must be at most %d characters", maxNoteLength)
	}

	err = database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		accounts, err := s.lockOwnerAccounts(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return notFound("user has no bank account")
		}

		now := s.now()
		balances = make([]models.AccountBalance, 0, len(accounts))
		for _, account := range accounts {
			var newBalance decimal.Decimal
			if action == models.ActionDeductBalance {
				if account.Balance.LessThan(amount) {
					return insufficientFunds("insufficient balance in account %d", account.AccountID)
				}
				newBalance = account.Balance.Sub(amount)
			} else {
				newBalance = account.Balance.Add(amount)
			}

			if _, err := tx.ExecContext(ctx, updateBalanceQuery, newBalance, account.AccountID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, insertMutationQuery,
				account.AccountID, account.AccountID, ownerID, action, amount, now, note); err != nil {
				return err
			}
			balances = append(balances, models.AccountBalance{AccountID: account.AccountID, Balance: newBalance})
		}
		return nil
	})
	if err != nil {
		err = storeError(op, err)
		s.logFailure(op, ownerID, 0, amount, err)
		return nil, err
	}

	for _, b := range balances {
		s.audit.LogBalanceChange(ownerID, action, b.AccountID, amount, note)
	}
	s.metrics.AddMoved(op, amount.Mul(decimal.NewFromInt(int64(len(balances)))).InexactFloat64())
	s.logger.Info("balance adjusted",
		zap.String("operation", op),
		zap.String("owner", ownerID),
		zap.Int("accounts", len(balances)),
		zap.String("amount", amount.StringFixed(2)))
	return balances, nil
}

// Transfer moves amount from one account to another. Both rows are locked in
// ascending account id order so concurrent transfers over the same pair
// cannot deadlock. The sender account must belong to initiatorID; a foreign
// account is reported as not found.
func (s *LedgerService) Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal, initiatorID string) (result *TransferResult, err error) {
	start := time.Now()
	defer func() { s.observe("transfer", start, err) }()

	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if fromAccountID <= 0 || toAccountID <= 0 {
		return nil, validationError("account ids must be positive")
	}
	if fromAccountID == toAccountID {
		return nil, validationError("cannot transfer to the same account")
	}
	if initiatorID == "" {
		return nil, validationError("initiator id is required")
	}

	err = database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		firstLock, secondLock := fromAccountID, toAccountID
		if fromAccountID > toAccountID {
			firstLock, secondLock = toAccountID, fromAccountID
		}

		first, err := s.lockAccount(ctx, tx, firstLock)
		if err != nil {
			return err
		}
		second, err := s.lockAccount(ctx, tx, secondLock)
		if err != nil {
			return err
		}

		sender, receiver := first, second
		if firstLock != fromAccountID {
			sender, receiver = second, first
		}

		if sender == nil || sender.UUID != initiatorID {
			return notFound("sender account not found")
		}
		if sender.Balance.LessThan(amount) {
			return insufficientFunds("insufficient balance")
		}
		if receiver == nil {
			return notFound("receiver account not found")
		}

		senderBalance := sender.Balance.Sub(amount)
		receiverBalance := receiver.Balance.Add(amount)
		now := s.now()

		if _, err := tx.ExecContext(ctx, updateBalanceQuery, senderBalance, sender.AccountID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, updateBalanceQuery, receiverBalance, receiver.AccountID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, insertTransactionQuery,
			sender.AccountID, receiver.AccountID, models.TransactionTransferOut, amount, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertTransactionQuery,
			receiver.AccountID, sender.AccountID, models.TransactionTransferIn, amount, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, insertMutationQuery,
			sender.AccountID, receiver.AccountID, initiatorID, models.ActionTransferOut, amount, now,
			fmt.Sprintf("Transfer to account %d", receiver.AccountID)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertMutationQuery,
			receiver.AccountID, sender.AccountID, receiver.UUID, models.ActionTransferIn, amount, now,
			fmt.Sprintf("Transfer from account %d", sender.AccountID)); err != nil {
			return err
		}

		result = &TransferResult{
			FromAccountID: sender.AccountID,
			ToAccountID:   receiver.AccountID,
			Amount:        amount,
			SenderBalance: senderBalance,
			Timestamp:     now,
		}
		return nil
	})
	if err != nil {
		err = storeError("transfer", err)
		s.audit.LogTransfer(initiatorID, fromAccountID, toAccountID, amount, "FAILED")
		s.logFailure("transfer", initiatorID, fromAccountID, amount, err)
		return nil, err
	}

	s.audit.LogTransfer(initiatorID, fromAccountID, toAccountID, amount, "SUCCESS")
	s.metrics.AddMoved("transfer", amount.InexactFloat64())
	s.logger.Info("transfer committed",
		zap.Int64("from", fromAccountID),
		zap.Int64("to", toAccountID),
		zap.String("amount", amount.StringFixed(2)))
	return result, nil
}

// GetBalance returns the balance of accountID if ownerID owns it. Missing and
// foreign accounts are indistinguishable to the caller.
func (s *LedgerService) GetBalance(ctx context.Context, accountID int64, ownerID string) (balance decimal.Decimal, err error) {
	start := time.Now()
	defer func() { s.observe("get_balance", start, err) }()

	err = s.db.QueryRowContext(ctx, ownedBalanceQuery, accountID, ownerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, notFound("account not found")
	}
	if err != nil {
		return decimal.Zero, storeError("get balance", err)
	}
	return balance, nil
}

// OpenAccount creates an account for ownerID. A non-zero initial balance is
// recorded as an add_balance mutation in the same unit of work so the
// account reconciles from its first row.
func (s *LedgerService) OpenAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (account *models.Account, err error) {
	start := time.Now()
	defer func() { s.observe("open_account", start, err) }()

	if ownerID == "" {
		return nil, validationError("user id is required")
	}
	if initialBalance.IsNegative() {
		return nil, validationError("initial balance must not be negative")
	}
	if !initialBalance.IsZero() {
		if err := ValidateAmount(initialBalance); err != nil {
			return nil, err
		}
	}

	err = database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var created models.Account
		if err := tx.QueryRowContext(ctx, insertAccountQuery, ownerID, initialBalance).
			Scan(&created.AccountID, &created.UUID, &created.Balance, &created.CreatedAt); err != nil {
			return err
		}

		if initialBalance.IsPositive() {
			if _, err := tx.ExecContext(ctx, insertMutationQuery,
				created.AccountID, created.AccountID, ownerID, models.ActionAddBalance, initialBalance, s.now(),
				"Initial deposit"); err != nil {
				return err
			}
		}
		account = &created
		return nil
	})
	if err != nil {
		err = storeError("open account", err)
		s.logFailure("open_account", ownerID, 0, initialBalance, err)
		return nil, err
	}

	s.logger.Info("account opened", zap.String("owner", ownerID), zap.Int64("account_id", account.AccountID))
	return account, nil
}

// ListAccounts returns every account of ownerID ordered by id.
func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, listAccountsQuery, ownerID)
	if err != nil {
		return nil, storeError("list accounts", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.AccountID, &a.UUID, &a.Balance, &a.CreatedAt); err != nil {
			return nil, storeError("list accounts", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list accounts", err)
	}
	return accounts, nil
}

// OwnerTotalBalance sums the balances of every account of ownerID. A user
// without accounts has a zero total.
func (s *LedgerService) OwnerTotalBalance(ctx context.Context, ownerID string) (*OwnerBalance, error) {
	result := &OwnerBalance{UUID: ownerID}
	if err := s.db.QueryRowContext(ctx, ownerTotalQuery, ownerID).Scan(&result.Accounts, &result.TotalBalance); err != nil {
		return nil, storeError("owner total balance", err)
	}
	return result, nil
}

// ListAllAccounts is the admin listing of every account with its owner's
// username, ordered by account id.
func (s *LedgerService) ListAllAccounts(ctx context.Context, page, pageSize int) (*models.Page[models.AccountSummary], error) {
	page, pageSize, err := normalizePage(page, pageSize, defaultAdminPageSize, maxPageSize)
	if err != nil {
		return nil, err
	}

	result := &models.Page[models.AccountSummary]{Items: []models.AccountSummary{}, Page: page, PageSize: pageSize}
	err = database.WithTx(ctx, s.db, snapshotTx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listAllAccountsQuery, pageSize, (page-1)*pageSize)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a models.AccountSummary
			if err := rows.Scan(&a.AccountID, &a.UUID, &a.Username, &a.Balance); err != nil {
				return err
			}
			result.Items = append(result.Items, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, countAllAccountsQuery).Scan(&result.Total)
	})
	if err != nil {
		return nil, storeError("list all accounts", err)
	}
	result.TotalPages = totalPages(result.Total, pageSize)
	return result, nil
}

// Reconcile compares the stored balance of accountID with the signed sum of
// its mutation history inside one snapshot.
func (s *LedgerService) Reconcile(ctx context.Context, accountID int64) (*models.Reconciliation, error) {
	result := &models.Reconciliation{AccountID: accountID}
	err := database.WithTx(ctx, s.db, snapshotTx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, accountBalanceQuery, accountID).Scan(&result.Balance)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("account not found")
		}
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, mutationSumQuery, accountID).Scan(&result.MutationSum)
	})
	if err != nil {
		return nil, storeError("reconcile", err)
	}

	result.Consistent = result.Balance.Equal(result.MutationSum)
	if !result.Consistent {
		s.logger.Error("account does not reconcile",
			zap.Int64("account_id", accountID),
			zap.String("balance", result.Balance.StringFixed(2)),
			zap.String("mutation_sum", result.MutationSum.StringFixed(2)))
	}
	return result, nil
}

// lockAccount returns nil without error when the account does not exist.
func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, lockAccountQuery, accountID).
		Scan(&account.AccountID, &account.UUID, &account.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) lockOwnerAccounts(ctx context.Context, tx *sql.Tx, ownerID string) ([]models.Account, error) {
	rows, err := tx.QueryContext(ctx, lockOwnerAccountsQuery, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a := models.Account{UUID: ownerID}
		if err := rows.Scan(&a.AccountID, &a.Balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *LedgerService) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	s.metrics.Observe(op, outcome, start)
}

func (s *LedgerService) logFailure(op, actorID string, accountID int64, amount decimal.Decimal, err error) {
	s.audit.LogError(actorID, op, accountID, amount, err)
	if KindOf(err) == KindStore {
		s.logger.Error("ledger operation failed", zap.String("operation", op), zap.Error(err))
		return
	}
	s.logger.Info("ledger operation rejected",
		zap.String("operation", op),
		zap.String("kind", string(KindOf(err))),
		zap.String("reason", err.Error()))
}
