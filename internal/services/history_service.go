package services

import (
	"context"
	"database/sql"
	"math"

	"github.com/lib/pq"
	"github.com/nexpay/backend/internal/config"
	"github.com/nexpay/backend/internal/database"
	"github.com/nexpay/backend/internal/models"
	"go.uber.org/zap"
)

const (
	ownerAccountIDsQuery = `SELECT account_id FROM accounts WHERE uuid = $1 ORDER BY account_id`

	transactionsPageQuery = `SELECT trc_id, account_id, related_account_id, type, amount, timestamp
		FROM transactions
		WHERE account_id = ANY($1)
		ORDER BY timestamp DESC, trc_id DESC
		LIMIT $2 OFFSET $3`

	transactionsCountQuery = `SELECT COUNT(*) FROM transactions WHERE account_id = ANY($1)`

	mutationsPageQuery = `SELECT muta_id, account_id, related_account_id, COALESCE(uuid, ''), action_type, amount, timestamp, note
		FROM mutation_history
		WHERE account_id = ANY($1)
		ORDER BY timestamp DESC, muta_id DESC
		LIMIT $2 OFFSET $3`

	mutationsCountQuery = `SELECT COUNT(*) FROM mutation_history WHERE account_id = ANY($1)`
)

const (
	defaultAdminPageSize = 30
	maxPageSize          = 100
)

// HistoryService serves paginated reads over transactions and mutation
// history. The page and its total are read from one snapshot.
type HistoryService struct {
	db         *sql.DB
	logger     *zap.Logger
	pagination config.PaginationConfig
}

func NewHistoryService(db *sql.DB, logger *zap.Logger, pagination config.PaginationConfig) *HistoryService {
	return &HistoryService{
		db:         db,
		logger:     logger.Named("history"),
		pagination: pagination,
	}
}

// ListTransactions returns the transfer records of every account owned by
// ownerID, newest first.
func (s *HistoryService) ListTransactions(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.Transaction], error) {
	page, pageSize, err := normalizePage(page, pageSize, s.pagination.HistoryPageSize, s.pagination.MaxPageSize)
	if err != nil {
		return nil, err
	}
	result := &models.Page[models.Transaction]{Items: []models.Transaction{}, Page: page, PageSize: pageSize}

	err = database.WithTx(ctx, s.db, snapshotTx, func(tx *sql.Tx) error {
		ids, err := ownerAccountIDs(ctx, tx, ownerID)
		if err != nil || len(ids) == 0 {
			return err
		}

		rows, err := tx.QueryContext(ctx, transactionsPageQuery, pq.Array(ids), pageSize, (page-1)*pageSize)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t models.Transaction
			if err := rows.Scan(&t.TrcID, &t.AccountID, &t.RelatedAccountID, &t.Type, &t.Amount, &t.Timestamp); err != nil {
				return err
			}
			result.Items = append(result.Items, t)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, transactionsCountQuery, pq.Array(ids)).Scan(&result.Total)
	})
	if err != nil {
		s.logger.Error("list transactions failed", zap.String("owner", ownerID), zap.Error(err))
		return nil, storeError("list transactions", err)
	}

	result.TotalPages = totalPages(result.Total, pageSize)
	return result, nil
}

// ListMutations is ListTransactions over mutation history.
func (s *HistoryService) ListMutations(ctx context.Context, ownerID string, page, pageSize int) (*models.Page[models.MutationHistory], error) {
	page, pageSize, err := normalizePage(page, pageSize, s.pagination.HistoryPageSize, s.pagination.MaxPageSize)
	if err != nil {
		return nil, err
	}
	result := &models.Page[models.MutationHistory]{Items: []models.MutationHistory{}, Page: page, PageSize: pageSize}

	err = database.WithTx(ctx, s.db, snapshotTx, func(tx *sql.Tx) error {
		ids, err := ownerAccountIDs(ctx, tx, ownerID)
		if err != nil || len(ids) == 0 {
			return err
		}

		rows, err := tx.QueryContext(ctx, mutationsPageQuery, pq.Array(ids), pageSize, (page-1)*pageSize)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m models.MutationHistory
			if err := rows.Scan(&m.MutaID, &m.AccountID, &m.RelatedAccountID, &m.UUID,
				&m.ActionType, &m.Amount, &m.Timestamp, &m.Note); err != nil {
				return err
			}
			result.Items = append(result.Items, m)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, mutationsCountQuery, pq.Array(ids)).Scan(&result.Total)
	})
	if err != nil {
		s.logger.Error("list mutations failed", zap.String("owner", ownerID), zap.Error(err))
		return nil, storeError("list mutations", err)
	}

	result.TotalPages = totalPages(result.Total, pageSize)
	return result, nil
}

func ownerAccountIDs(ctx context.Context, tx *sql.Tx, ownerID string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, ownerAccountIDsQuery, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// normalizePage clamps a requested page to valid bounds: pages start at 1,
// a non-positive size falls back to defaultSize and no size exceeds maxSize.
// A page whose offset does not fit in an int is rejected.
func normalizePage(page, pageSize, defaultSize, maxSize int) (int, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page > math.MaxInt/pageSize {
		return 0, 0, validationError("page %d is out of range", page)
	}
	return page, pageSize, nil
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
