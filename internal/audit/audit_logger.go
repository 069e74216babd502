package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuditEvent struct {
	Timestamp        time.Time
	EventType        string
	AccountID        int64
	RelatedAccountID int64
	ActorID          string
	Amount           decimal.Decimal
	Status           string
	Details          string
}

// AuditLogger writes one structured line per balance-changing event. It
// complements the mutation_history table: it also records attempts that were
// rolled back.
type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogTransfer(actorID string, fromAccount, toAccount int64, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		Timestamp:        time.Now(),
		EventType:        "TRANSFER",
		AccountID:        fromAccount,
		RelatedAccountID: toAccount,
		ActorID:          actorID,
		Amount:           amount,
		Status:           status,
	})
}

func (a *AuditLogger) LogBalanceChange(actorID, operation string, accountID int64, amount decimal.Decimal, note string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		ActorID:   actorID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   note,
	})
}

func (a *AuditLogger) LogError(actorID, operation string, accountID int64, amount decimal.Decimal, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		ActorID:   actorID,
		Amount:    amount,
		Status:    "FAILED",
		Details:   err.Error(),
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.Int64("account_id", event.AccountID),
		zap.String("actor_id", event.ActorID),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.String("status", event.Status),
	}
	if event.RelatedAccountID != 0 {
		fields = append(fields, zap.Int64("related_account_id", event.RelatedAccountID))
	}
	if event.Details != "" {
		fields = append(fields, zap.String("details", event.Details))
	}

	if event.Status == "FAILED" {
		a.logger.Warn("AUDIT", fields...)
		return
	}
	a.logger.Info("AUDIT", fields...)
}
