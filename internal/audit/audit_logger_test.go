package audit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewAuditLogger(zap.New(core)), logs
}

func TestAuditLogger_LogTransfer(t *testing.T) {
	a, logs := newObserved()

	a.LogTransfer("usr-1", 1, 2, decimal.RequireFromString("30"), "SUCCESS")

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "TRANSFER", ctx["event_type"])
	assert.Equal(t, int64(1), ctx["account_id"])
	assert.Equal(t, int64(2), ctx["related_account_id"])
	assert.Equal(t, "30.00", ctx["amount"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}

func TestAuditLogger_LogError(t *testing.T) {
	a, logs := newObserved()

	a.LogError("usr-1", "WITHDRAW", 7, decimal.NewFromInt(5), errors.New("insufficient balance"))

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "FAILED", ctx["status"])
	assert.Equal(t, "insufficient balance", ctx["details"])
	_, hasRelated := ctx["related_account_id"]
	assert.False(t, hasRelated)
}

func TestAuditLogger_LogBalanceChange(t *testing.T) {
	a, logs := newObserved()

	a.LogBalanceChange("usr-admin", "DEPOSIT", 3, decimal.RequireFromString("10.5"), "bonus")

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "DEPOSIT", ctx["event_type"])
	assert.Equal(t, "10.50", ctx["amount"])
	assert.Equal(t, "bonus", ctx["details"])
}
