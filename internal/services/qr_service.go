package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrCodeTTL = 5 * time.Minute

// ErrQRUnavailable is returned when no Redis client is configured.
var ErrQRUnavailable = errors.New("QR payments are unavailable")

// PaymentRequest is the payload stored behind a receive-money QR code.
type PaymentRequest struct {
	Code      string          `json:"code"`
	AccountID int64           `json:"accountId"`
	OwnerID   string          `json:"ownerId"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// QRService issues single-use payment codes and settles them through the
// ledger's Transfer.
type QRService struct {
	redis  *redis.Client
	ledger *LedgerService
	logger *zap.Logger
	now    func() time.Time
	nonce  func() (string, error)
}

func NewQRService(redisClient *redis.Client, ledger *LedgerService, logger *zap.Logger) *QRService {
	return &QRService{
		redis:  redisClient,
		ledger: ledger,
		logger: logger.Named("qr"),
		now:    time.Now,
		nonce:  generateNonce,
	}
}

// GenerateQRCode creates a code asking for amount to be paid into accountID,
// which must belong to ownerID. It returns the request and a base64 PNG.
func (s *QRService) GenerateQRCode(ctx context.Context, ownerID string, accountID int64, amount decimal.Decimal) (*PaymentRequest, string, error) {
	if s.redis == nil {
		return nil, "", ErrQRUnavailable
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, "", err
	}
	if _, err := s.ledger.GetBalance(ctx, accountID, ownerID); err != nil {
		return nil, "", err
	}

	code, err := s.nonce()
	if err != nil {
		return nil, "", err
	}

	req := &PaymentRequest{
		Code:      code,
		AccountID: accountID,
		OwnerID:   ownerID,
		Amount:    amount,
		ExpiresAt: s.now().Add(qrCodeTTL).UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}

	if err := s.redis.Set(ctx, qrKey(code), data, qrCodeTTL).Err(); err != nil {
		return nil, "", fmt.Errorf("store QR code: %w", err)
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return nil, "", fmt.Errorf("render QR code: %w", err)
	}

	s.logger.Info("QR code issued", zap.Int64("account_id", accountID), zap.String("amount", amount.StringFixed(2)))
	return req, base64.StdEncoding.EncodeToString(png), nil
}

// PayQRCode consumes code and transfers its amount from fromAccountID, which
// must belong to payerID. A code whose transfer fails is put back so it can
// be retried until it expires.
func (s *QRService) PayQRCode(ctx context.Context, code, payerID string, fromAccountID int64) (*TransferResult, error) {
	if s.redis == nil {
		return nil, ErrQRUnavailable
	}

	data, err := s.redis.GetDel(ctx, qrKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("invalid or expired QR code")
	}
	if err != nil {
		return nil, fmt.Errorf("load QR code: %w", err)
	}

	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode QR code: %w", err)
	}

	result, err := s.ledger.Transfer(ctx, fromAccountID, req.AccountID, req.Amount, payerID)
	if err != nil {
		if ttl := req.ExpiresAt.Sub(s.now()); ttl > 0 {
			if restoreErr := s.redis.Set(ctx, qrKey(code), data, ttl).Err(); restoreErr != nil {
				s.logger.Warn("QR code could not be restored", zap.Error(restoreErr))
			}
		}
		return nil, err
	}

	s.logger.Info("QR code paid", zap.Int64("from", fromAccountID), zap.Int64("to", req.AccountID))
	return result, nil
}

func qrKey(code string) string {
	return "qr:" + code
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
