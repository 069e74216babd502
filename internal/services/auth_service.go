package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nexpay/backend/internal/config"
	"github.com/nexpay/backend/internal/middleware"
	"github.com/nexpay/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	insertUserQuery = `INSERT INTO users (uuid, username, password, role_id, is_active)
		VALUES ($1, $2, $3, (SELECT role_id FROM roles WHERE role = $4), TRUE)`

	loginUserQuery = `SELECT u.uuid, u.username, u.password, u.is_active, COALESCE(r.role, '')
		FROM users u
		LEFT JOIN roles r ON u.role_id = r.role_id
		WHERE u.username = $1`

	userInfoQuery = `SELECT u.uuid, u.username, COALESCE(r.role, ''), u.avatar_url, u.is_active
		FROM users u
		LEFT JOIN roles r ON u.role_id = r.role_id
		WHERE u.uuid = $1`

	deactivateUserQuery = `UPDATE users SET is_active = FALSE WHERE uuid = $1 AND is_active = TRUE`

	deleteUserQuery = `DELETE FROM users WHERE uuid = $1`
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	jwt       config.JWTConfig
	argon2    config.Argon2Config
	validator *ValidationHelper
	logger    *zap.Logger
	now       func() time.Time
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type RegisterResponse struct {
	Message  string `json:"message"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, jwtCfg config.JWTConfig, argonCfg config.Argon2Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		jwt:       jwtCfg,
		argon2:    argonCfg,
		validator: NewValidationHelper(),
		logger:    logger.Named("auth"),
		now:       time.Now,
	}
}

// Register creates a user with the user role.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	userID := newUserID()
	_, err = s.db.ExecContext(r.Context(), insertUserQuery, userID, req.Username, hashedPassword, models.RoleUser)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			SendErrorResponse(w, "Username already exists", http.StatusConflict, nil)
			return
		}
		s.logger.Error("user creation failed", zap.String("username", req.Username), zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Info("user registered", zap.String("uuid", userID), zap.String("username", req.Username))
	SendJSONResponse(w, http.StatusCreated, RegisterResponse{
		Message:  "Registration successful",
		UUID:     userID,
		Username: req.Username,
	})
}

// Login verifies credentials and issues a bearer token.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	var (
		identity       middleware.Identity
		hashedPassword string
		active         bool
	)
	err := s.db.QueryRowContext(r.Context(), loginUserQuery, req.Username).
		Scan(&identity.UUID, &identity.Username, &hashedPassword, &active, &identity.Role)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		SendErrorResponse(w, "Username not found or account inactive", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		s.logger.Error("login lookup failed", zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if !s.verifyPassword(req.Password, hashedPassword) {
		s.logger.Info("login rejected", zap.String("username", req.Username))
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if identity.Role == "" {
		SendErrorResponse(w, "User has no role assigned", http.StatusBadRequest, nil)
		return
	}

	token, err := s.GenerateToken(identity)
	if err != nil {
		s.logger.Error("token signing failed", zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Info("login successful", zap.String("uuid", identity.UUID))
	SendJSONResponse(w, http.StatusOK, AuthResponse{Message: "Login successful", Token: token})
}

// Logout blacklists the presented token until it expires.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.revoke(r.Context(), middleware.BearerToken(r)); err != nil {
		s.logger.Error("token blacklist failed", zap.Error(err))
		SendErrorResponse(w, "Failed to revoke token", http.StatusInternalServerError, nil)
		return
	}
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// UserInfo returns the profile of the authenticated caller.
func (s *AuthService) UserInfo(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(), userInfoQuery, identity.UUID).
		Scan(&user.UUID, &user.Username, &user.Role, &user.AvatarURL, &user.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		s.logger.Error("user info lookup failed", zap.String("uuid", identity.UUID), zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, user)
}

// DeactivateSelf marks the caller inactive and revokes the current token.
func (s *AuthService) DeactivateSelf(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	result, err := s.db.ExecContext(r.Context(), deactivateUserQuery, identity.UUID)
	if err != nil {
		s.logger.Error("deactivation failed", zap.String("uuid", identity.UUID), zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Account not found or already inactive", http.StatusNotFound, nil)
		return
	}

	if err := s.revoke(r.Context(), middleware.BearerToken(r)); err != nil {
		s.logger.Warn("token blacklist failed after deactivation", zap.Error(err))
	}

	s.logger.Info("user deactivated", zap.String("uuid", identity.UUID))
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Account deactivated"})
}

// DeleteUser removes a user and, by cascade, their accounts and history.
func (s *AuthService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		SendErrorResponse(w, "user_id is required", http.StatusBadRequest, nil)
		return
	}
	if identity, ok := middleware.IdentityFrom(r.Context()); ok && identity.UUID == userID {
		SendErrorResponse(w, "Administrators cannot delete themselves", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.ExecContext(r.Context(), deleteUserQuery, userID)
	if err != nil {
		s.logger.Error("user deletion failed", zap.String("uuid", userID), zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	s.logger.Info("user deleted", zap.String("uuid", userID))
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// GenerateToken signs an HS256 token for identity.
func (s *AuthService) GenerateToken(identity middleware.Identity) (string, error) {
	now := s.now()
	claims := middleware.Claims{
		UUID:     identity.UUID,
		Username: identity.Username,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwt.Expiry())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwt.SecretKey))
}

func (s *AuthService) revoke(ctx context.Context, token string) error {
	if s.redis == nil || token == "" {
		return nil
	}

	ttl := s.jwt.Expiry()
	if claims, err := middleware.ParseToken(token, s.jwt.SecretKey); err == nil && claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, middleware.BlacklistKey(token), "1", ttl).Err()
}

func (s *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, s.argon2.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, s.argon2.Time, s.argon2.Memory, s.argon2.Threads, s.argon2.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, s.argon2.Time, s.argon2.Memory, s.argon2.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}

func newUserID() string {
	return "usr-" + uuid.NewString()
}
