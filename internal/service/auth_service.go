package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"warehouse-service/internal/store"
	"warehouse-service/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims is the access token payload
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the numeric subject
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthService issues and verifies HS256 access tokens
type AuthService struct {
	store  store.Repository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(store store.Repository, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

var errBadCredentials = newError(ErrUnauthorized, "Invalid email or password", nil)

// Login verifies credentials and returns a signed access token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.LoginAttemptsTotal.WithLabelValues("unknown_user").Inc()
			return nil, errBadCredentials
		}
		return nil, newError(ErrPersistence, "Authentication failed", err)
	}

	if !CheckPassword(user.PasswordHash, req.Password) {
		util.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, errBadCredentials
	}

	token, err := s.issue(user.ID)
	if err != nil {
		s.logger.Error("Failed to sign access token", zap.Error(err))
		return nil, fmt.Errorf("sign token: %w", err)
	}

	util.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

func (s *AuthService) issue(userID int64) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token string
func (s *AuthService) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, newError(ErrUnauthorized, "Invalid or expired token", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, newError(ErrUnauthorized, "Invalid or expired token", jwt.ErrTokenInvalidClaims)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, newError(ErrUnauthorized, "Invalid or expired token", err)
	}
	return claims, nil
}
