// Package service contains application services for login and time entries.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/kizami/internal/crypto"
	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/model"
)

// AuthService defines authentication operations.
type AuthService interface {
	// Login checks the throttle for the caller's address, then the credentials.
	Login(ctx context.Context, username, password, remoteAddr string) (model.Tokens, error)
	// VerifyToken validates an access token and returns its subject.
	VerifyToken(token string) (string, error)
}

// Admin is the single configured account.
type Admin struct {
	Username     string
	PasswordHash string // bcrypt
}

type AuthServiceImpl struct {
	admin     Admin
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(admin Admin, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{admin: admin, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Login authenticates against the configured admin account.
// A blocked address gets *errs.RateLimitError without the password being checked.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, remoteAddr string) (model.Tokens, error) {
	key := limiter.Key(remoteAddr)

	blocked, err := s.lim.IsBlocked(ctx, key)
	if err != nil {
		return model.Tokens{}, err
	}
	if blocked {
		retry, err := s.lim.RetryAfterSeconds(ctx, key)
		if err != nil {
			return model.Tokens{}, err
		}
		return model.Tokens{}, &errs.RateLimitError{RetryAfter: retry}
	}

	if !s.checkCredentials(username, password) {
		if err := s.lim.RegisterFailure(ctx, key); err != nil {
			return model.Tokens{}, err
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}

	if err := s.lim.Clear(ctx, key); err != nil {
		return model.Tokens{}, err
	}
	access, exp, err := s.issueAccessToken(username)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

func (s *AuthServiceImpl) checkCredentials(username, password string) bool {
	if s.admin.Username == "" || s.admin.PasswordHash == "" {
		return false
	}
	// both checks always run
	nameOK := pkgcrypto.EqualString(username, s.admin.Username)
	passOK := pkgcrypto.VerifyPassword([]byte(password), s.admin.PasswordHash)
	return nameOK && passOK
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(subject string) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	return signed, exp, err
}

// VerifyToken checks signature, method and expiry, with 30s of leeway.
func (s *AuthServiceImpl) VerifyToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}
