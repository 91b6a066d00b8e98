package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/repository/filestore"
)

type fakeLimiter struct {
	blocked    bool
	retry      int
	blockedErr error
	failErr    error
	clearErr   error

	keys         []string
	failureCalls int
	clearCalls   int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) IsBlocked(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.blocked, l.blockedErr
}
func (l *fakeLimiter) RetryAfterSeconds(context.Context, string) (int, error) {
	return l.retry, nil
}
func (l *fakeLimiter) RegisterFailure(context.Context, string) error {
	l.failureCalls++
	return l.failErr
}
func (l *fakeLimiter) Clear(context.Context, string) error {
	l.clearCalls++
	return l.clearErr
}

func adminFor(t *testing.T, user, pw string) Admin {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return Admin{Username: user, PasswordHash: string(h)}
}

func TestAuth_Login_LimiterAndCreds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lim := &fakeLimiter{}
	s := NewAuthService(adminFor(t, "admin", "correct"), []byte("secret"), 2*time.Minute, lim)

	lim.blockedErr = errs.ErrStorage
	if _, err := s.Login(ctx, "admin", "correct", "1.2.3.4:5"); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("want storage error propagated, got %v", err)
	}
	lim.blockedErr = nil

	lim.blocked, lim.retry = true, 42
	_, err := s.Login(ctx, "admin", "correct", "1.2.3.4:5")
	var rl *errs.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 42 || !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want RateLimitError{42}, got %v", err)
	}
	if lim.failureCalls != 0 || lim.clearCalls != 0 {
		t.Fatalf("blocked login must not touch the counters")
	}
	lim.blocked = false

	if _, err := s.Login(ctx, "admin", "wrong", "1.2.3.4:5"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
	if _, err := s.Login(ctx, "root", "correct", "1.2.3.4:5"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong username, got %v", err)
	}
	if lim.failureCalls != 2 {
		t.Fatalf("failureCalls = %d, want 2", lim.failureCalls)
	}

	lim.failErr = errs.ErrStorage
	if _, err := s.Login(ctx, "admin", "wrong", ""); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("want storage error from RegisterFailure, got %v", err)
	}
	lim.failErr = nil

	tok, err := s.Login(ctx, "admin", "correct", "1.2.3.4:5")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if lim.clearCalls != 1 {
		t.Fatalf("expected Clear after success")
	}
	if lim.keys[0] != "login:1.2.3.4" || lim.keys[len(lim.keys)-2] != "login:unknown" {
		t.Fatalf("unexpected keys: %v", lim.keys)
	}
}

func TestAuth_Login_UnconfiguredAdminNeverMatches(t *testing.T) {
	t.Parallel()

	lim := &fakeLimiter{}
	s := NewAuthService(Admin{}, []byte("k"), time.Minute, lim)
	if _, err := s.Login(context.Background(), "", "", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if lim.failureCalls != 1 {
		t.Fatalf("failure must be counted")
	}
}

func TestAuth_VerifyToken(t *testing.T) {
	t.Parallel()

	s := NewAuthService(adminFor(t, "admin", "p"), []byte("k"), time.Minute, &fakeLimiter{})
	tok, err := s.Login(context.Background(), "admin", "p", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	sub, err := s.VerifyToken(tok.AccessToken)
	if err != nil || sub != "admin" {
		t.Fatalf("VerifyToken = %q, %v", sub, err)
	}

	other := NewAuthService(Admin{}, []byte("other-key"), time.Minute, &fakeLimiter{})
	if _, err := other.VerifyToken(tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for foreign key, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := s.VerifyToken(tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for expired token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "admin"})
	raw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := s.VerifyToken(raw); err == nil {
		t.Fatalf("unsigned token accepted")
	}
	if _, err := s.VerifyToken("garbage"); err == nil {
		t.Fatalf("garbage token accepted")
	}
}

// Full flow against the file store: the lockout engages after MaxAttempts and
// even the correct password is refused until it passes.
func TestAuth_Login_LocksOutWithFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := limiter.Config{MaxAttempts: 3, Window: 5 * time.Minute, Lock: 15 * time.Minute}
	now := time.Unix(1_700_000_000, 0)
	store := filestore.New(filepath.Join(t.TempDir(), "login_rate_limiter.json"), cfg.MaxAge())
	th := limiter.New(store, cfg, limiter.WithClock(func() time.Time { return now }))
	s := NewAuthService(adminFor(t, "admin", "correct"), []byte("k"), time.Minute, th)

	for i := 0; i < 3; i++ {
		if _, err := s.Login(ctx, "admin", "wrong", "10.0.0.1:4000"); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	_, err := s.Login(ctx, "admin", "correct", "10.0.0.1:4001")
	var rl *errs.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 900 {
		t.Fatalf("want RateLimitError{900}, got %v", err)
	}

	if _, err := s.Login(ctx, "admin", "correct", "10.0.0.2:4000"); err != nil {
		t.Fatalf("other address must not be blocked: %v", err)
	}

	now = now.Add(15*time.Minute + time.Second)
	if _, err := s.Login(ctx, "admin", "correct", "10.0.0.1:4002"); err != nil {
		t.Fatalf("lock should have expired: %v", err)
	}
}
