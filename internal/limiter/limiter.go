// Package limiter defines the login throttle: a sliding failure window followed
// by a temporary lockout, kept in a ThrottleStore shared by every worker process.
package limiter

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
//
// IsBlocked and the following RegisterFailure/Clear are separate lock-protected
// operations, so a key may record one failure beyond MaxAttempts before its block
// becomes visible to a concurrent caller.
type Limiter interface {
	// IsBlocked reports whether key is locked out right now.
	IsBlocked(ctx context.Context, key string) (bool, error)
	// RetryAfterSeconds returns the remaining lockout, 0 when not blocked.
	RetryAfterSeconds(ctx context.Context, key string) (int, error)
	// RegisterFailure records a failed attempt; may place a temporary block.
	RegisterFailure(ctx context.Context, key string) error
	// Clear forgets key entirely after a successful login.
	Clear(ctx context.Context, key string) error
}

// Config holds the throttle policy.
type Config struct {
	MaxAttempts int           // failures within Window that trigger a lockout
	Window      time.Duration // sliding window anchored at the first failure
	Lock        time.Duration // lockout length
}

// MaxAge is how long a record can stay relevant: a full window plus a full lock.
func (c Config) MaxAge() time.Duration { return c.Window + c.Lock }

// Validate rejects policies that can never block or never expire.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return errors.New("limiter: max attempts must be at least 1")
	case c.Window < time.Second:
		return errors.New("limiter: window must be at least 1s")
	case c.Lock < time.Second:
		return errors.New("limiter: lock must be at least 1s")
	}
	return nil
}

// Key builds the conventional throttle key for a client network address.
// A port, if present, is dropped so reconnects share one key.
func Key(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		addr = "unknown"
	}
	return "login:" + addr
}
