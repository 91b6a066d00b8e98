package limiter

import (
	"context"
	"time"

	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// Throttle is the store-backed Limiter. It holds no per-key state of its own.
type Throttle struct {
	store     repository.ThrottleStore
	cfg       Config
	now       func() time.Time
	onLockout func(key string, until time.Time)
}

var _ Limiter = (*Throttle)(nil)

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// WithLockoutHook registers fn to be called after a failure that set a block.
func WithLockoutHook(fn func(key string, until time.Time)) Option {
	return func(t *Throttle) { t.onLockout = fn }
}

// New constructs a throttle over store. The store must prune with cfg.MaxAge().
func New(store repository.ThrottleStore, cfg Config, opts ...Option) *Throttle {
	t := &Throttle{store: store, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Inspect returns the visible record for key, if any.
func (t *Throttle) Inspect(ctx context.Context, key string) (model.ThrottleRecord, bool, error) {
	rec, ok, _, err := t.lookup(ctx, key)
	return rec, ok, err
}

// IsBlocked reports whether a record exists for key and its block is in the future.
func (t *Throttle) IsBlocked(ctx context.Context, key string) (bool, error) {
	rec, ok, now, err := t.lookup(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && rec.Blocked(now), nil
}

// RetryAfterSeconds returns max(0, blocked_until - now), or 0 without a record.
func (t *Throttle) RetryAfterSeconds(ctx context.Context, key string) (int, error) {
	rec, ok, now, err := t.lookup(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return int(max(0, rec.BlockedUntil-now)), nil
}

// RegisterFailure counts one failed attempt for key in a single store mutation.
func (t *Throttle) RegisterFailure(ctx context.Context, key string) error {
	now := t.now()
	ts := now.Unix()
	window := int64(t.cfg.Window / time.Second)
	lock := int64(t.cfg.Lock / time.Second)

	var blockedUntil int64
	err := t.store.Mutate(ctx, now, func(s model.ThrottleSnapshot) model.ThrottleSnapshot {
		rec, ok := s[key]
		if !ok {
			rec = model.ThrottleRecord{FirstFailedAt: ts}
		}
		if ts-rec.FirstFailedAt > window {
			rec.Attempts = 0
			rec.FirstFailedAt = ts
		}
		rec.Attempts++
		if rec.Attempts >= t.cfg.MaxAttempts {
			rec.BlockedUntil = ts + lock
		}
		s[key] = rec
		blockedUntil = rec.BlockedUntil
		return s
	})
	if err != nil {
		return err
	}
	if blockedUntil > ts && t.onLockout != nil {
		t.onLockout(key, time.Unix(blockedUntil, 0))
	}
	return nil
}

// Clear removes key's record.
func (t *Throttle) Clear(ctx context.Context, key string) error {
	return t.store.Mutate(ctx, t.now(), func(s model.ThrottleSnapshot) model.ThrottleSnapshot {
		delete(s, key)
		return s
	})
}

func (t *Throttle) lookup(ctx context.Context, key string) (model.ThrottleRecord, bool, int64, error) {
	now := t.now()
	snap, err := t.store.Read(ctx, now)
	if err != nil {
		return model.ThrottleRecord{}, false, 0, err
	}
	rec, ok := snap[key]
	return rec, ok, now.Unix(), nil
}
