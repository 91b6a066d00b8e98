package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// ThrottleRepo keeps the throttle snapshot as one JSON document in PostgreSQL.
// The row lock taken by SELECT ... FOR UPDATE serializes every mutator.
type ThrottleRepo struct {
	db     *DB
	maxAge int64 // seconds
}

var _ repository.ThrottleStore = (*ThrottleRepo)(nil)

// NewThrottleRepo constructs a throttle repository.
func NewThrottleRepo(db *DB, maxAge time.Duration) *ThrottleRepo {
	return &ThrottleRepo{db: db, maxAge: int64(maxAge / time.Second)}
}

const (
	selSnapshot    = `SELECT data FROM login_throttle_snapshot WHERE id = 1`
	lockSnapshot   = `SELECT data FROM login_throttle_snapshot WHERE id = 1 FOR UPDATE`
	ensureSnapshot = `
INSERT INTO login_throttle_snapshot (id, data)
VALUES (1, '{}'::jsonb)
ON CONFLICT (id) DO NOTHING`
	updSnapshot = `UPDATE login_throttle_snapshot SET data = $1, updated_at = now() WHERE id = 1`
)

// Read returns the committed snapshot, pruned at now. A missing row reads as empty.
func (r *ThrottleRepo) Read(ctx context.Context, now time.Time) (model.ThrottleSnapshot, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, selSnapshot).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.ThrottleSnapshot{}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read throttle snapshot: %w", errs.ErrStorage, err)
	}
	snap := model.DecodeSnapshot(data)
	snap.Prune(now.Unix(), r.maxAge)
	return snap, nil
}

// Mutate applies fn to the pruned snapshot inside one transaction.
func (r *ThrottleRepo) Mutate(ctx context.Context, now time.Time, fn repository.Transform) error {
	if err := r.mutate(ctx, now, fn); err != nil {
		return fmt.Errorf("%w: mutate throttle snapshot: %w", errs.ErrStorage, err)
	}
	return nil
}

func (r *ThrottleRepo) mutate(ctx context.Context, now time.Time, fn repository.Transform) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, ensureSnapshot); err != nil {
		return err
	}
	var data []byte
	if err = tx.QueryRow(ctx, lockSnapshot).Scan(&data); err != nil {
		return err
	}
	snap := model.DecodeSnapshot(data)
	snap.Prune(now.Unix(), r.maxAge)

	out, err := model.EncodeSnapshot(fn(snap))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, updSnapshot, out)
	return err
}
