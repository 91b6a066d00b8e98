// Package filestore implements the throttle store as a single JSON file guarded
// by an advisory lock, so independent processes on one host share the state.
// Locking needs flock(2): the file backend is unsupported on non-unix platforms,
// where every call that reaches the lock fails with errs.ErrStorage.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// ThrottleStore is a file-backed repository.ThrottleStore.
// The file handle is opened and closed inside every call.
type ThrottleStore struct {
	path   string
	maxAge int64 // seconds
}

var _ repository.ThrottleStore = (*ThrottleStore)(nil)

// New constructs a store at path. maxAge (window + lock) bounds how long a
// record without an active block stays visible.
func New(path string, maxAge time.Duration) *ThrottleStore {
	return &ThrottleStore{path: path, maxAge: int64(maxAge / time.Second)}
}

// Path returns the backing file location.
func (s *ThrottleStore) Path() string { return s.path }

// Read loads the snapshot under a shared lock. A missing, empty or corrupt file
// reads as an empty snapshot. Any other open or lock failure is an
// errs.ErrStorage, so callers fail closed instead of seeing no lockouts.
func (s *ThrottleStore) Read(ctx context.Context, now time.Time) (model.ThrottleSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.ThrottleSnapshot{}, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrStorage, s.path, err)
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", errs.ErrStorage, s.path, err)
	}
	b, rerr := io.ReadAll(f)
	_ = unlock(f)

	snap := model.ThrottleSnapshot{}
	if rerr == nil {
		snap = model.DecodeSnapshot(b)
	}
	snap.Prune(now.Unix(), s.maxAge)
	return snap, nil
}

// Mutate rewrites the whole file while holding an exclusive lock. Lock
// acquisition blocks without a deadline; ctx is only checked before it.
func (s *ThrottleStore) Mutate(ctx context.Context, now time.Time, fn repository.Transform) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o775); err != nil {
		return fmt.Errorf("%w: create directory: %v", errs.ErrStorage, err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errs.ErrStorage, s.path, err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("%w: lock %s: %v", errs.ErrStorage, s.path, err)
	}
	defer func() { _ = unlock(f) }()

	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", errs.ErrStorage, s.path, err)
	}
	snap := model.DecodeSnapshot(b)
	snap.Prune(now.Unix(), s.maxAge)

	out, err := model.EncodeSnapshot(fn(snap))
	if err != nil {
		return fmt.Errorf("%w: encode: %v", errs.ErrStorage, err)
	}
	if err := rewrite(f, out); err != nil {
		return fmt.Errorf("%w: write %s: %v", errs.ErrStorage, s.path, err)
	}
	return nil
}

func rewrite(f *os.File, b []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}
