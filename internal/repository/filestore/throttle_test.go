package filestore

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
)

const (
	helperPathEnv  = "KIZAMI_FILESTORE_HELPER_PATH"
	helperCountEnv = "KIZAMI_FILESTORE_HELPER_COUNT"
	testMaxAge     = 15 * time.Minute
)

func TestMain(m *testing.M) {
	if path := os.Getenv(helperPathEnv); path != "" {
		os.Exit(runHelper(path))
	}
	goleak.VerifyTestMain(m)
}

// runHelper is the body of a child process used by the cross-process test.
func runHelper(path string) int {
	n, err := strconv.Atoi(os.Getenv(helperCountEnv))
	if err != nil {
		return 2
	}
	s := New(path, testMaxAge)
	for i := 0; i < n; i++ {
		if err := s.Mutate(context.Background(), time.Now(), increment("login:shared")); err != nil {
			return 1
		}
	}
	return 0
}

func increment(key string) func(model.ThrottleSnapshot) model.ThrottleSnapshot {
	return func(s model.ThrottleSnapshot) model.ThrottleSnapshot {
		r, ok := s[key]
		if !ok {
			r = model.ThrottleRecord{FirstFailedAt: time.Now().Unix()}
		}
		r.Attempts++
		s[key] = r
		return s
	}
}

func newStore(t *testing.T) *ThrottleStore {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "var", "login_rate_limiter.json"), testMaxAge)
}

func TestRead_MissingFileIsEmpty(t *testing.T) {
	s := newStore(t)

	snap, err := s.Read(context.Background(), time.Now())
	require.NoError(t, err)
	require.Empty(t, snap)

	_, err = os.Stat(s.Path())
	require.True(t, os.IsNotExist(err), "read must not create the file")
}

func TestMutate_CreatesDirectoryAndFile(t *testing.T) {
	s := newStore(t)
	now := time.Unix(1_700_000_000, 0)

	err := s.Mutate(context.Background(), now, func(snap model.ThrottleSnapshot) model.ThrottleSnapshot {
		snap["login:127.0.0.1"] = model.ThrottleRecord{Attempts: 1, FirstFailedAt: now.Unix()}
		return snap
	})
	require.NoError(t, err)

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.JSONEq(t, `{"login:127.0.0.1":{"attempts":1,"first_failed_at":1700000000,"blocked_until":0}}`, string(b))

	snap, err := s.Read(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, snap["login:127.0.0.1"].Attempts)
}

func TestMutate_EmptyResultWritesEmptyObject(t *testing.T) {
	s := newStore(t)
	now := time.Now()

	require.NoError(t, s.Mutate(context.Background(), now, increment("login:a")))
	require.NoError(t, s.Mutate(context.Background(), now, func(snap model.ThrottleSnapshot) model.ThrottleSnapshot {
		delete(snap, "login:a")
		return snap
	}))

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Equal(t, "{}", string(b))
}

func TestCorruptFileReadsAsEmpty(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	snap, err := s.Read(context.Background(), time.Now())
	require.NoError(t, err)
	require.Empty(t, snap)

	require.NoError(t, s.Mutate(context.Background(), time.Now(), increment("login:a")))
	snap, err = s.Read(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, snap["login:a"].Attempts)
}

func TestRead_PrunesWithoutPersisting(t *testing.T) {
	s := newStore(t)
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Mutate(context.Background(), base, func(snap model.ThrottleSnapshot) model.ThrottleSnapshot {
		snap["login:blocked"] = model.ThrottleRecord{Attempts: 3, FirstFailedAt: base.Unix(), BlockedUntil: base.Unix() + 60}
		snap["login:live"] = model.ThrottleRecord{Attempts: 1, FirstFailedAt: base.Unix() + 50}
		return snap
	}))

	later := base.Add(2 * time.Minute)
	snap, err := s.Read(context.Background(), later)
	require.NoError(t, err)
	require.NotContains(t, snap, "login:blocked")
	require.Contains(t, snap, "login:live")

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Len(t, model.DecodeSnapshot(b), 2, "read-side pruning is not persisted")

	require.NoError(t, s.Mutate(context.Background(), later, func(snap model.ThrottleSnapshot) model.ThrottleSnapshot {
		require.NotContains(t, snap, "login:blocked", "transform sees the pruned view")
		return snap
	}))
	b, err = os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Len(t, model.DecodeSnapshot(b), 1, "mutate persists the pruning")
}

func TestMutate_DirectoryFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := New(filepath.Join(blocker, "sub", "state.json"), testMaxAge)
	err := s.Mutate(context.Background(), time.Now(), increment("login:a"))
	require.ErrorIs(t, err, errs.ErrStorage)
}

func TestRead_UnopenablePathIsStorageError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// ENOTDIR, unlike ENOENT, must not read as an empty snapshot.
	s := New(filepath.Join(blocker, "state.json"), testMaxAge)
	snap, err := s.Read(context.Background(), time.Now())
	require.ErrorIs(t, err, errs.ErrStorage)
	require.Nil(t, snap)
}

func TestMutate_CanceledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Mutate(ctx, time.Now(), increment("login:a")), context.Canceled)
	_, err := s.Read(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestMutate_ConcurrentNoLostUpdates(t *testing.T) {
	s := newStore(t)
	const n = 64

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return s.Mutate(context.Background(), time.Now(), increment("login:race"))
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Read(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, n, snap["login:race"].Attempts)
}

func TestRead_NeverSeesPartialWrite(t *testing.T) {
	s := newStore(t)
	const writes = 40

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for ctx.Err() == nil {
				snap, err := s.Read(context.Background(), time.Now())
				if err != nil {
					mu.Lock()
					failures = append(failures, err.Error())
					mu.Unlock()
					return
				}
				got := snap["login:rw"].Attempts
				if got < last {
					mu.Lock()
					failures = append(failures, "attempts went backwards: "+strconv.Itoa(last)+" -> "+strconv.Itoa(got))
					mu.Unlock()
					return
				}
				last = got
			}
		}()
	}

	for i := 0; i < writes; i++ {
		require.NoError(t, s.Mutate(context.Background(), time.Now(), increment("login:rw")))
	}
	cancel()
	wg.Wait()

	require.Empty(t, failures)
}

func TestMutate_CrossProcessNoLostUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns child processes")
	}
	s := newStore(t)
	const procs, perProc = 4, 25

	var g errgroup.Group
	for i := 0; i < procs; i++ {
		g.Go(func() error {
			cmd := exec.Command(os.Args[0], "-test.run=^$")
			cmd.Env = append(os.Environ(),
				helperPathEnv+"="+s.Path(),
				helperCountEnv+"="+strconv.Itoa(perProc),
			)
			return cmd.Run()
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Read(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, procs*perProc, snap["login:shared"].Attempts)
}
