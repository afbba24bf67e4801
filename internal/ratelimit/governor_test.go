package ratelimit_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/ratelimit"
	"github.com/soldalen/heatpumpctl/internal/store"
)

func openRepo(t *testing.T, path string) store.Store {
	t.Helper()

	repo, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func newGovernor(t *testing.T, repo store.Store, threshold int) *ratelimit.Governor {
	t.Helper()

	gov, err := ratelimit.New(repo, ratelimit.Config{
		SafetyThreshold: threshold,
		Window:          24 * time.Hour,
		Cooldown:        15 * time.Minute,
	})
	require.NoError(t, err)

	return gov
}

func TestInvalidConfig(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))

	_, err := ratelimit.New(repo, ratelimit.Config{SafetyThreshold: 0, Cooldown: time.Minute})
	assert.Error(t, err)

	_, err = ratelimit.New(repo, ratelimit.Config{SafetyThreshold: 10, Cooldown: 0})
	assert.Error(t, err)
}

func TestBudgetInvariant(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))
	gov := newGovernor(t, repo, 5)

	now := time.Now().UTC()

	// Drive an arbitrary can_call/record_call sequence; the window count
	// must never exceed the threshold when calls are gated.
	made := 0
	for i := 0; i < 20; i++ {
		at := now.Add(time.Duration(i) * time.Minute)
		if gov.CanCall(at) {
			require.NoError(t, gov.RecordCall(ctx, at))
			made++
		}
		assert.LessOrEqual(t, gov.CallsInWindow(at), 5)
	}
	assert.Equal(t, 5, made)

	assert.False(t, gov.CanCall(now.Add(30*time.Minute)))
}

func TestTryAcquireAtomicBudget(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))
	gov := newGovernor(t, repo, 5)

	now := time.Now().UTC()

	// Two cadences racing for the last budget slots: the check and the
	// record happen under one lock, so the threshold can never be crossed.
	var wg sync.WaitGroup
	var acquired atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				ok, err := gov.TryAcquire(ctx, now.Add(time.Duration(j)*time.Second))
				assert.NoError(t, err)
				if ok {
					acquired.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), acquired.Load())
	assert.LessOrEqual(t, gov.CallsInWindow(now.Add(time.Minute)), 5)
}

func TestTryAcquireDeniesInCooldown(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))
	gov := newGovernor(t, repo, 100)

	now := time.Now().UTC()
	gov.SignalUpstreamLimit(now)

	ok, err := gov.TryAcquire(ctx, now.Add(time.Minute))
	require.NoError(t, err, "a cooldown denial is policy, not an error")
	assert.False(t, ok)
	assert.Zero(t, gov.CallsInWindow(now.Add(time.Minute)), "a denied acquire must not spend budget")
}

func TestTryAcquireSurfacesPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))

	gov, err := ratelimit.New(&failingStore{Store: repo}, ratelimit.Config{
		SafetyThreshold: 100,
		Cooldown:        time.Minute,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := gov.TryAcquire(ctx, now)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrPersistence))

	// Latched: the next attempt fails without touching the store
	ok, err = gov.TryAcquire(ctx, now.Add(time.Second))
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestWindowPruningFreesBudget(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))
	gov := newGovernor(t, repo, 3)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, gov.RecordCall(ctx, now.Add(time.Duration(i)*time.Minute)))
	}
	assert.False(t, gov.CanCall(now.Add(5*time.Minute)))

	// 24h later the oldest calls have aged out
	later := now.Add(24*time.Hour + time.Minute)
	assert.True(t, gov.CanCall(later))
	assert.Equal(t, 2, gov.CallsInWindow(later))
}

func TestCooldownOverridesWindowCount(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))
	gov := newGovernor(t, repo, 100)

	now := time.Now().UTC()
	require.True(t, gov.CanCall(now), "empty window allows calls")

	gov.SignalUpstreamLimit(now)

	assert.False(t, gov.CanCall(now), "cooldown denies regardless of window count")
	assert.True(t, gov.InCooldown(now.Add(14*time.Minute)))
	assert.False(t, gov.CanCall(now.Add(14*time.Minute)))

	assert.True(t, gov.CanCall(now.Add(16*time.Minute)), "cooldown elapsed")
}

func TestRestartReconstructsWindow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gov.db")

	repo, err := store.Open(path)
	require.NoError(t, err)

	gov, err := ratelimit.New(repo, ratelimit.Config{SafetyThreshold: 3, Cooldown: time.Minute})
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, gov.RecordCall(ctx, now.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, repo.Close())

	// Restart: budget must not reset to zero
	repo2 := openRepo(t, path)
	gov2, err := ratelimit.New(repo2, ratelimit.Config{SafetyThreshold: 3, Cooldown: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, 3, gov2.CallsInWindow(now.Add(time.Minute)))
	assert.False(t, gov2.CanCall(now.Add(time.Minute)), "burst after restart must stay denied")
}

// failingStore wraps a working store but refuses rate-call writes.
type failingStore struct {
	store.Store
}

func (f *failingStore) RecordRateCall(context.Context, time.Time) error {
	return errors.New().New(errors.ErrPersistence)
}

func TestFailsClosedOnPersistenceError(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "gov.db"))

	gov, err := ratelimit.New(&failingStore{Store: repo}, ratelimit.Config{
		SafetyThreshold: 100,
		Cooldown:        time.Minute,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.True(t, gov.CanCall(now))

	err = gov.RecordCall(ctx, now)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrPersistence))

	assert.False(t, gov.Healthy())
	assert.False(t, gov.CanCall(now.Add(time.Second)), "governor must deny calls once persistence failed")
}
