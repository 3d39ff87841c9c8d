package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/cache"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	now   func() time.Time
}

func (s *countingSource) Fetch(ctx context.Context, sourceID string) (*Dataset, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return New(sourceID, [][]string{{"name", "age"}, {"Somchai", "34"}}, s.now())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(src *countingSource, shared cache.Client) (*Store, *testClock) {
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	src.now = clock.Now
	store := NewStore(nil, src, shared, StoreConfig{SourceID: "sheet", TTL: 5 * time.Minute})
	store.now = clock.Now
	return store, clock
}

func TestStore_ServesWithinFreshnessWindow(t *testing.T) {
	src := &countingSource{}
	store, clock := newTestStore(src, nil)
	ctx := context.Background()

	first, err := store.Get(ctx)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	second, err := store.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())

	clock.Advance(2 * time.Minute)
	third, err := store.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestStore_RefreshRefetches(t *testing.T) {
	src := &countingSource{}
	store, _ := newTestStore(src, nil)
	ctx := context.Background()

	_, err := store.Get(ctx)
	require.NoError(t, err)
	_, err = store.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestStore_FailureIsUnavailable(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	store, _ := newTestStore(src, nil)

	ds, err := store.Get(context.Background())
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStore_FetchTimeout(t *testing.T) {
	src := &countingSource{delay: time.Second}
	store, _ := newTestStore(src, nil)
	store.cfg.FetchTimeout = 20 * time.Millisecond

	_, err := store.Get(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_ConcurrentMissesShareOneFetch(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	store, _ := newTestStore(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStore_SharedCacheAcrossInstances(t *testing.T) {
	shared := cache.NewMemoryClient(10)
	defer shared.Close()

	srcA := &countingSource{}
	storeA, clockA := newTestStore(srcA, shared)
	shared.SetClock(clockA.Now)

	srcB := &countingSource{}
	storeB, _ := newTestStore(srcB, shared)

	ctx := context.Background()
	_, err := storeA.Get(ctx)
	require.NoError(t, err)

	ds, err := storeB.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, ds.Header)
	assert.Equal(t, int32(0), srcB.calls.Load())

	storeB.Invalidate(ctx)
	_, err = storeB.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srcB.calls.Load())
}

func TestStore_SetSourceID(t *testing.T) {
	src := &countingSource{}
	store, _ := newTestStore(src, nil)
	ctx := context.Background()

	_, err := store.Get(ctx)
	require.NoError(t, err)

	store.SetSourceID(ctx, "other")
	ds, err := store.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, "other", store.SourceID())
	assert.Equal(t, "other", ds.SourceID)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &countingSource{delay: 200 * time.Millisecond}
	store, _ := newTestStore(src, nil)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Get(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		_, err := store.Get(context.Background())
		secondDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	err := <-firstErr
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case err := <-secondDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), src.calls.Load())
}
