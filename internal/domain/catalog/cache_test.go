package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves products newest first and counts fetches
type fakeSource struct {
	mu       sync.Mutex
	products []product.Product // newest first
	calls    atomic.Int32
	gate     chan struct{} // when set, fetches block until it is closed
	err      error
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := n; i >= 1; i-- {
		s.products = append(s.products, product.Product{
			ID:        uint(i),
			Name:      "product",
			Price:     int64(i) * 1000,
			CreatedAt: epoch.Add(time.Duration(i) * time.Minute),
		})
	}
	return s
}

func (s *fakeSource) ListProducts(ctx context.Context, after Cursor, limit int) ([]product.Product, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []product.Product
	for _, p := range s.products {
		if !after.Admits(p) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type failingStore struct{ *MemoryStore }

func (failingStore) Get(context.Context, string) (*Entry, error) {
	return nil, errors.New("record unreadable")
}

func newTestCache(source Source, store SessionStore, now time.Time) *Cache {
	c := NewCache("sess-1", source, store, Options{}, logger.Discard())
	c.now = func() time.Time { return now }
	return c
}

func TestCache_PaginationDoesNotOverlap(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(20)
	c := newTestCache(source, NewMemoryStore(), epoch)

	require.NoError(t, c.Mount(ctx))
	assert.Len(t, c.Items(), 8)
	assert.True(t, c.HasMore())

	require.NoError(t, c.LoadMore(ctx))
	require.NoError(t, c.LoadMore(ctx))
	assert.False(t, c.HasMore())

	items := c.Items()
	require.Len(t, items, 20)
	seen := map[uint]bool{}
	for i, p := range items {
		assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
		seen[p.ID] = true
		if i > 0 {
			assert.True(t, p.CreatedAt.Before(items[i-1].CreatedAt))
		}
	}

	calls := source.calls.Load()
	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, calls, source.calls.Load(), "no fetch once hasMore is false")
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(10)
	store := NewMemoryStore()

	first := newTestCache(source, store, epoch)
	require.NoError(t, first.Mount(ctx))
	require.Equal(t, int32(1), source.calls.Load())

	fresh := newTestCache(source, store, epoch.Add(4*time.Minute+59*time.Second))
	require.NoError(t, fresh.Mount(ctx))
	assert.Equal(t, int32(1), source.calls.Load(), "record served without fetching")
	assert.Len(t, fresh.Items(), 8)

	stale := newTestCache(source, store, epoch.Add(5*time.Minute+1*time.Second))
	require.NoError(t, stale.Mount(ctx))
	assert.Equal(t, int32(2), source.calls.Load(), "expired record triggers a fetch")
}

func TestCache_EmptyRecordIsNotServed(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(3)
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "sess-1", Entry{CapturedAt: epoch}))

	c := newTestCache(source, store, epoch.Add(time.Second))
	require.NoError(t, c.Mount(ctx))
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Len(t, c.Items(), 3)
	assert.False(t, c.HasMore())
}

func TestCache_UnreadableRecordFallsBackToFetch(t *testing.T) {
	source := newFakeSource(4)
	c := newTestCache(source, failingStore{NewMemoryStore()}, epoch)

	require.NoError(t, c.Mount(context.Background()))
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Len(t, c.Items(), 4)
}

func TestCache_LoadFailureKeepsList(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(12)
	c := newTestCache(source, NewMemoryStore(), epoch)
	require.NoError(t, c.Mount(ctx))

	source.mu.Lock()
	source.err = errors.New("boom")
	source.mu.Unlock()

	assert.Error(t, c.LoadMore(ctx))
	assert.Len(t, c.Items(), 8)
	assert.True(t, c.HasMore())
}

func TestCache_ConcurrentLoadMoreSharesOneFetch(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(20)
	c := newTestCache(source, NewMemoryStore(), epoch)
	require.NoError(t, c.Mount(ctx))
	require.Equal(t, int32(1), source.calls.Load())

	source.gate = make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error { return c.LoadMore(gctx) })
	}
	assert.Eventually(t, func() bool { return source.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.gate)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(2), source.calls.Load())
	assert.Len(t, c.Items(), 16)
}

func TestCache_InsertDedupAndInvalidate(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(5)
	store := NewMemoryStore()
	c := newTestCache(source, store, epoch)
	require.NoError(t, c.Mount(ctx))

	_, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)

	newest := product.Product{ID: 99, Name: "new", CreatedAt: epoch.Add(time.Hour)}
	c.ApplyInsert(ctx, newest)
	c.ApplyInsert(ctx, newest)

	items := c.Items()
	require.Len(t, items, 6)
	assert.Equal(t, uint(99), items[0].ID)

	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrRecordMiss)

	// An insert for an already listed id leaves the list alone.
	c.ApplyInsert(ctx, product.Product{ID: 3})
	assert.Len(t, c.Items(), 6)
}

func TestCache_WatchAppliesInsertEvents(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewBroker(8, logger.Discard())
	defer broker.Close()

	c := newTestCache(newFakeSource(2), NewMemoryStore(), epoch)
	require.NoError(t, c.Mount(ctx))
	require.NoError(t, c.Watch(ctx, broker))
	defer c.Close()

	p := product.Product{ID: 42, Name: "fresh", CreatedAt: epoch.Add(time.Hour)}
	for i := 0; i < 2; i++ {
		ev, err := changefeed.NewEvent(changefeed.TableProducts, changefeed.EventInsert, nil, p)
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, ev))
	}
	upd, err := changefeed.NewEvent(changefeed.TableProducts, changefeed.EventUpdate, nil, product.Product{ID: 77})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, upd))

	assert.Eventually(t, func() bool { return len(c.Items()) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, uint(42), items[0].ID)
}

func TestCache_CloseDiscardsInFlightPage(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(20)
	c := newTestCache(source, NewMemoryStore(), epoch)
	require.NoError(t, c.Mount(ctx))

	source.gate = make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- c.LoadMore(ctx) }()
	assert.Eventually(t, func() bool { return source.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	c.Close()
	close(source.gate)
	require.NoError(t, <-errc)

	assert.Len(t, c.Items(), 8)
	assert.ErrorIs(t, c.LoadMore(ctx), ErrCacheClosed)
}

func TestCache_SharedTimestampPagesDoNotSkip(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{}
	for i := 12; i >= 1; i-- {
		source.products = append(source.products, product.Product{ID: uint(i), Name: "same second", CreatedAt: epoch})
	}
	c := newTestCache(source, NewMemoryStore(), epoch)

	require.NoError(t, c.Mount(ctx))
	require.NoError(t, c.LoadMore(ctx))
	assert.Len(t, c.Items(), 12)
	assert.False(t, c.HasMore())
}

func TestCache_StaleAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := epoch
	c := NewCache("sess-1", newFakeSource(3), NewMemoryStore(), Options{Now: func() time.Time { return now }}, logger.Discard())

	assert.True(t, c.Stale(), "never loaded")
	require.NoError(t, c.Mount(ctx))
	assert.Equal(t, epoch, c.CapturedAt())

	now = epoch.Add(5 * time.Minute)
	assert.False(t, c.Stale())
	now = epoch.Add(5*time.Minute + time.Second)
	assert.True(t, c.Stale())

	require.NoError(t, c.Mount(ctx))
	assert.False(t, c.Stale())
	assert.Equal(t, now, c.CapturedAt())
}

func TestCache_RestoredRecordKeepsCaptureTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, newTestCache(newFakeSource(10), store, epoch).Mount(ctx))

	restored := newTestCache(newFakeSource(10), store, epoch.Add(4*time.Minute))
	require.NoError(t, restored.Mount(ctx))
	assert.Equal(t, epoch, restored.CapturedAt())

	restored.now = func() time.Time { return epoch.Add(5*time.Minute + time.Second) }
	assert.True(t, restored.Stale())
}

func TestCache_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(20)
	c := newTestCache(source, NewMemoryStore(), epoch)
	require.NoError(t, c.Mount(ctx))

	source.gate = make(chan struct{})
	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() { firstErr <- c.LoadMore(firstCtx) }()
	assert.Eventually(t, func() bool { return source.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	secondErr := make(chan error, 1)
	go func() { secondErr <- c.LoadMore(ctx) }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(source.gate)
	require.NoError(t, <-secondErr)
	assert.Equal(t, int32(2), source.calls.Load())
	assert.Len(t, c.Items(), 16)
}
