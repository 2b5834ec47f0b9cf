package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/memory"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
)

func TestView_RefreshComputesTotals(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	lines := cart.NewLineStore(store, logger.Discard())
	a := seedProduct(t, store, "A", 100000)
	b := seedProduct(t, store, "B", 50000)
	userID := uuid.NewString()

	_, err := lines.AddItem(ctx, userID, a.ID, "M", 2)
	require.NoError(t, err)
	_, err = lines.AddItem(ctx, userID, b.ID, "L", 1)
	require.NoError(t, err)

	view := cart.NewView(userID, store, logger.Discard())
	defer view.Close()
	require.NoError(t, view.Refresh(ctx))

	assert.Equal(t, int64(250000), view.Subtotal())
	assert.Equal(t, int64(20000), view.Shipping(view.Subtotal()))
	assert.Equal(t, int64(270000), view.Total())
	assert.Equal(t, 3, view.Count())
	assert.Equal(t, 2, view.Len())

	snap := view.Snapshot()
	assert.Equal(t, []string{"M", "L"}, snap.Sizes())
	assert.Equal(t, int64(270000), snap.Totals.TotalAmount)
}

type flakyLister struct {
	mu    sync.Mutex
	items []cart.AggregateItem
	err   error
}

func (f *flakyLister) ListLines(context.Context, string) ([]cart.AggregateItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.err
}

func TestView_FailedRefreshKeepsPreviousList(t *testing.T) {
	ctx := context.Background()
	lister := &flakyLister{items: []cart.AggregateItem{{
		Line:    cart.Line{ID: 1, Quantity: 2},
		Product: product.Product{ID: 1, Price: 1000},
	}}}
	view := cart.NewView("u1", lister, logger.Discard())
	defer view.Close()

	var notified int
	view.Subscribe(func(cart.Snapshot) { notified++ })

	require.NoError(t, view.Refresh(ctx))
	assert.Equal(t, 1, notified)

	lister.mu.Lock()
	lister.err = errors.New("timeout")
	lister.mu.Unlock()

	err := view.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, 1, notified)
	assert.Equal(t, 2, view.Count())
	assert.Equal(t, int64(2000), view.Subtotal())
}

func TestView_WatchReconcilesOnFeedEvents(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewBroker(16, logger.Discard())
	defer broker.Close()

	store := memory.NewStore(broker, logger.Discard())
	lines := cart.NewLineStore(store, logger.Discard())
	p := seedProduct(t, store, "A", 100000)
	userID := uuid.NewString()
	other := uuid.NewString()

	view := cart.NewView(userID, store, logger.Discard())
	defer view.Close()
	require.NoError(t, view.Watch(ctx, broker))

	// Another user's writes must not reach this view.
	_, err := lines.AddItem(ctx, other, p.ID, "S", 7)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := lines.AddItem(ctx, userID, p.ID, "M", 1)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return view.Count() == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, view.Len())
}

func TestView_WatchRepricesOnProductUpdate(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewBroker(16, logger.Discard())
	defer broker.Close()

	store := memory.NewStore(broker, logger.Discard())
	lines := cart.NewLineStore(store, logger.Discard())
	listed := seedProduct(t, store, "A", 100000)
	unrelated := seedProduct(t, store, "B", 5000)
	userID := uuid.NewString()

	_, err := lines.AddItem(ctx, userID, listed.ID, "M", 1)
	require.NoError(t, err)

	view := cart.NewView(userID, store, logger.Discard())
	defer view.Close()
	require.NoError(t, view.Refresh(ctx))
	require.NoError(t, view.Watch(ctx, broker))

	var refreshes int32
	var mu sync.Mutex
	view.Subscribe(func(cart.Snapshot) {
		mu.Lock()
		refreshes++
		mu.Unlock()
	})

	unrelated.Price = 9000
	require.NoError(t, store.UpdateProduct(ctx, unrelated))

	listed.Price = 300000
	require.NoError(t, store.UpdateProduct(ctx, listed))

	assert.Eventually(t, func() bool { return view.Subtotal() == 300000 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(320000), view.Total())

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), refreshes, "changes to products outside the cart do not refresh it")
}

func TestView_CloseDiscardsLaterRefreshes(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewBroker(4, logger.Discard())
	defer broker.Close()

	lister := &flakyLister{}
	view := cart.NewView("u1", lister, logger.Discard())
	require.NoError(t, view.Watch(ctx, broker))
	require.Equal(t, 2, broker.Subscribers())

	view.Close()
	assert.Equal(t, 0, broker.Subscribers())

	lister.mu.Lock()
	lister.items = []cart.AggregateItem{{Line: cart.Line{ID: 1, Quantity: 1}}}
	lister.mu.Unlock()

	assert.ErrorIs(t, view.Refresh(ctx), cart.ErrViewClosed)
	assert.Equal(t, 0, view.Count())
}
