package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/memory"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
)

type env struct {
	mgr     *Manager
	store   *memory.Store
	records *catalog.MemoryStore
	broker  *changefeed.Broker
	lines   *cart.LineStore
	clock   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, Options{IdleTimeout: 30 * time.Minute, PendingTimeout: 2 * time.Minute, MaxSessions: 100})
}

func newEnvWith(t *testing.T, opts Options) *env {
	t.Helper()
	log := logger.Discard()
	e := &env{
		broker:  changefeed.NewBroker(32, log),
		records: catalog.NewMemoryStore(),
		clock:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	e.store = memory.NewStore(e.broker, log)
	e.lines = cart.NewLineStore(e.store, log)
	e.mgr = NewManager(Deps{
		Products:     e.store,
		CatalogStore: e.records,
		Lines:        e.store,
		Procedure:    e.store,
		Feed:         e.broker,
	}, opts, log)
	e.mgr.now = func() time.Time { return e.clock }
	e.lines.OnMutation(e.mgr.OnCartMutation)

	t.Cleanup(func() {
		e.mgr.Close()
		e.broker.Close()
	})
	return e
}

// returning acquires a new session and presents its id again, as a browser
// sending the cookie back would
func (e *env) returning() *Session {
	s := e.mgr.Acquire(NewID())
	return e.mgr.Acquire(s.ID)
}

func TestManager_AcquireReusesSessions(t *testing.T) {
	e := newEnv(t)

	s := e.mgr.Acquire("not-a-session-id")
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)

	again := e.mgr.Acquire(s.ID)
	assert.Same(t, s, again)
	assert.Equal(t, 1, e.mgr.Len())
	assert.NotNil(t, s.Catalog())
	assert.Nil(t, s.Cart())
	assert.Nil(t, s.Checkout())
}

func TestSession_BindCreatesCartComponents(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	p := &product.Product{Name: "Tee", Price: 75000}
	require.NoError(t, e.store.CreateProduct(ctx, p))
	userID := uuid.NewString()
	_, err := e.lines.AddItem(ctx, userID, p.ID, "M", 2)
	require.NoError(t, err)

	s := e.mgr.Acquire(NewID())
	b, err := s.Bind(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, b)
	view := b.Cart
	assert.Equal(t, userID, b.UserID)
	assert.Equal(t, 2, view.Count())
	assert.Same(t, b.Checkout, s.Checkout())

	same, err := s.Bind(ctx, userID)
	require.NoError(t, err)
	assert.Same(t, b, same)

	// A later add is visible without an explicit refresh.
	_, err = e.lines.AddItem(ctx, userID, p.ID, "M", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Count())

	other, err := s.Bind(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, other)
	assert.Nil(t, s.Cart())
	assert.ErrorIs(t, view.Refresh(ctx), cart.ErrViewClosed)
}

func TestManager_SweepClosesIdleSessions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	p := &product.Product{Name: "Tee", Price: 75000}
	require.NoError(t, e.store.CreateProduct(ctx, p))

	idle := e.returning()
	require.NoError(t, idle.Catalog().Mount(ctx))
	_, err := e.records.Get(ctx, idle.ID)
	require.NoError(t, err)

	e.clock = e.clock.Add(20 * time.Minute)
	active := e.returning()

	e.clock = e.clock.Add(15 * time.Minute)
	assert.Equal(t, 1, e.mgr.Sweep(ctx))

	_, ok := e.mgr.Lookup(idle.ID)
	assert.False(t, ok)
	_, ok = e.mgr.Lookup(active.ID)
	assert.True(t, ok)

	_, err = e.records.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, catalog.ErrRecordMiss)
	assert.ErrorIs(t, idle.Catalog().LoadMore(ctx), catalog.ErrCacheClosed)
}

func TestManager_EndStopsWatchers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	s := e.returning()
	_, err := s.Bind(ctx, uuid.NewString())
	require.NoError(t, err)
	// catalog inserts, cart lines, product changes
	assert.Equal(t, 3, e.broker.Subscribers())

	e.mgr.End(ctx, s.ID)
	assert.Equal(t, 0, e.broker.Subscribers())
	assert.Equal(t, 0, e.mgr.Len())

	_, err = s.Bind(ctx, "someone")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_RebindLeavesEarlierBindingWithItsOwner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()

	s := e.returning()
	first, err := s.Bind(ctx, alice)
	require.NoError(t, err)
	second, err := s.Bind(ctx, bob)
	require.NoError(t, err)

	assert.Equal(t, alice, first.UserID)
	assert.Equal(t, alice, first.Cart.UserID())
	assert.Equal(t, bob, second.Cart.UserID())
	assert.ErrorIs(t, first.Cart.Refresh(ctx), cart.ErrViewClosed)
	assert.Same(t, second.Cart, s.Cart())
}

func TestManager_PendingSessionsStartWatchersOnReturn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	s := e.mgr.Acquire(NewID())
	_, err := s.Bind(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 0, e.broker.Subscribers())

	again := e.mgr.Acquire(s.ID)
	assert.Same(t, s, again)
	assert.Equal(t, 3, e.broker.Subscribers())

	e.mgr.Acquire(s.ID)
	assert.Equal(t, 3, e.broker.Subscribers())
}

func TestManager_CapEvictsPendingSessionsFirst(t *testing.T) {
	e := newEnvWith(t, Options{IdleTimeout: 30 * time.Minute, PendingTimeout: 2 * time.Minute, MaxSessions: 3})

	kept := e.returning()
	for i := 0; i < 20; i++ {
		e.clock = e.clock.Add(time.Second)
		e.mgr.Acquire("")
	}

	assert.Equal(t, 3, e.mgr.Len())
	_, ok := e.mgr.Lookup(kept.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, e.broker.Subscribers())
}

func TestManager_SweepExpiresPendingSessionsSooner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	pending := e.mgr.Acquire(NewID())
	confirmed := e.returning()

	e.clock = e.clock.Add(3 * time.Minute)
	assert.Equal(t, 1, e.mgr.Sweep(ctx))

	_, ok := e.mgr.Lookup(pending.ID)
	assert.False(t, ok)
	_, ok = e.mgr.Lookup(confirmed.ID)
	assert.True(t, ok)
}
