package checkout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/memory"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []checkout.OrderPlaced
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e checkout.OrderPlaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	store  *memory.Store
	lines  *cart.LineStore
	view   *cart.View
	events *recordingPublisher
	coord  *checkout.Coordinator
	userID string
	a, b   *product.Product
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	f := &fixture{
		store:  memory.NewStore(nil, log),
		events: &recordingPublisher{},
		userID: userID,
	}
	f.lines = cart.NewLineStore(f.store, log)
	f.a = &product.Product{Name: "A", Price: 100000}
	f.b = &product.Product{Name: "B", Price: 50000}
	require.NoError(t, f.store.CreateProduct(ctx, f.a))
	require.NoError(t, f.store.CreateProduct(ctx, f.b))

	f.view = cart.NewView(userID, f.store, log)
	t.Cleanup(f.view.Close)
	f.coord = checkout.NewCoordinator(f.view, f.store, f.events, log)
	return f
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.lines.AddItem(ctx, f.userID, f.a.ID, "M", 2)
	require.NoError(t, err)
	_, err = f.lines.AddItem(ctx, f.userID, f.b.ID, "L", 1)
	require.NoError(t, err)
	require.NoError(t, f.view.Refresh(ctx))
}

func TestCoordinator_CheckoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, uuid.NewString())
	f.fillCart(t)

	var states []checkout.State
	f.coord.Subscribe(func(tr checkout.Transition) { states = append(states, tr.To) })

	res, err := f.coord.Checkout(ctx, checkout.Request{Address: "Jl. Merdeka 1, Bandung", PaymentMethod: "transfer"})
	require.NoError(t, err)
	assert.Equal(t, int64(270000), res.Total)
	assert.Equal(t, int64(20000), res.Shipping)
	assert.Equal(t, checkout.HistoryPath, res.Redirect)
	assert.Equal(t, []checkout.State{checkout.StateValidating, checkout.StateSubmitting, checkout.StateSucceeded}, states)
	assert.Equal(t, checkout.StateSucceeded, f.coord.State())

	o, err := f.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(270000), o.TotalAmount)
	assert.Equal(t, int64(250000), o.SubtotalAmount)
	assert.Equal(t, "M, L", o.Sizes)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, int64(100000), o.Lines[0].Price)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, "M", o.Lines[0].Size)
	assert.Equal(t, int64(50000), o.Lines[1].Price)
	assert.Equal(t, "L", o.Lines[1].Size)

	items, err := f.store.ListLines(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, f.view.Len(), "view refreshed after checkout")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, res.OrderID, f.events.events[0].OrderID)
	assert.Equal(t, "transfer", f.events.events[0].PaymentMethod)
}

func TestCoordinator_OrderKeepsPriceSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, uuid.NewString())
	f.fillCart(t)

	res, err := f.coord.Checkout(ctx, checkout.Request{Address: "somewhere", PaymentMethod: "cod"})
	require.NoError(t, err)

	changed := *f.a
	changed.Price = 999999
	require.NoError(t, f.store.UpdateProduct(ctx, &changed))

	o, err := f.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), o.Lines[0].Price)
	assert.Equal(t, int64(270000), o.TotalAmount)
}

func TestCoordinator_PreconditionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("no user wins over everything", func(t *testing.T) {
		f := newFixture(t, "")
		_, err := f.coord.Checkout(ctx, checkout.Request{})
		assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
	})

	t.Run("empty cart before address", func(t *testing.T) {
		f := newFixture(t, uuid.NewString())
		_, err := f.coord.Checkout(ctx, checkout.Request{Address: " ", PaymentMethod: "bitcoin"})
		assert.Equal(t, apperr.KindEmptyCart, apperr.KindOf(err))
	})

	t.Run("blank address before payment method", func(t *testing.T) {
		f := newFixture(t, uuid.NewString())
		f.fillCart(t)
		_, err := f.coord.Checkout(ctx, checkout.Request{Address: "\t", PaymentMethod: "bitcoin"})
		require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "address")
	})

	t.Run("unknown payment method", func(t *testing.T) {
		f := newFixture(t, uuid.NewString())
		f.fillCart(t)
		_, err := f.coord.Checkout(ctx, checkout.Request{Address: "home", PaymentMethod: "bitcoin"})
		require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "payment method")
	})
}

func TestCoordinator_ValidationFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, uuid.NewString())

	var states []checkout.State
	f.coord.Subscribe(func(tr checkout.Transition) { states = append(states, tr.To) })

	_, err := f.coord.Checkout(context.Background(), checkout.Request{Address: "home", PaymentMethod: "qris"})
	require.Error(t, err)
	assert.Equal(t, []checkout.State{checkout.StateValidating, checkout.StateFailed, checkout.StateIdle}, states)
	assert.Equal(t, checkout.StateIdle, f.coord.State())
	assert.NotEmpty(t, f.coord.Status().LastError)
}

// blockingProcedure holds every call until release is closed
type blockingProcedure struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (p *blockingProcedure) CreateCheckout(ctx context.Context, _ checkout.Params) (string, error) {
	p.calls.Add(1)
	select {
	case <-p.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if p.err != nil {
		return "", p.err
	}
	return uuid.NewString(), nil
}

func TestCoordinator_SecondCheckoutWhileSubmittingIsBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, uuid.NewString())
	f.fillCart(t)

	proc := &blockingProcedure{release: make(chan struct{})}
	coord := checkout.NewCoordinator(f.view, proc, nil, logger.Discard())

	errc := make(chan error, 1)
	go func() {
		_, err := coord.Checkout(ctx, checkout.Request{Address: "home", PaymentMethod: "cod"})
		errc <- err
	}()
	require.Eventually(t, func() bool { return coord.State() == checkout.StateSubmitting }, time.Second, 5*time.Millisecond)

	_, err := coord.Checkout(ctx, checkout.Request{Address: "home", PaymentMethod: "cod"})
	assert.ErrorIs(t, err, checkout.ErrCheckoutInFlight)
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))

	close(proc.release)
	require.NoError(t, <-errc)
	assert.Equal(t, int32(1), proc.calls.Load())
	assert.Equal(t, checkout.StateSucceeded, coord.State())
}

func TestCoordinator_ProcedureErrorIsSurfacedVerbatim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, uuid.NewString())
	f.fillCart(t)

	cause := apperr.Validation("address too long")
	proc := &blockingProcedure{release: make(chan struct{}), err: cause}
	close(proc.release)
	events := &recordingPublisher{}
	coord := checkout.NewCoordinator(f.view, proc, events, logger.Discard())

	_, err := coord.Checkout(ctx, checkout.Request{Address: "home", PaymentMethod: "transfer"})
	assert.Same(t, cause, err)
	assert.Equal(t, checkout.StateIdle, coord.State())
	assert.Empty(t, events.events)

	assert.Equal(t, 2, f.view.Len(), "cart untouched")
	items, err := f.store.ListLines(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCoordinator_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, uuid.NewString())
	f.fillCart(t)
	f.events.err = errors.New("broker unavailable")

	res, err := f.coord.Checkout(context.Background(), checkout.Request{Address: "home", PaymentMethod: "QRIS"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
}
