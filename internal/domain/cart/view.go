// internal/domain/cart/view.go
package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/observe"
)

// ErrViewClosed is returned by Refresh once the view has been closed
var ErrViewClosed = errors.New("cart view closed")

// LineLister reads a user's cart lines joined with their products
type LineLister interface {
	ListLines(ctx context.Context, userID string) ([]AggregateItem, error)
}

// View is a session-local, derived copy of one user's cart. It is only ever
// changed by Refresh, which replaces the list wholesale.
type View struct {
	userID string
	lister LineLister
	log    logrus.FieldLogger
	now    func() time.Time

	// refreshMu serializes refreshes so a slow, older listing can never
	// overwrite a newer one.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	items       []AggregateItem
	refreshedAt time.Time
	closed      bool
	stopWatch   func()

	listeners observe.Subject[Snapshot]
}

// NewView creates an empty view for userID. Call Refresh or Watch to populate it.
func NewView(userID string, lister LineLister, log logrus.FieldLogger) *View {
	return &View{
		userID: userID,
		lister: lister,
		log:    log.WithFields(logrus.Fields{"component": "cart_view", "user_id": userID}),
		now:    time.Now,
	}
}

// UserID returns the owner of the view
func (v *View) UserID() string {
	return v.userID
}

// Refresh lists the user's lines and replaces the view with them. On failure
// the previous list is kept.
func (v *View) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	if v.isClosed() {
		return ErrViewClosed
	}

	items, err := v.lister.ListLines(ctx, v.userID)
	if err != nil {
		v.log.WithError(err).Warn("cart refresh failed, keeping previous list")
		return apperr.Storage("failed to load cart", err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.items = items
	v.refreshedAt = v.now()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.listeners.Notify(snap)
	return nil
}

// Snapshot returns a copy of the current view
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	items := make([]AggregateItem, len(v.items))
	for i, item := range v.items {
		items[i] = AggregateItem{Line: item.Line, Product: item.Product.Snapshot()}
	}
	return Snapshot{
		UserID:      v.userID,
		Items:       items,
		Totals:      CalculateTotals(items),
		RefreshedAt: v.refreshedAt,
	}
}

// Subtotal is the sum of quantity times unit price over all lines
func (v *View) Subtotal() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var subtotal int64
	for _, item := range v.items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// Shipping returns the shipping cost for subtotal
func (v *View) Shipping(subtotal int64) int64 {
	return Shipping(subtotal)
}

// Total is subtotal plus shipping
func (v *View) Total() int64 {
	subtotal := v.Subtotal()
	return subtotal + Shipping(subtotal)
}

// Count is the total quantity across lines
func (v *View) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	n := 0
	for _, item := range v.items {
		n += item.Line.Quantity
	}
	return n
}

// Len is the number of lines
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.items)
}

// Subscribe registers fn to receive a snapshot after every successful refresh
func (v *View) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return v.listeners.Subscribe(fn)
}

// Watch keeps the view in sync with cart changes of its user and with price
// or availability changes of the products it lists. Bursts of events are
// coalesced into a single refresh.
func (v *View) Watch(ctx context.Context, feed changefeed.Feed) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.stopWatch != nil {
		v.mu.Unlock()
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	lines, err := feed.Subscribe(watchCtx, changefeed.TableCarts, nil, &changefeed.Filter{
		Column: "user_id",
		Value:  v.userID,
	})
	if err != nil {
		v.mu.Unlock()
		cancel()
		return apperr.Storage("failed to subscribe to cart changes", err)
	}
	products, err := feed.Subscribe(watchCtx, changefeed.TableProducts,
		[]changefeed.EventType{changefeed.EventUpdate, changefeed.EventDelete}, nil)
	if err != nil {
		v.mu.Unlock()
		lines.Close()
		cancel()
		return apperr.Storage("failed to subscribe to product changes", err)
	}

	done := make(chan struct{})
	v.stopWatch = func() {
		cancel()
		lines.Close()
		products.Close()
		<-done
	}
	v.mu.Unlock()

	go v.reconcile(watchCtx, lines, products, done)
	return nil
}

func (v *View) reconcile(ctx context.Context, lines, products changefeed.Subscription, done chan struct{}) {
	defer close(done)

	lineC, productC := lines.Events(), products.Events()
	var dropped uint64
	for lineC != nil || productC != nil {
		var stale bool
		select {
		case <-ctx.Done():
			return
		case _, ok := <-lineC:
			if !ok {
				lineC = nil
				continue
			}
			stale = true
		case ev, ok := <-productC:
			if !ok {
				productC = nil
				continue
			}
			stale = v.lists(ev)
		}

		// Drain whatever else is queued; one refresh covers all of it.
		if v.drain(lineC, productC) {
			stale = true
		}
		// A dropped event may have been relevant.
		if n := lines.Dropped() + products.Dropped(); n > dropped {
			v.log.WithField("dropped", n-dropped).Debug("change events dropped, reconciling by refresh")
			dropped = n
			stale = true
		}
		if !stale {
			continue
		}

		if err := v.Refresh(ctx); err != nil {
			if errors.Is(err, ErrViewClosed) || ctx.Err() != nil {
				return
			}
			v.log.WithError(err).Warn("reconciliation refresh failed")
		}
	}
}

// drain consumes queued events without blocking and reports whether any of
// them concern the view
func (v *View) drain(lineC, productC <-chan changefeed.Event) bool {
	stale := false
	for {
		select {
		case _, ok := <-lineC:
			if !ok {
				return stale
			}
			stale = true
		case ev, ok := <-productC:
			if !ok {
				return stale
			}
			if v.lists(ev) {
				stale = true
			}
		default:
			return stale
		}
	}
}

// lists reports whether the product of a product event is in the view
func (v *View) lists(ev changefeed.Event) bool {
	var row struct {
		ID uint `json:"id"`
	}
	if err := ev.Decode(&row); err != nil {
		v.log.WithError(err).Warn("ignoring undecodable product event")
		return false
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, it := range v.items {
		if it.Line.ProductID == row.ID {
			return true
		}
	}
	return false
}

// Close stops reconciliation. Results of refreshes still in flight are discarded.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	stop := v.stopWatch
	v.stopWatch = nil
	v.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (v *View) isClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}
