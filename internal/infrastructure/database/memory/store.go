// internal/infrastructure/database/memory/store.go
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// Store is a process-local backing store with the same guarantees as the
// PostgreSQL one: one line per (user, product, size), atomic merges and an
// all-or-nothing checkout. Every committed write is published to the feed.
type Store struct {
	mu        sync.RWMutex
	products  map[uint]*product.Product
	lines     map[uint]*cart.Line
	lineKeys  map[lineKey]uint // (user, product, size) -> line id
	orders    map[string]*order.Order
	roles     map[string]access.Role
	nextProd  uint
	nextLine  uint
	nextOItem uint

	feed changefeed.Publisher
	log  logrus.FieldLogger
	now  func() time.Time
}

type lineKey struct {
	userID    string
	productID uint
	size      string
}

// NewStore creates an empty store. feed may be nil.
func NewStore(feed changefeed.Publisher, log logrus.FieldLogger) *Store {
	return &Store{
		products: make(map[uint]*product.Product),
		lines:    make(map[uint]*cart.Line),
		lineKeys: make(map[lineKey]uint),
		orders:   make(map[string]*order.Order),
		roles:    make(map[string]access.Role),
		feed:     feed,
		log:      log.WithField("component", "memory_store"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) publish(ctx context.Context, table string, typ changefeed.EventType, oldRow, newRow interface{}) {
	if s.feed == nil {
		return
	}
	ev, err := changefeed.NewEvent(table, typ, oldRow, newRow)
	if err != nil {
		s.log.WithError(err).Warn("failed to build change event")
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.log.WithError(err).Warn("failed to publish change event")
	}
}

// Products

// CreateProduct inserts p, keeping a caller supplied CreatedAt
func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	s.mu.Lock()
	s.nextProd++
	p.ID = s.nextProd
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	stored := p.Snapshot()
	s.products[p.ID] = &stored
	s.mu.Unlock()

	s.publish(ctx, changefeed.TableProducts, changefeed.EventInsert, nil, stored)
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uint) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product not found")
	}
	cp := p.Snapshot()
	return &cp, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *product.Product) error {
	s.mu.Lock()
	old, ok := s.products[p.ID]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("product not found")
	}
	before := old.Snapshot()
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.now()
	stored := p.Snapshot()
	s.products[p.ID] = &stored
	s.mu.Unlock()

	s.publish(ctx, changefeed.TableProducts, changefeed.EventUpdate, before, stored)
	return nil
}

// DeleteProduct removes a product and the cart lines holding it. Products
// that appear on an order cannot be deleted.
func (s *Store) DeleteProduct(ctx context.Context, id uint) error {
	s.mu.Lock()
	p, ok := s.products[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("product not found")
	}
	for _, o := range s.orders {
		for _, l := range o.Lines {
			if l.ProductID == id {
				s.mu.Unlock()
				return apperr.New(apperr.KindConflict, "product is referenced by an order")
			}
		}
	}

	var removed []cart.Line
	for lineID, l := range s.lines {
		if l.ProductID == id {
			removed = append(removed, *l)
			delete(s.lineKeys, keyOf(l))
			delete(s.lines, lineID)
		}
	}
	before := p.Snapshot()
	delete(s.products, id)
	s.mu.Unlock()

	for _, l := range removed {
		s.publish(ctx, changefeed.TableCarts, changefeed.EventDelete, l, nil)
	}
	s.publish(ctx, changefeed.TableProducts, changefeed.EventDelete, before, nil)
	return nil
}

// ListProducts implements catalog.Source
func (s *Store) ListProducts(_ context.Context, after catalog.Cursor, limit int) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		if !after.Admits(*p) {
			continue
		}
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cart lines

func keyOf(l *cart.Line) lineKey {
	return lineKey{userID: l.UserID, productID: l.ProductID, size: l.Size}
}

// IncrementOrCreateLine implements cart.LineRepository. The lookup and the
// write happen under one lock, which is what makes concurrent adds merge.
func (s *Store) IncrementOrCreateLine(ctx context.Context, line *cart.Line) error {
	s.mu.Lock()
	if _, ok := s.products[line.ProductID]; !ok {
		s.mu.Unlock()
		return apperr.NotFound("product not found")
	}

	now := s.now()
	key := keyOf(line)
	var (
		before *cart.Line
		typ    = changefeed.EventInsert
	)
	if id, ok := s.lineKeys[key]; ok {
		existing := s.lines[id]
		prev := *existing
		before = &prev
		existing.Quantity += line.Quantity
		existing.UpdatedAt = now
		*line = *existing
		typ = changefeed.EventUpdate
	} else {
		s.nextLine++
		line.ID = s.nextLine
		line.CreatedAt = now
		line.UpdatedAt = now
		stored := *line
		s.lines[line.ID] = &stored
		s.lineKeys[key] = line.ID
	}
	after := *line
	s.mu.Unlock()

	if before != nil {
		s.publish(ctx, changefeed.TableCarts, typ, *before, after)
	} else {
		s.publish(ctx, changefeed.TableCarts, typ, nil, after)
	}
	return nil
}

func (s *Store) SetLineQuantity(ctx context.Context, userID string, lineID uint, quantity int) error {
	if quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}

	s.mu.Lock()
	l, ok := s.lines[lineID]
	if !ok || l.UserID != userID {
		s.mu.Unlock()
		return apperr.NotFound("cart item not found")
	}
	before := *l
	l.Quantity = quantity
	l.UpdatedAt = s.now()
	after := *l
	s.mu.Unlock()

	s.publish(ctx, changefeed.TableCarts, changefeed.EventUpdate, before, after)
	return nil
}

func (s *Store) DeleteLine(ctx context.Context, userID string, lineID uint) error {
	s.mu.Lock()
	l, ok := s.lines[lineID]
	if !ok || l.UserID != userID {
		s.mu.Unlock()
		return nil
	}
	before := *l
	delete(s.lines, lineID)
	delete(s.lineKeys, keyOf(l))
	s.mu.Unlock()

	s.publish(ctx, changefeed.TableCarts, changefeed.EventDelete, before, nil)
	return nil
}

// ListLines implements cart.LineLister. Lines whose product is gone are skipped.
func (s *Store) ListLines(_ context.Context, userID string) ([]cart.AggregateItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userItemsLocked(userID), nil
}

func (s *Store) userItemsLocked(userID string) []cart.AggregateItem {
	items := make([]cart.AggregateItem, 0)
	for _, l := range s.lines {
		if l.UserID != userID {
			continue
		}
		p, ok := s.products[l.ProductID]
		if !ok {
			continue
		}
		items = append(items, cart.AggregateItem{Line: *l, Product: p.Snapshot()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Line.ID < items[j].Line.ID })
	return items
}

// Checkout

// CreateCheckout implements checkout.Procedure. Validation, order creation
// and emptying the cart happen under one lock.
func (s *Store) CreateCheckout(ctx context.Context, p checkout.Params) (string, error) {
	if strings.TrimSpace(p.Address) == "" {
		return "", apperr.Validation("address is required")
	}
	if !p.PaymentMethod.Valid() {
		return "", apperr.Validation("invalid payment method")
	}

	s.mu.Lock()
	items := s.userItemsLocked(p.UserID)
	if len(items) == 0 {
		s.mu.Unlock()
		return "", apperr.EmptyCart("cart is empty")
	}

	now := s.now()
	totals := cart.CalculateTotals(items)
	o := &order.Order{
		ID:             uuid.New().String(),
		UserID:         p.UserID,
		Address:        strings.TrimSpace(p.Address),
		PaymentMethod:  p.PaymentMethod,
		Sizes:          p.Sizes,
		SubtotalAmount: totals.SubTotal,
		ShippingAmount: totals.ShippingCost,
		TotalAmount:    totals.TotalAmount,
		Status:         order.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	removed := make([]cart.Line, 0, len(items))
	for _, item := range items {
		s.nextOItem++
		o.Lines = append(o.Lines, order.Line{
			ID:        s.nextOItem,
			OrderID:   o.ID,
			ProductID: item.Line.ProductID,
			Quantity:  item.Line.Quantity,
			Price:     item.Product.Price,
			Size:      item.Line.Size,
			CreatedAt: now,
		})
		removed = append(removed, item.Line)
		delete(s.lineKeys, keyOf(&item.Line))
		delete(s.lines, item.Line.ID)
	}
	s.orders[o.ID] = o
	s.mu.Unlock()

	for _, l := range removed {
		s.publish(ctx, changefeed.TableCarts, changefeed.EventDelete, l, nil)
	}
	return o.ID, nil
}

// Orders

func (s *Store) ListOrders(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, s.orderWithProductsLocked(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	cp := s.orderWithProductsLocked(o)
	return &cp, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return apperr.NotFound("order not found")
	}
	o.Status = status
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) orderWithProductsLocked(o *order.Order) order.Order {
	cp := *o
	cp.Lines = make([]order.Line, len(o.Lines))
	for i, l := range o.Lines {
		if p, ok := s.products[l.ProductID]; ok {
			snap := p.Snapshot()
			l.Product = &snap
		}
		cp.Lines[i] = l
	}
	return cp
}

// Profiles

// SetRole records the role of an identity
func (s *Store) SetRole(_ context.Context, userID string, role access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
	return nil
}

// GetRole implements access.RoleLookup
func (s *Store) GetRole(_ context.Context, userID string) (access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[userID]
	if !ok {
		return access.RoleUnknown, apperr.NotFound("profile not found")
	}
	return role, nil
}

// Ping reports the store as healthy
func (s *Store) Ping(context.Context) error {
	return nil
}
