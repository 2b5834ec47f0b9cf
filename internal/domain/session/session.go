// internal/domain/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
)

// Binding is the cart view and checkout coordinator of one identity. Callers
// keep the Binding returned for their identity instead of reading the
// session again, since a concurrent Bind may replace it.
type Binding struct {
	UserID   string
	Cart     *cart.View
	Checkout *checkout.Coordinator
}

// Session is one browsing session and the components it owns. The catalog
// exists from the start; the cart components exist once an identity is bound.
type Session struct {
	ID string

	mgr *Manager

	mu        sync.Mutex
	userID    string
	catalog   *catalog.Cache
	binding   *Binding
	lastSeen  time.Time
	confirmed bool
	closed    bool
}

// UserID returns the bound identity, empty for anonymous sessions
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Catalog returns the session's listing cache
func (s *Session) Catalog() *catalog.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Cart returns the cart view of the bound identity, nil when anonymous
func (s *Session) Cart() *cart.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return nil
	}
	return s.binding.Cart
}

// Checkout returns the checkout coordinator of the bound identity, nil when anonymous
func (s *Session) Checkout() *checkout.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return nil
	}
	return s.binding.Checkout
}

// Bind attaches userID to the session and returns its binding. Binding a
// different identity replaces the cart components; binding the empty
// identity drops them and returns nil.
func (s *Session) Bind(ctx context.Context, userID string) (*Binding, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.userID == userID {
		b := s.binding
		s.mu.Unlock()
		return b, nil
	}

	old := s.binding
	s.userID = userID
	s.binding = nil

	var b *Binding
	if userID != "" {
		view := s.mgr.newCartView(userID)
		b = &Binding{UserID: userID, Cart: view, Checkout: s.mgr.newCoordinator(view)}
		s.binding = b
	}
	watch := s.confirmed
	s.mu.Unlock()

	if old != nil {
		old.Cart.Close()
	}
	if b == nil {
		return nil, nil
	}

	if watch {
		s.mgr.watchCart(b.Cart)
	}
	return b, b.Cart.Refresh(ctx)
}

// confirm marks the session as returning and starts its feed watchers. It
// reports whether this call confirmed it.
func (s *Session) confirm() bool {
	s.mu.Lock()
	if s.closed || s.confirmed {
		s.mu.Unlock()
		return false
	}
	s.confirmed = true
	cache := s.catalog
	var view *cart.View
	if s.binding != nil {
		view = s.binding.Cart
	}
	s.mu.Unlock()

	s.mgr.watchCatalog(s, cache)
	if view != nil {
		s.mgr.watchCart(view)
	}
	return true
}

func (s *Session) isConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// close stops every component. The catalog record is removed from the session store.
func (s *Session) close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cache, b := s.catalog, s.binding
	s.mu.Unlock()

	if b != nil {
		b.Cart.Close()
	}
	if cache != nil {
		cache.Close()
		if err := cache.Forget(ctx); err != nil {
			s.mgr.log.WithError(err).WithField("session_id", s.ID).Warn("failed to remove catalog record")
		}
	}
}
