// internal/domain/session/manager.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
)

// ErrSessionClosed is returned when a closed session is used
var ErrSessionClosed = errors.New("session closed")

// Deps are the collaborators shared by all sessions
type Deps struct {
	Products     catalog.Source
	CatalogStore catalog.SessionStore
	CatalogOpts  catalog.Options
	Lines        cart.LineLister
	Procedure    checkout.Procedure
	Events       checkout.EventPublisher
	Feed         changefeed.Feed // nil disables live updates
}

// Options bound the number and lifetime of live sessions
type Options struct {
	// IdleTimeout closes confirmed sessions nobody used for this long
	IdleTimeout time.Duration
	// PendingTimeout closes sessions whose cookie never came back
	PendingTimeout time.Duration
	// MaxSessions caps live sessions; pending ones are evicted first
	MaxSessions int
}

// Manager creates sessions on first use and closes them once idle. A new
// session is pending until a request presents its id again; only confirmed
// sessions subscribe to the change feed.
type Manager struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	// base outlives individual requests; session watchers run under it
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(deps Deps, opts Options, log logrus.FieldLogger) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.PendingTimeout <= 0 || opts.PendingTimeout > opts.IdleTimeout {
		opts.PendingTimeout = opts.IdleTimeout
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}

	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		opts:     opts,
		log:      log.WithField("component", "session_manager"),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.NewString()
}

// Acquire returns the session with id, creating a pending one when it does
// not exist or the id is not a valid session id. Presenting the id of a
// pending session confirms it. The returned session is marked as used.
func (m *Manager) Acquire(id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		id = NewID()
	}
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	var evicted *Session
	if !ok {
		if len(m.sessions) >= m.opts.MaxSessions {
			evicted = m.evictLocked()
		}
		s = &Session{ID: id, mgr: m, lastSeen: now}
		s.catalog = catalog.NewCache(id, m.deps.Products, m.deps.CatalogStore, m.deps.CatalogOpts, m.log)
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.touch(now)
	if evicted != nil {
		evicted.close(m.base)
		m.log.WithField("session_id", evicted.ID).Debug("session evicted at capacity")
	}
	if !ok {
		m.log.WithField("session_id", id).Debug("session started")
	} else if s.confirm() {
		m.log.WithField("session_id", id).Debug("session confirmed")
	}
	return s
}

// evictLocked removes the least recently used session, preferring pending
// ones. m.mu must be held.
func (m *Manager) evictLocked() *Session {
	var victim *Session
	victimPending := false
	var victimSeen time.Time
	for _, s := range m.sessions {
		pending := !s.isConfirmed()
		seen := s.idleSince()
		switch {
		case victim == nil,
			pending && !victimPending,
			pending == victimPending && seen.Before(victimSeen):
			victim, victimPending, victimSeen = s, pending, seen
		}
	}
	if victim != nil {
		delete(m.sessions, victim.ID)
	}
	return victim
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End closes the session with id
func (m *Manager) End(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close(ctx)
		m.log.WithField("session_id", id).Debug("session ended")
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes idle sessions and returns how many it closed. Pending sessions
// expire after PendingTimeout, confirmed ones after IdleTimeout.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	idleCutoff := now.Add(-m.opts.IdleTimeout)
	pendingCutoff := now.Add(-m.opts.PendingTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		cutoff := idleCutoff
		if !s.isConfirmed() {
			cutoff = pendingCutoff
		}
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close(ctx)
	}
	if len(expired) > 0 {
		m.log.WithField("count", len(expired)).Info("idle sessions closed")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes all sessions
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			m.Close()
			return
		}
	}
}

// Close ends every session and stops their watchers
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range all {
		s.close(ctx)
	}
	m.cancel()
}

// RefreshUser refreshes the cart view of every session bound to userID. It is
// registered as a cart line store mutation listener.
func (m *Manager) RefreshUser(userID string) {
	m.mu.Lock()
	var views []*cart.View
	for _, s := range m.sessions {
		if s.UserID() == userID {
			if v := s.Cart(); v != nil {
				views = append(views, v)
			}
		}
	}
	m.mu.Unlock()

	for _, v := range views {
		ctx, cancel := context.WithTimeout(m.base, 5*time.Second)
		if err := v.Refresh(ctx); err != nil && !errors.Is(err, cart.ErrViewClosed) {
			m.log.WithError(err).WithField("user_id", userID).Warn("cart refresh after mutation failed")
		}
		cancel()
	}
}

// OnCartMutation adapts RefreshUser to cart.LineStore.OnMutation
func (m *Manager) OnCartMutation(mu cart.Mutation) {
	m.RefreshUser(mu.UserID)
}

func (m *Manager) newCartView(userID string) *cart.View {
	return cart.NewView(userID, m.deps.Lines, m.log)
}

func (m *Manager) newCoordinator(view *cart.View) *checkout.Coordinator {
	return checkout.NewCoordinator(view, m.deps.Procedure, m.deps.Events, m.log)
}

func (m *Manager) watchCart(view *cart.View) {
	if m.deps.Feed == nil {
		return
	}
	if err := view.Watch(m.base, m.deps.Feed); err != nil && !errors.Is(err, cart.ErrViewClosed) {
		m.log.WithError(err).WithField("user_id", view.UserID()).Warn("cart live updates unavailable")
	}
}

func (m *Manager) watchCatalog(s *Session, cache *catalog.Cache) {
	if m.deps.Feed == nil {
		return
	}
	if err := cache.Watch(m.base, m.deps.Feed); err != nil && !errors.Is(err, catalog.ErrCacheClosed) {
		m.log.WithError(err).WithField("session_id", s.ID).Warn("catalog live updates unavailable")
	}
}
