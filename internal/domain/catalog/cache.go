// internal/domain/catalog/cache.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/observe"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPageSize is the number of products per page
	DefaultPageSize = 8
	// DefaultTTL is how long a listing is served without refetching
	DefaultTTL = 5 * time.Minute
	// DefaultFetchTimeout bounds one shared page fetch
	DefaultFetchTimeout = 10 * time.Second
)

// ErrCacheClosed is returned by loads started after Close
var ErrCacheClosed = errors.New("catalog cache closed")

// Cursor is the position of the last listed product. Listings are ordered by
// created_at then id, both descending.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// CursorOf returns the cursor positioned at p
func CursorOf(p product.Product) Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// IsZero reports whether c is the start of the listing
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == 0
}

// Admits reports whether p comes strictly after c in listing order
func (c Cursor) Admits(p product.Product) bool {
	if c.IsZero() {
		return true
	}
	if p.CreatedAt.Equal(c.CreatedAt) {
		return p.ID < c.ID
	}
	return p.CreatedAt.Before(c.CreatedAt)
}

func (c Cursor) key() string {
	if c.IsZero() {
		return "page:first"
	}
	return fmt.Sprintf("page:%s:%d", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
}

// Source lists products newest first. A zero cursor means the first page;
// otherwise only products the cursor admits are returned.
type Source interface {
	ListProducts(ctx context.Context, after Cursor, limit int) ([]product.Product, error)
}

// Options tune a Cache. Zero values fall back to the defaults.
type Options struct {
	PageSize     int
	TTL          time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Snapshot is the listing as seen by one reader
type Snapshot struct {
	Items   []product.Product `json:"items"`
	HasMore bool              `json:"has_more"`
	Loaded  bool              `json:"loaded"`
}

// Cache is the product listing of one browsing session. It merges paginated
// fetches with live inserts and never holds two entries with the same id.
type Cache struct {
	sessionID string
	source    Source
	store     SessionStore
	log       logrus.FieldLogger
	pageSize  int
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time

	sf singleflight.Group

	mu         sync.RWMutex
	items      []product.Product
	hasMore    bool
	loaded     bool
	capturedAt time.Time // when the first page of items was fetched
	gen        uint64    // bumped when the list is replaced
	closed     bool
	stopWatch  func()

	listeners observe.Subject[Snapshot]
}

// NewCache creates the listing cache of sessionID
func NewCache(sessionID string, source Source, store SessionStore, opts Options, log logrus.FieldLogger) *Cache {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		sessionID: sessionID,
		source:    source,
		store:     store,
		log:       log.WithFields(logrus.Fields{"component": "catalog", "session_id": sessionID}),
		pageSize:  opts.PageSize,
		ttl:       opts.TTL,
		timeout:   opts.FetchTimeout,
		now:       opts.Now,
		hasMore:   true,
	}
}

// Mount serves the session record when it is fresh and non-empty; otherwise it
// loads the first page. A record that cannot be read counts as absent.
func (c *Cache) Mount(ctx context.Context) error {
	if c.isClosed() {
		return ErrCacheClosed
	}

	entry, err := c.store.Get(ctx, c.sessionID)
	switch {
	case err == nil && len(entry.Items) > 0 && !entry.Expired(c.now(), c.ttl):
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrCacheClosed
		}
		c.items = entry.Items
		c.hasMore = true
		c.loaded = true
		c.capturedAt = entry.CapturedAt
		c.gen++
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.log.WithField("items", len(entry.Items)).Debug("catalog served from session record")
		c.listeners.Notify(snap)
		return nil
	case err != nil && !errors.Is(err, ErrRecordMiss):
		c.log.WithError(err).Warn("catalog record unreadable, fetching fresh")
	}

	return c.Load(ctx, Cursor{})
}

// Load fetches one page. With a zero cursor the page replaces the list and is
// persisted as the session record; otherwise it is appended.
//
// Concurrent loads of the same cursor share one fetch. The fetch is detached
// from ctx so a caller that goes away does not fail the others; ctx only
// bounds how long this caller waits.
func (c *Cache) Load(ctx context.Context, cursor Cursor) error {
	c.mu.RLock()
	gen := c.gen
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrCacheClosed
	}

	ch := c.sf.DoChan(cursor.key(), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		page, err := c.source.ListProducts(fetchCtx, cursor, c.pageSize)
		if err != nil {
			return nil, apperr.Storage("failed to load products", err)
		}
		c.apply(fetchCtx, cursor, gen, page)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.log.WithError(res.Err).Warn("catalog load failed")
			return res.Err
		}
		if res.Shared {
			c.log.Debug("catalog load shared with concurrent caller")
		}
		return nil
	}
}

func (c *Cache) apply(ctx context.Context, cursor Cursor, gen uint64, page []product.Product) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	first := cursor.IsZero()
	if !first && gen != c.gen {
		// The list was replaced while this page was in flight; its cursor no
		// longer refers to this list.
		c.mu.Unlock()
		return
	}

	now := c.now()
	if first {
		c.items = dedupe(page, nil)
		c.capturedAt = now
		c.gen++
	} else {
		c.items = append(c.items, dedupe(page, c.items)...)
	}
	c.hasMore = len(page) >= c.pageSize
	c.loaded = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if first {
		entry := Entry{CapturedAt: now, Items: snap.Items}
		if err := c.store.Put(ctx, c.sessionID, entry); err != nil {
			c.log.WithError(err).Warn("failed to persist catalog record")
		}
	}
	c.listeners.Notify(snap)
}

// LoadMore fetches the page after the last item. It does nothing when there
// are no more pages or the list is empty. Concurrent calls share one fetch.
func (c *Cache) LoadMore(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrCacheClosed
	}
	if !c.hasMore || len(c.items) == 0 {
		c.mu.RUnlock()
		return nil
	}
	cursor := CursorOf(c.items[len(c.items)-1])
	c.mu.RUnlock()

	return c.Load(ctx, cursor)
}

// Items returns a copy of the current listing
func (c *Cache) Items() []product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshotAll(c.items)
}

// HasMore reports whether another page may exist
func (c *Cache) HasMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasMore
}

// CapturedAt returns when the listing's first page was fetched. It is zero
// before the first load.
func (c *Cache) CapturedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturedAt
}

// Stale reports whether the listing must be mounted again before it is
// served: it was never loaded or is older than the TTL.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.loaded || c.now().Sub(c.capturedAt) > c.ttl
}

// Snapshot returns the listing with its pagination state
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() Snapshot {
	return Snapshot{
		Items:   snapshotAll(c.items),
		HasMore: c.hasMore,
		Loaded:  c.loaded,
	}
}

// Subscribe registers fn to receive the listing after every change
func (c *Cache) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return c.listeners.Subscribe(fn)
}

// Watch applies product inserts from feed until ctx is done or Close is called
func (c *Cache) Watch(ctx context.Context, feed changefeed.Feed) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	if c.stopWatch != nil {
		c.mu.Unlock()
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub, err := feed.Subscribe(watchCtx, changefeed.TableProducts, []changefeed.EventType{changefeed.EventInsert}, nil)
	if err != nil {
		c.mu.Unlock()
		cancel()
		return apperr.Storage("failed to subscribe to product changes", err)
	}

	done := make(chan struct{})
	c.stopWatch = func() {
		cancel()
		sub.Close()
		<-done
	}
	c.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				var p product.Product
				if err := ev.Decode(&p); err != nil {
					c.log.WithError(err).Warn("ignoring undecodable product insert")
					continue
				}
				c.ApplyInsert(watchCtx, p)
			}
		}
	}()
	return nil
}

// ApplyInsert prepends p unless an item with its id is already listed. The
// session record is invalidated either way.
func (c *Cache) ApplyInsert(ctx context.Context, p product.Product) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	added := !containsID(c.items, p.ID)
	if added {
		c.items = append([]product.Product{p.Snapshot()}, c.items...)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.store.Delete(ctx, c.sessionID); err != nil {
		c.log.WithError(err).Warn("failed to invalidate catalog record")
	}
	if added {
		c.log.WithField("product_id", p.ID).Debug("product insert applied")
		c.listeners.Notify(snap)
	}
}

// Forget removes the session record
func (c *Cache) Forget(ctx context.Context) error {
	return c.store.Delete(ctx, c.sessionID)
}

// Close stops applying events. Fetches still in flight are discarded.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stop := c.stopWatch
	c.stopWatch = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (c *Cache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func containsID(items []product.Product, id uint) bool {
	for _, p := range items {
		if p.ID == id {
			return true
		}
	}
	return false
}

// dedupe returns the products of page whose id is neither in existing nor
// earlier in page
func dedupe(page, existing []product.Product) []product.Product {
	seen := make(map[uint]struct{}, len(page)+len(existing))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
	}
	out := make([]product.Product, 0, len(page))
	for _, p := range page {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.Snapshot())
	}
	return out
}
