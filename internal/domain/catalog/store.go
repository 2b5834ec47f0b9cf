// internal/domain/catalog/store.go
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/your-org/storefront-engine/internal/domain/product"
)

// ErrRecordMiss is returned when a session has no cached listing
var ErrRecordMiss = errors.New("catalog record miss")

// Entry is the persisted listing of one session
type Entry struct {
	CapturedAt time.Time         `json:"captured_at"`
	Items      []product.Product `json:"items"`
}

// Expired reports whether the entry is older than ttl at now
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CapturedAt) > ttl
}

// SessionStore keeps one listing record per browsing session
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Entry, error)
	Put(ctx context.Context, sessionID string, e Entry) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is a process-local SessionStore
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrRecordMiss
	}
	e.Items = snapshotAll(e.Items)
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Items = snapshotAll(e.Items)
	s.entries[sessionID] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}

func snapshotAll(items []product.Product) []product.Product {
	out := make([]product.Product, len(items))
	for i, p := range items {
		out[i] = p.Snapshot()
	}
	return out
}
