// internal/infrastructure/changefeed/broker.go
package changefeed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Broker is an in-process change feed. The postgres listener feeds it too, so
// fan-out and queue bounds behave the same for every source.
type Broker struct {
	queueSize int
	log       logrus.FieldLogger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

// NewBroker creates a broker whose subscriptions buffer up to queueSize events
func NewBroker(queueSize int, log logrus.FieldLogger) *Broker {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Broker{
		queueSize: queueSize,
		log:       log.WithField("component", "change_feed"),
		subs:      make(map[int]*subscription),
	}
}

type subscription struct {
	id      int
	broker  *Broker
	table   string
	types   map[EventType]bool
	filter  *Filter
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

func (s *subscription) Events() <-chan Event { return s.ch }

func (s *subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
	return nil
}

func (s *subscription) wants(e Event) bool {
	if e.Table != s.table {
		return false
	}
	if len(s.types) > 0 && !s.types[e.Type] {
		return false
	}
	return s.filter.Matches(e)
}

// Subscribe implements Feed. The subscription is closed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, table string, events []EventType, filter *Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:     b.nextID,
		broker: b,
		table:  table,
		filter: filter,
		ch:     make(chan Event, b.queueSize),
	}
	if len(events) > 0 {
		sub.types = make(map[EventType]bool, len(events))
		for _, t := range events {
			sub.types[t] = true
		}
	}
	if b.closed {
		close(sub.ch)
		return sub, nil
	}

	b.nextID++
	b.subs[sub.id] = sub

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

// Publish implements Publisher. It never blocks on a slow subscriber.
func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			n := sub.dropped.Add(1)
			b.log.WithFields(logrus.Fields{
				"table":   e.Table,
				"type":    e.Type,
				"dropped": n,
			}).Warn("subscriber queue full, event dropped")
		}
	}
	return nil
}

// Subscribers reports the number of open subscriptions
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	return nil
}

func (b *Broker) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
