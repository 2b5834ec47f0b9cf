// internal/infrastructure/changefeed/feed.go
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the kind of row change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Tables published by the backing store
const (
	TableProducts = "products"
	TableCarts    = "carts"
)

// Event is one row-level change notification
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
	At    time.Time       `json:"at"`
}

// Row returns the row image the event is about: the new row, or the old one for deletes
func (e Event) Row() json.RawMessage {
	if len(e.New) > 0 {
		return e.New
	}
	return e.Old
}

// Decode unmarshals the event row into v
func (e Event) Decode(v interface{}) error {
	row := e.Row()
	if len(row) == 0 {
		return errors.New("event carries no row")
	}
	if err := json.Unmarshal(row, v); err != nil {
		return fmt.Errorf("decode %s %s event: %w", e.Table, e.Type, err)
	}
	return nil
}

// Filter restricts a subscription to rows whose Column equals Value
type Filter struct {
	Column string
	Value  string
}

// Matches reports whether the event row satisfies the filter
func (f *Filter) Matches(e Event) bool {
	if f == nil {
		return true
	}
	var row map[string]interface{}
	if err := json.Unmarshal(e.Row(), &row); err != nil {
		return false
	}
	v, ok := row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Subscription is a bounded stream of events. Events that do not fit into the
// queue are dropped and counted; consumers must treat events as hints.
type Subscription interface {
	Events() <-chan Event
	Dropped() uint64
	Close() error
}

// Feed is the consumer side of the change feed
type Feed interface {
	// Subscribe streams events for table. A nil or empty events slice means all types.
	Subscribe(ctx context.Context, table string, events []EventType, filter *Filter) (Subscription, error)
}

// Publisher is the producer side of the change feed
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NewEvent marshals old and new rows into an event
func NewEvent(table string, typ EventType, oldRow, newRow interface{}) (Event, error) {
	e := Event{Table: table, Type: typ, At: time.Now().UTC()}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal old row: %w", err)
		}
		e.Old = b
	}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal new row: %w", err)
		}
		e.New = b
	}
	return e, nil
}
