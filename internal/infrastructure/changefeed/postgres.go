// internal/infrastructure/changefeed/postgres.go
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresFeed turns NOTIFY payloads emitted by row triggers into events.
// The trigger payload is {"table": ..., "type": ..., "old": {...}, "new": {...}}.
type PostgresFeed struct {
	*Broker
	listener *pq.Listener
	channel  string
	log      logrus.FieldLogger
	done     chan struct{}
}

// NewPostgresFeed listens on channel and fans notifications out through a broker
func NewPostgresFeed(dsn, channel string, queueSize int, log logrus.FieldLogger) (*PostgresFeed, error) {
	entry := log.WithFields(logrus.Fields{"component": "postgres_feed", "channel": channel})

	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			entry.WithError(err).Warn("change feed connection attempt failed")
		case pq.ListenerEventDisconnected:
			entry.WithError(err).Warn("change feed disconnected")
		case pq.ListenerEventReconnected:
			entry.Info("change feed reconnected")
		}
	})

	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	return &PostgresFeed{
		Broker:   NewBroker(queueSize, log),
		listener: listener,
		channel:  channel,
		log:      entry,
		done:     make(chan struct{}),
	}, nil
}

// Run dispatches notifications until ctx is done
func (f *PostgresFeed) Run(ctx context.Context) {
	defer close(f.done)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications sent while disconnected are lost.
				// Consumers converge on their next refresh.
				continue
			}
			ev, err := parseNotification(n.Extra)
			if err != nil {
				f.log.WithError(err).Warn("ignoring malformed change notification")
				continue
			}
			f.Broker.Publish(ctx, ev)
		case <-ping.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.log.WithError(err).Warn("change feed ping failed")
				}
			}()
		}
	}
}

// Close stops listening and closes all subscriptions
func (f *PostgresFeed) Close() error {
	err := f.listener.Close()
	f.Broker.Close()
	return err
}

func parseNotification(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal notification: %w", err)
	}
	if ev.Table == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("notification missing table or type")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev, nil
}
