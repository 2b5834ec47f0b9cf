// internal/domain/catalog/redis_store.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// RedisStore keeps session listings in Redis behind a circuit breaker, so a
// struggling Redis degrades the catalog to plain fetches instead of stalling it.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	cb        *gobreaker.CircuitBreaker[[]byte]
	log       logrus.FieldLogger
}

// NewRedisStore creates a store whose keys expire after retention
func NewRedisStore(client *redis.Client, retention time.Duration, log logrus.FieldLogger) *RedisStore {
	entry := log.WithField("component", "catalog_store")

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "catalog-session-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &RedisStore{
		client:    client,
		retention: retention,
		cb:        cb,
		log:       entry,
	}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	data, err := s.cb.Execute(func() ([]byte, error) {
		b, err := s.client.Get(ctx, cacheKey(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is a healthy answer; it must not count against the breaker.
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	if data == nil {
		return nil, ErrRecordMiss
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal catalog record failed: %w", err)
	}
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal catalog record failed: %w", err)
	}

	_, err = s.cb.Execute(func() ([]byte, error) {
		return nil, s.client.Set(ctx, cacheKey(sessionID), payload, s.retention).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		return nil, s.client.Del(ctx, cacheKey(sessionID)).Err()
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("catalog:session:%s:cached_products", sessionID)
}
