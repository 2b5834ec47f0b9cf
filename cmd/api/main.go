// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/domain/session"
	"github.com/your-org/storefront-engine/internal/infrastructure/changefeed"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/memory"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-engine/internal/interfaces/http"
	"github.com/your-org/storefront-engine/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-engine/internal/interfaces/http/routes"
	"github.com/your-org/storefront-engine/internal/pkg/auth"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
	"github.com/your-org/storefront-engine/internal/pkg/pdf"
)

// backingStore is everything the service needs from the store adapters
type backingStore interface {
	product.Repository
	catalog.Source
	cart.LineRepository
	checkout.Procedure
	order.Repository
	access.RoleLookup
	Ping(ctx context.Context) error
}

// feedSource is a change feed that may need a pump goroutine
type feedSource interface {
	changefeed.Feed
	Close() error
}

type backend struct {
	store   backingStore
	feed    feedSource
	run     func(ctx context.Context) // pumps the feed, nil when not needed
	cleanup func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.Infof("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(cfg, log)
	if err != nil {
		log.Fatalf("Failed to open backing store: %v", err)
	}
	defer be.cleanup()
	if be.run != nil {
		go be.run(ctx)
	}

	healthChecks := []handlers.HealthCheck{{Name: "store", Check: be.store.Ping}}

	// Redis holds the per-session catalog records and rate limit counters. Without
	// it records stay in process memory and rate limiting is off.
	var catalogStore catalog.SessionStore = catalog.NewMemoryStore()
	var redisClient *goredis.Client
	if rc, err := redis.NewConnection(cfg, log); err != nil {
		log.WithError(err).Warn("⚠️ Redis unavailable, catalog records kept in memory")
	} else {
		defer rc.Close()
		redisClient = rc.GetClient()
		catalogStore = catalog.NewRedisStore(redisClient, cfg.Session.IdleTimeout, log)
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "redis", Check: rc.Health, Optional: true})
	}

	var events checkout.EventPublisher = checkout.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := checkout.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, log)
		defer kp.Close()
		events = kp
		log.WithField("topic", cfg.Kafka.OrderTopic).Info("✅ Order events published to Kafka")
	}

	sessions := session.NewManager(session.Deps{
		Products:     be.store,
		CatalogStore: catalogStore,
		CatalogOpts: catalog.Options{
			PageSize:     cfg.Catalog.PageSize,
			TTL:          cfg.Catalog.CacheTTL,
			FetchTimeout: cfg.Catalog.FetchTimeout,
		},
		Lines:     be.store,
		Procedure: be.store,
		Events:    events,
		Feed:      be.feed,
	}, session.Options{
		IdleTimeout:    cfg.Session.IdleTimeout,
		PendingTimeout: cfg.Session.PendingTimeout,
		MaxSessions:    cfg.Session.MaxSessions,
	}, log)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	lines := cart.NewLineStore(be.store, log)
	lines.OnMutation(sessions.OnCartMutation)

	policy := access.Policy{
		UserPrefixes:  cfg.Access.UserPrefixes,
		AdminPrefixes: cfg.Access.AdminPrefixes,
		SignInPath:    cfg.Access.SignInPath,
		HomePath:      cfg.Access.HomePath,
	}

	server := http.NewServer(cfg, http.Dependencies{
		Services: routes.Services{
			Products: product.NewService(be.store, log),
			Orders:   order.NewService(be.store, log),
			Lines:    lines,
			Invoices: pdf.NewService(cfg.Invoice),
		},
		Sessions: sessions,
		Gate:     access.NewGate(policy, be.store, log),
		JWT:      auth.NewJWTManager(cfg.JWT),
		Redis:    redisClient,
		Health:   healthChecks,
	}, log)

	log.Info("✅ All systems operational!")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
		stop()
	case <-ctx.Done():
	}

	log.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	sessions.Close()

	log.Info("✅ Server shutdown completed")
}

// openBackend connects the store selected by STORE_DRIVER together with its change feed
func openBackend(cfg *config.Config, log *logrus.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case "memory":
		broker := changefeed.NewBroker(cfg.Catalog.FeedQueueSize, log)
		store := memory.NewStore(broker, log)
		log.Warn("⚠️ Using the in-memory store, data is lost on restart")
		return &backend{
			store:   store,
			feed:    broker,
			cleanup: func() { broker.Close() },
		}, nil

	case "postgres", "":
		conn, err := postgres.NewConnection(cfg, log)
		if err != nil {
			return nil, err
		}

		migration := postgres.NewMigration(conn.GetDB(), cfg.Database.FeedChannel, log)
		if err := migration.Run(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		if cfg.IsDevelopment() {
			if err := migration.SeedInitialData(); err != nil {
				log.WithError(err).Warn("⚠️ Data seeding failed")
			}
		}

		feed, err := changefeed.NewPostgresFeed(cfg.GetDatabaseDSN(), cfg.Database.FeedChannel, cfg.Catalog.FeedQueueSize, log)
		if err != nil {
			conn.Close()
			return nil, err
		}

		return &backend{
			store: postgres.NewStore(conn.GetDB()),
			feed:  feed,
			run:   feed.Run,
			cleanup: func() {
				feed.Close()
				conn.Close()
			},
		}, nil

	default:
		return nil, errors.New("unknown STORE_DRIVER " + cfg.Store.Driver)
	}
}
