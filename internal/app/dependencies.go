package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/cache"
	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/messaging/kafka"
	"github.com/darioristic/crmflow/internal/search"
	"github.com/darioristic/crmflow/internal/service/indexer"
	"github.com/darioristic/crmflow/internal/service/outbox"
	"github.com/darioristic/crmflow/internal/service/publisher"
	"github.com/darioristic/crmflow/internal/service/saga"
	"github.com/darioristic/crmflow/internal/storage/memory"
	"github.com/darioristic/crmflow/internal/storage/postgres"
)

// Dependencies — контейнер зависимостей приложения. Все компоненты
// создаются один раз здесь и передаются по ссылке; пакетных синглтонов
// в кодовой базе нет.
type Dependencies struct {
	Logger *log.Entry

	Store *postgres.Store

	Offers     domain.OfferRepository
	Orders     domain.OrderRepository
	Deliveries domain.DeliveryRepository
	Invoices   domain.InvoiceRepository
	Events     domain.EventRepository

	Bus       *kafka.Bus
	Publisher domain.EventPublisher

	Coordinator *saga.Coordinator
	Relay       *outbox.Relay

	SearchEngine search.Engine
	Indexers     []*indexer.Indexer

	Redis       *cache.Client
	QueryCache  *cache.QueryCache
	RateLimiter *cache.RateLimiter
	Sessions    *cache.SessionManager
}

// NewDependencies собирает контейнер по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.Store = store
		deps.Offers = postgres.NewOfferRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Deliveries = postgres.NewDeliveryRepository(store)
		deps.Invoices = postgres.NewInvoiceRepository(store)
		deps.Events = postgres.NewEventRepository(store)
		logger.Info("using postgres storage")
	} else {
		deps.Offers = memory.NewOfferRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Deliveries = memory.NewDeliveryRepository()
		deps.Invoices = memory.NewInvoiceRepository()
		deps.Events = memory.NewEventRepository()
		logger.Warn("CRM_POSTGRES_DSN is not set, using in-memory storage")
	}

	deps.Bus = kafka.NewBus(cfg.KafkaBrokers)
	deps.Publisher = publisher.New(deps.Events, deps.Bus)

	deps.Coordinator = saga.NewCoordinator(
		deps.Offers, deps.Orders, deps.Deliveries, deps.Invoices, deps.Publisher,
	)
	deps.Relay = outbox.NewRelay(
		deps.Events, deps.Bus,
		outbox.WithPollInterval(cfg.OutboxPollInterval),
	)

	if cfg.MeiliHost != "" {
		deps.SearchEngine = search.NewMeiliEngine(cfg.MeiliHost, cfg.MeiliAPIKey)
		logger.WithField("host", cfg.MeiliHost).Info("using meilisearch engine")
	} else {
		deps.SearchEngine = search.NewMemoryEngine()
		logger.Warn("CRM_MEILI_HOST is not set, using in-memory search engine")
	}
	deps.Indexers = []*indexer.Indexer{
		indexer.NewOfferIndexer(deps.SearchEngine, deps.Offers),
		indexer.NewOrderIndexer(deps.SearchEngine, deps.Orders),
		indexer.NewDeliveryIndexer(deps.SearchEngine, deps.Deliveries),
		indexer.NewInvoiceIndexer(deps.SearchEngine, deps.Invoices),
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		deps.Redis = client
		deps.QueryCache = cache.NewQueryCache(client, cfg.CacheTTL)
		deps.RateLimiter = cache.NewRateLimiter(client, cfg.RateLimit, cfg.RateWindow)
		deps.Sessions = cache.NewSessionManager(client, cfg.SessionTTL)
		logger.WithField("addr", cfg.RedisAddr).Info("redis cache layer initialized")
	} else {
		logger.Warn("CRM_REDIS_ADDR is not set, cache layer is disabled")
	}

	return deps, nil
}

// Close освобождает внешние соединения контейнера.
func (d *Dependencies) Close() {
	if d.Bus != nil {
		if err := d.Bus.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close event bus")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
