package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
	healthcheck "github.com/darioristic/crmflow/internal/health"
	"github.com/darioristic/crmflow/internal/search"
	"github.com/darioristic/crmflow/internal/version"
)

const (
	backlogDegradedCount = 1000
	backlogDegradedAge   = 5 * time.Minute
)

// Run запускает пайплайн: хранилище, шину, сагу, индексаторы, outbox
// relay и HTTP-сервер метрик/health. Блокируется до отмены ctx, затем
// аккуратно дорабатывает подписки и закрывает соединения.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Шина подключается лениво, но стартовая попытка сокращает паузу до
	// первой публикации.
	deps.Bus.Connect(ctx)

	for _, ix := range deps.Indexers {
		if err := ix.EnsureIndex(ctx); err != nil {
			logger.WithError(err).Warn("failed to ensure search index, indexing may fail until reindex")
		}
	}

	var subs []domain.BusSubscription
	closeSubs := func() {
		for _, sub := range subs {
			if err := sub.Close(); err != nil {
				logger.WithError(err).Warn("failed to close bus subscription")
			}
		}
	}

	sagaSubs, err := deps.Coordinator.Register(ctx, deps.Bus)
	if err != nil {
		return fmt.Errorf("register saga subscriptions: %w", err)
	}
	subs = append(subs, sagaSubs...)

	for _, ix := range deps.Indexers {
		sub, err := ix.Register(ctx, deps.Bus)
		if err != nil {
			closeSubs()
			return fmt.Errorf("register indexer subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		deps.Relay.Run(relayCtx)
	}()

	healthHandler := newHealthHandler(deps)
	srv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	logger.Info("pipeline started")
	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	// Сначала подписки: новые события не принимаются. Relay дорабатывает
	// последним, чтобы добить backlog, пока шина ещё открыта.
	closeSubs()
	stopRelay()
	wg.Wait()
	shutdownHTTP(srv, logger)

	logger.Info("pipeline stopped")
	return ctx.Err()
}

func newHealthHandler(deps *Dependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())

	if deps.Store != nil {
		handler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", deps.Store))
	}
	if deps.Redis != nil {
		handler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", deps.Redis.Health))
	}
	if engine, ok := deps.SearchEngine.(*search.MeiliEngine); ok {
		handler.RegisterChecker("meilisearch", healthcheck.NewPingChecker("meilisearch", engine))
	}
	handler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", func() (int, time.Time, error) {
		stats, err := deps.Events.Stats()
		if err != nil {
			return 0, time.Time{}, err
		}
		return stats.UnpublishedCount, stats.OldestUnpublishedAt, nil
	}, backlogDegradedCount, backlogDegradedAge))

	return handler
}

// startMetricsServer запускает HTTP-обработчики /metrics и health.
func startMetricsServer(addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
