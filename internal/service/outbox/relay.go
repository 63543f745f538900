package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	relayPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_outbox_publish_attempts_total",
		Help: "Total number of outbox relay publish attempts grouped by result.",
	}, []string{"result"})
	relayUnpublishedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_outbox_unpublished_events",
		Help: "Current number of stored events awaiting publication.",
	})
	relayOldestUnpublishedAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_outbox_oldest_unpublished_age_seconds",
		Help: "Age in seconds of the oldest unpublished event.",
	})
)

// RelayOptions задаёт параметры outbox relay.
type RelayOptions struct {
	Logger         *log.Entry
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Relay.
type Option func(*RelayOptions)

// WithLogger задаёт logger для relay.
func WithLogger(logger *log.Entry) Option {
	return func(opts *RelayOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт частоту опроса журнала событий.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *RelayOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча неопубликованных событий.
func WithBatchSize(batchSize int) Option {
	return func(opts *RelayOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации за один цикл.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *RelayOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *RelayOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Relay досылает на шину события, которые были записаны в журнал, но не
// опубликованы (например, шина была недоступна в момент записи). Событие,
// не ушедшее после всех попыток, остаётся в backlog и будет взято снова в
// следующем цикле.
type Relay struct {
	events         domain.EventRepository
	bus            domain.EventBus
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewRelay создаёт outbox relay.
func NewRelay(events domain.EventRepository, bus domain.EventBus, options ...Option) *Relay {
	opts := RelayOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-relay")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Relay{
		events:         events,
		bus:            bus,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run запускает периодический polling журнала до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.events == nil || r.bus == nil {
		r.logger.Warn("outbox relay is disabled: event repository or bus is nil")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл.
func (r *Relay) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	r.refreshBacklogMetrics()

	events, err := r.events.PullUnpublished(r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull unpublished events")
		return
	}
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}

		if err := r.publishWithRetry(ctx, event); err != nil {
			// Событие остаётся неопубликованным, следующий цикл
			// попробует снова.
			relayPublishAttempts.WithLabelValues("failed").Inc()
			r.logger.WithError(err).WithFields(log.Fields{
				"event_id":   event.ID,
				"event_type": event.EventType,
			}).Error("outbox publish failed after retries, event left in backlog")
			continue
		}

		if err := r.events.MarkPublished(event.ID); err != nil {
			r.logger.WithError(err).WithField("event_id", event.ID).
				Warn("failed to mark event as published")
		}
	}

	r.refreshBacklogMetrics()
}

func (r *Relay) publishWithRetry(ctx context.Context, event domain.DomainEvent) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.bus.Publish(event.EventType, event)
		if err == nil {
			relayPublishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		relayPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= r.maxAttempts {
			break
		}

		delay := r.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Relay) refreshBacklogMetrics() {
	stats, err := r.events.Stats()
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect event backlog stats")
		return
	}

	relayUnpublishedEvents.Set(float64(stats.UnpublishedCount))
	if stats.UnpublishedCount == 0 || stats.OldestUnpublishedAt.IsZero() {
		relayOldestUnpublishedAge.Set(0)
		return
	}

	age := time.Since(stats.OldestUnpublishedAt).Seconds()
	if age < 0 {
		age = 0
	}
	relayOldestUnpublishedAge.Set(age)
}

func (r *Relay) retryBackoff(attempt int) time.Duration {
	if r.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := r.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
