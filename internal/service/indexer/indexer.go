package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/search"
)

const (
	// Первая попытка плюс три retry с задержками 1s/2s/4s.
	defaultMaxAttempts    = 4
	defaultRetryBaseDelay = 1 * time.Second
	defaultSearchLimit    = 20
	reindexBatchSize      = 500
)

var indexerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_indexer_operations_total",
	Help: "Total number of indexer operations grouped by index and result.",
}, []string{"index", "result"})

// Config связывает индекс с агрегатом: откуда брать документы и на какой
// subject-паттерн реагировать.
type Config struct {
	IndexUID string
	// Pattern — subject-паттерн событий, по которым документ
	// переиндексируется ("offer.*").
	Pattern  string
	Settings search.IndexSettings
	// DefaultSort применяется, когда запрос не задаёт сортировку.
	DefaultSort []string
	// LoadDocument строит документ агрегата по его идентификатору.
	LoadDocument func(aggregateID string) (search.Document, error)
	// ListDocuments возвращает все документы агрегата для полной
	// переиндексации.
	ListDocuments func() ([]search.Document, error)
	// NotFoundErr — sentinel хранилища для отсутствующего агрегата; по
	// нему документ удаляется из индекса.
	NotFoundErr error
}

// Options задаёт параметры индексатора.
type Options struct {
	Logger         *log.Entry
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Indexer.
type Option func(*Options)

// WithLogger задаёт logger индексатора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMaxAttempts задаёт число попыток записи в индекс.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *Options) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.RetryBaseDelay = delay
	}
}

// Indexer поддерживает поисковый индекс одного агрегата: реагирует на
// события шины, пишет документы с retry, умеет полную переиндексацию.
// Индекс — производная read-модель: событие, не доехавшее до индекса
// после всех попыток, теряется и восстанавливается ReindexAll.
type Indexer struct {
	engine         search.Engine
	cfg            Config
	logger         *log.Entry
	maxAttempts    int
	retryBaseDelay time.Duration
}

// New создаёт индексатор.
func New(engine search.Engine, cfg Config, options ...Option) *Indexer {
	opts := Options{
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithFields(log.Fields{
			"component": "indexer",
			"index":     cfg.IndexUID,
		})
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Indexer{
		engine:         engine,
		cfg:            cfg,
		logger:         logger,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// IndexUID возвращает uid обслуживаемого индекса.
func (ix *Indexer) IndexUID() string {
	return ix.cfg.IndexUID
}

// EnsureIndex приводит индекс к схеме конфигурации.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	return ix.engine.EnsureIndex(ctx, ix.cfg.IndexUID, ix.cfg.Settings)
}

// Register подписывает индексатор на события его агрегата.
func (ix *Indexer) Register(ctx context.Context, bus domain.EventBus) (domain.BusSubscription, error) {
	group := "indexer-" + ix.cfg.IndexUID
	sub, err := bus.Subscribe(ctx, group, ix.cfg.Pattern, ix.HandleEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe indexer %s: %w", ix.cfg.IndexUID, err)
	}
	return sub, nil
}

// HandleEvent переиндексирует агрегат, которого коснулось событие.
// Отсутствующий агрегат трактуется как удалённый, его документ
// вычищается из индекса.
func (ix *Indexer) HandleEvent(ctx context.Context, event domain.DomainEvent) error {
	doc, err := ix.cfg.LoadDocument(event.AggregateID)
	if err != nil {
		if ix.cfg.NotFoundErr != nil && errors.Is(err, ix.cfg.NotFoundErr) {
			if delErr := ix.withRetry(ctx, func() error {
				return ix.engine.Delete(ctx, ix.cfg.IndexUID, event.AggregateID)
			}); delErr != nil {
				indexerOpsTotal.WithLabelValues(ix.cfg.IndexUID, "delete_failed").Inc()
				return fmt.Errorf("failed to delete document %s: %w", event.AggregateID, delErr)
			}
			indexerOpsTotal.WithLabelValues(ix.cfg.IndexUID, "deleted").Inc()
			return nil
		}
		indexerOpsTotal.WithLabelValues(ix.cfg.IndexUID, "load_failed").Inc()
		return fmt.Errorf("failed to load aggregate %s: %w", event.AggregateID, err)
	}

	if err := ix.withRetry(ctx, func() error {
		return ix.engine.Upsert(ctx, ix.cfg.IndexUID, []search.Document{doc})
	}); err != nil {
		indexerOpsTotal.WithLabelValues(ix.cfg.IndexUID, "upsert_failed").Inc()
		ix.logger.WithError(err).WithField("aggregate_id", event.AggregateID).
			Error("document lost after retries, run reindex to recover")
		return fmt.Errorf("failed to index document %s: %w", event.AggregateID, err)
	}

	indexerOpsTotal.WithLabelValues(ix.cfg.IndexUID, "indexed").Inc()
	return nil
}

// ReindexAll полностью перестраивает индекс из хранилища.
func (ix *Indexer) ReindexAll(ctx context.Context) error {
	docs, err := ix.cfg.ListDocuments()
	if err != nil {
		return fmt.Errorf("failed to list documents for reindex: %w", err)
	}

	if err := ix.engine.DeleteAll(ctx, ix.cfg.IndexUID); err != nil {
		return fmt.Errorf("failed to clear index %s: %w", ix.cfg.IndexUID, err)
	}

	for start := 0; start < len(docs); start += reindexBatchSize {
		end := start + reindexBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := ix.withRetry(ctx, func() error {
			return ix.engine.Upsert(ctx, ix.cfg.IndexUID, docs[start:end])
		}); err != nil {
			return fmt.Errorf("failed to reindex batch at %d: %w", start, err)
		}
	}

	ix.logger.WithField("documents", len(docs)).Info("index rebuilt")
	return nil
}

// Search выполняет запрос к индексу. Без явной сортировки результаты
// идут от новых к старым.
func (ix *Indexer) Search(ctx context.Context, query search.Query) (search.Result, error) {
	if len(query.Sort) == 0 {
		query.Sort = ix.cfg.DefaultSort
	}
	if query.Limit <= 0 {
		query.Limit = defaultSearchLimit
	}
	return ix.engine.Search(ctx, ix.cfg.IndexUID, query)
}

func (ix *Indexer) withRetry(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= ix.maxAttempts; attempt++ {
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt >= ix.maxAttempts {
			break
		}

		delay := ix.retryBaseDelay << (attempt - 1)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", ix.maxAttempts, lastErr)
}
