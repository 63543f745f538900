package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultQueryTTL = 5 * time.Minute

var cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_cache_requests_total",
	Help: "Total number of query cache lookups grouped by result.",
}, []string{"result"})

// QueryCache — read-through кэш результатов запросов с инвалидацией по
// тегам. Ключи — соглашение вида "<entity>:<id>" или
// "<entity>:<param>:<value>". Кэш — ускоритель, не источник истины:
// любая ошибка Redis деградирует в прямое выполнение запроса.
type QueryCache struct {
	client *Client
	logger *log.Entry
	ttl    time.Duration
}

// NewQueryCache создаёт кэш с TTL по умолчанию.
func NewQueryCache(client *Client, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = defaultQueryTTL
	}
	return &QueryCache{
		client: client,
		logger: log.WithField("component", "query-cache"),
		ttl:    ttl,
	}
}

// QueryOption настраивает отдельный вызов кэша.
type QueryOption func(*queryOptions)

type queryOptions struct {
	ttl time.Duration
}

// WithTTL переопределяет время жизни записи для конкретного вызова.
// Неположительное значение игнорируется.
func WithTTL(ttl time.Duration) QueryOption {
	return func(opts *queryOptions) {
		if ttl > 0 {
			opts.ttl = ttl
		}
	}
}

func (c *QueryCache) queryOptions(options []QueryOption) queryOptions {
	opts := queryOptions{ttl: c.ttl}
	for _, option := range options {
		option(&opts)
	}
	return opts
}

// GetOrLoad возвращает закэшированное значение по key, десериализуя его в
// dest. При промахе вызывает load, кэширует результат под указанными
// тегами и также кладёт его в dest. Возвращает признак попадания.
func (c *QueryCache) GetOrLoad(ctx context.Context, key string, tags []string, load func(ctx context.Context) (any, error), dest any, options ...QueryOption) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(data, dest); err == nil {
			cacheRequestsTotal.WithLabelValues("hit").Inc()
			return true, nil
		}
		// Нечитаемая запись выбрасывается и перезаполняется.
		c.logger.WithField("key", key).Warn("dropping unreadable cache entry")
		_ = c.client.Del(ctx, key).Err()
	case errors.Is(err, redis.Nil):
		// miss
	default:
		cacheRequestsTotal.WithLabelValues("bypass").Inc()
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed, falling through to loader")
		value, loadErr := load(ctx)
		if loadErr != nil {
			return false, loadErr
		}
		return false, assign(value, dest)
	}

	cacheRequestsTotal.WithLabelValues("miss").Inc()
	return false, c.fill(ctx, key, tags, c.queryOptions(options).ttl, load, dest)
}

// Revalidate принудительно выполняет запрос и перезаписывает кэш, минуя
// чтение существующей записи.
func (c *QueryCache) Revalidate(ctx context.Context, key string, tags []string, load func(ctx context.Context) (any, error), dest any, options ...QueryOption) error {
	cacheRequestsTotal.WithLabelValues("revalidate").Inc()
	return c.fill(ctx, key, tags, c.queryOptions(options).ttl, load, dest)
}

func (c *QueryCache) fill(ctx context.Context, key string, tags []string, ttl time.Duration, load func(ctx context.Context) (any, error), dest any) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, encoded, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKey(tag), key)
		// TTL тега обновляется вместе с записью, чтобы множество не
		// пережило свои ключи навсегда.
		pipe.Expire(ctx, tagKey(tag), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed, serving uncached result")
	}

	return json.Unmarshal(encoded, dest)
}

// Invalidate удаляет записи по точным ключам.
func (c *QueryCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	return nil
}

// InvalidateTag удаляет все записи, помеченные тегом, и само множество
// тега.
func (c *QueryCache) InvalidateTag(ctx context.Context, tag string) error {
	setKey := tagKey(tag)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read tag set %s: %w", tag, err)
	}

	keys := append(members, setKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tag %s: %w", tag, err)
	}
	return nil
}

// InvalidatePattern удаляет записи по glob-паттерну ключа через SCAN.
func (c *QueryCache) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys for %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate pattern %s: %w", pattern, err)
	}
	return nil
}

// assign переносит значение loader'а в dest через JSON, когда запись в
// кэш не состоялась.
func assign(value, dest any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode loaded value: %w", err)
	}
	return json.Unmarshal(encoded, dest)
}
