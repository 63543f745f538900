package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var rateLimiterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_rate_limiter_decisions_total",
	Help: "Total number of rate limiter decisions grouped by result.",
}, []string{"result"})

// RateLimiter — скользящее окно поверх Redis sorted set: score и member
// каждой записи привязаны к моменту запроса, просроченные записи
// вычищаются при каждой проверке. Недоступный Redis открывает лимитер
// (fail open): лимитирование — защита, а не бизнес-инвариант.
type RateLimiter struct {
	client *Client
	logger *log.Entry
	limit  int64
	window time.Duration
}

// NewRateLimiter создаёт лимитер: не более limit запросов на scope за
// window.
func NewRateLimiter(client *Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: log.WithField("component", "rate-limiter"),
		limit:  limit,
		window: window,
	}
}

// Allow регистрирует запрос в окне scope и сообщает, укладывается ли он
// в лимит.
func (l *RateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	key := rateKey(scope)
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		rateLimiterDecisions.WithLabelValues("fail_open").Inc()
		l.logger.WithError(err).WithField("scope", scope).Warn("rate limiter unavailable, allowing request")
		return true, nil
	}

	if countCmd.Val() >= l.limit {
		rateLimiterDecisions.WithLabelValues("limited").Inc()
		return false, nil
	}

	addPipe := l.client.TxPipeline()
	addPipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	addPipe.Expire(ctx, key, l.window)
	if _, err := addPipe.Exec(ctx); err != nil {
		rateLimiterDecisions.WithLabelValues("fail_open").Inc()
		l.logger.WithError(err).WithField("scope", scope).Warn("rate limiter write failed, allowing request")
		return true, nil
	}

	rateLimiterDecisions.WithLabelValues("allowed").Inc()
	return true, nil
}

// Reset очищает окно scope.
func (l *RateLimiter) Reset(ctx context.Context, scope string) error {
	if err := l.client.Del(ctx, rateKey(scope)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", scope, err)
	}
	return nil
}
