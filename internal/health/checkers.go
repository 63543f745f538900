package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger — компонент с проверкой соединения (postgres store, redis
// клиент, поисковый движок).
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker оборачивает Pinger в Checker.
func NewPingChecker(name string, pinger Pinger) *SimpleChecker {
	return NewSimpleChecker(name, func(ctx context.Context) error {
		return pinger.Ping(ctx)
	})
}

// BacklogStats поставляет статистику неопубликованных событий.
type BacklogStats func() (count int, oldest time.Time, err error)

// BacklogChecker деградирует статус, когда backlog событий растёт или
// стареет: шина ещё жива, но publish-путь отстаёт.
type BacklogChecker struct {
	name      string
	stats     BacklogStats
	maxCount  int
	maxOldest time.Duration
}

// NewBacklogChecker создаёт проверку backlog с порогами деградации.
func NewBacklogChecker(name string, stats BacklogStats, maxCount int, maxOldest time.Duration) *BacklogChecker {
	return &BacklogChecker{
		name:      name,
		stats:     stats,
		maxCount:  maxCount,
		maxOldest: maxOldest,
	}
}

// Check выполняет проверку backlog.
func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	count, oldest, err := c.stats()
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	status := StatusHealthy
	message := ""
	if c.maxCount > 0 && count > c.maxCount {
		status = StatusDegraded
		message = fmt.Sprintf("%d events awaiting publication", count)
	}
	if c.maxOldest > 0 && !oldest.IsZero() && time.Since(oldest) > c.maxOldest {
		status = StatusDegraded
		message = fmt.Sprintf("oldest unpublished event is %s old", time.Since(oldest).Round(time.Second))
	}

	return Check{
		Name:       c.name,
		Status:     status,
		Message:    message,
		DurationMs: duration.Milliseconds(),
	}
}
