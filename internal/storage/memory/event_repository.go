package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darioristic/crmflow/internal/domain"
)

// eventRepositoryInMemory — append-only in-memory хранилище доменных событий.
type eventRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string]domain.DomainEvent
	order  []string
}

// NewEventRepository создаёт in-memory реализацию EventRepository.
func NewEventRepository() domain.EventRepository {
	return &eventRepositoryInMemory{events: make(map[string]domain.DomainEvent)}
}

func (r *eventRepositoryInMemory) Append(event domain.DomainEvent) (domain.DomainEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Published = false
	event.PublishedAt = time.Time{}

	r.events[event.ID] = event
	r.order = append(r.order, event.ID)
	return event, nil
}

func (r *eventRepositoryInMemory) Get(id string) (domain.DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return domain.DomainEvent{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (r *eventRepositoryInMemory) ListByAggregate(aggregateID string) ([]domain.DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.DomainEvent, 0)
	for _, id := range r.order {
		event := r.events[id]
		if event.AggregateID == aggregateID {
			result = append(result, event)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}

func (r *eventRepositoryInMemory) PullUnpublished(limit int) ([]domain.DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.DomainEvent, 0, limit)
	for _, id := range r.order {
		event := r.events[id]
		if event.Published {
			continue
		}
		result = append(result, event)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *eventRepositoryInMemory) MarkPublished(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	event.Published = true
	event.PublishedAt = time.Now().UTC()
	r.events[id] = event
	return nil
}

func (r *eventRepositoryInMemory) Stats() (domain.EventBacklogStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.EventBacklogStats
	for _, event := range r.events {
		if event.Published {
			continue
		}
		stats.UnpublishedCount++
		if stats.OldestUnpublishedAt.IsZero() || event.OccurredAt.Before(stats.OldestUnpublishedAt) {
			stats.OldestUnpublishedAt = event.OccurredAt
		}
	}
	return stats, nil
}

var _ domain.EventRepository = (*eventRepositoryInMemory)(nil)
