package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
)

var publishStoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_publisher_events_total",
	Help: "Total number of events handled by the publisher grouped by result.",
}, []string{"result"})

// Publisher реализует операцию «записать, затем опубликовать»: событие
// сначала сохраняется в журнал, затем best-effort отправляется на шину.
// Сбой публикации не виден вызывающему — неопубликованное событие
// остаётся в backlog и позже досылается outbox relay.
type Publisher struct {
	events domain.EventRepository
	bus    domain.EventBus
	logger *log.Entry
}

func New(events domain.EventRepository, bus domain.EventBus) *Publisher {
	return &Publisher{
		events: events,
		bus:    bus,
		logger: log.WithField("component", "event-publisher"),
	}
}

func (p *Publisher) PublishAndStore(subject, eventType, aggregateID string, aggregateType domain.AggregateType, payload, metadata any) (domain.DomainEvent, error) {
	rawPayload, err := marshalRaw(payload)
	if err != nil {
		return domain.DomainEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}
	rawMetadata, err := marshalRaw(metadata)
	if err != nil {
		return domain.DomainEvent{}, fmt.Errorf("marshal event metadata: %w", err)
	}

	event := domain.DomainEvent{
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       rawPayload,
		Metadata:      rawMetadata,
		OccurredAt:    time.Now().UTC(),
	}
	if errs := event.Validate(); len(errs) > 0 {
		return domain.DomainEvent{}, fmt.Errorf("invalid event: %v", errs)
	}

	stored, err := p.events.Append(event)
	if err != nil {
		publishStoreTotal.WithLabelValues("store_error").Inc()
		return domain.DomainEvent{}, fmt.Errorf("failed to store event: %w", err)
	}

	if err := p.bus.Publish(subject, stored); err != nil {
		// Событие уже записано: relay дошлёт его позже.
		publishStoreTotal.WithLabelValues("deferred").Inc()
		p.logger.WithError(err).WithFields(log.Fields{
			"subject":  subject,
			"event_id": stored.ID,
		}).Warn("event stored but not published, left for outbox relay")
		return stored, nil
	}

	if err := p.events.MarkPublished(stored.ID); err != nil {
		p.logger.WithError(err).WithField("event_id", stored.ID).
			Error("failed to mark event as published")
	} else {
		stored.Published = true
	}

	publishStoreTotal.WithLabelValues("published").Inc()
	return stored, nil
}

func marshalRaw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
