package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

// Envelope — wire-формат доменного события. occurredAt сериализуется как
// ISO-8601 (RFC3339) строка.
type Envelope struct {
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// NewEnvelope строит конверт из доменного события.
func NewEnvelope(event domain.DomainEvent) Envelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Envelope{
		EventType:     event.EventType,
		AggregateID:   event.AggregateID,
		AggregateType: string(event.AggregateType),
		Payload:       event.Payload,
		Metadata:      event.Metadata,
		OccurredAt:    occurred,
	}
}

// Encode сериализует конверт в wire-формат.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DomainEvent конвертирует конверт обратно в доменное событие.
func (e Envelope) DomainEvent() domain.DomainEvent {
	return domain.DomainEvent{
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: domain.AggregateType(e.AggregateType),
		Payload:       e.Payload,
		Metadata:      e.Metadata,
		OccurredAt:    e.OccurredAt,
	}
}

// ParseEnvelope разбирает конверт из байтов сообщения и валидирует
// обязательные поля.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if errs := env.DomainEvent().Validate(); len(errs) > 0 {
		return Envelope{}, fmt.Errorf("invalid event envelope: %v", errs)
	}
	return env, nil
}
