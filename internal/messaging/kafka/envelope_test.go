package kafka_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/messaging/kafka"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	occurred := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	event := domain.DomainEvent{
		EventType:     domain.EventOfferAccepted,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
		Payload:       json.RawMessage(`{"offerId":"offer-1"}`),
		Metadata:      json.RawMessage(`{"source":"test"}`),
		OccurredAt:    occurred,
	}

	data, err := json.Marshal(kafka.NewEnvelope(event))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	if !strings.Contains(string(data), `"occurredAt":"2026-03-14T10:30:00Z"`) {
		t.Errorf("expected RFC3339 occurredAt, got %s", data)
	}

	env, err := kafka.ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}

	got := env.DomainEvent()
	if got.EventType != event.EventType {
		t.Errorf("expected event type %s, got %s", event.EventType, got.EventType)
	}
	if got.AggregateID != event.AggregateID {
		t.Errorf("expected aggregate id %s, got %s", event.AggregateID, got.AggregateID)
	}
	if got.AggregateType != event.AggregateType {
		t.Errorf("expected aggregate type %s, got %s", event.AggregateType, got.AggregateType)
	}
	if !got.OccurredAt.Equal(occurred) {
		t.Errorf("expected occurredAt %v, got %v", occurred, got.OccurredAt)
	}
}

func TestNewEnvelopeDefaultsOccurredAt(t *testing.T) {
	env := kafka.NewEnvelope(domain.DomainEvent{
		EventType:     domain.EventOrderCreated,
		AggregateID:   "order-1",
		AggregateType: domain.AggregateOrder,
	})
	if env.OccurredAt.IsZero() {
		t.Error("expected occurredAt to be defaulted")
	}
}

func TestParseEnvelopeInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"missing event type", `{"aggregateId":"a1","aggregateType":"offer"}`},
		{"missing aggregate id", `{"eventType":"offer.accepted","aggregateType":"offer"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := kafka.ParseEnvelope([]byte(tc.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExpandPatternWildcard(t *testing.T) {
	topics, err := kafka.ExpandPattern("offer.*")
	if err != nil {
		t.Fatalf("expand pattern: %v", err)
	}
	if len(topics) != 5 {
		t.Fatalf("expected 5 offer subjects, got %d: %v", len(topics), topics)
	}

	found := false
	for _, topic := range topics {
		if topic == domain.EventOfferAccepted {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in expanded topics", domain.EventOfferAccepted)
	}
}

func TestExpandPatternExact(t *testing.T) {
	topics, err := kafka.ExpandPattern("delivery.signed")
	if err != nil {
		t.Fatalf("expand pattern: %v", err)
	}
	if len(topics) != 1 || topics[0] != domain.EventDeliverySigned {
		t.Errorf("expected [delivery.signed], got %v", topics)
	}
}

func TestExpandPatternUnknown(t *testing.T) {
	if _, err := kafka.ExpandPattern("payment.*"); err == nil {
		t.Error("expected error for unknown aggregate pattern")
	}
	if _, err := kafka.ExpandPattern("offer.deleted"); err == nil {
		t.Error("expected error for unknown subject")
	}
	if _, err := kafka.ExpandPattern(""); err == nil {
		t.Error("expected error for empty pattern")
	}
}
