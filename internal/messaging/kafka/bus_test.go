package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/messaging/kafka"
)

func TestBusPublishAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	bus := kafka.NewBus([]string{"127.0.0.1:1"})
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := bus.Publish(domain.EventOfferAccepted, domain.DomainEvent{
		EventType:     domain.EventOfferAccepted,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
	})
	if !errors.Is(err, domain.ErrEventPublish) {
		t.Fatalf("expected ErrEventPublish, got %v", err)
	}
	if bus.Connected() {
		t.Error("closed bus must not reconnect on publish")
	}
}

func TestBusSubscribeAfterCloseFails(t *testing.T) {
	t.Parallel()

	bus := kafka.NewBus([]string{"127.0.0.1:1"})
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := bus.Subscribe(context.Background(), "test-group", "offer.*", func(ctx context.Context, event domain.DomainEvent) error {
		return nil
	}); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
}
