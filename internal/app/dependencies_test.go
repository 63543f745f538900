package app

import (
	"context"
	"testing"
)

func TestNewDependenciesInMemory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Store != nil {
		t.Error("expected no postgres store without DSN")
	}
	if deps.Offers == nil || deps.Orders == nil || deps.Deliveries == nil || deps.Invoices == nil || deps.Events == nil {
		t.Error("expected all repositories to be initialized")
	}
	if deps.Bus == nil || deps.Publisher == nil {
		t.Error("expected bus and publisher to be initialized")
	}
	if deps.Coordinator == nil || deps.Relay == nil {
		t.Error("expected saga coordinator and outbox relay to be initialized")
	}
	if deps.SearchEngine == nil || len(deps.Indexers) != 4 {
		t.Errorf("expected 4 indexers over a search engine, got %d", len(deps.Indexers))
	}
	if deps.Redis != nil || deps.QueryCache != nil {
		t.Error("expected cache layer disabled without redis addr")
	}
}

func TestDependenciesEndToEndSagaStep(t *testing.T) {
	// Сквозная проверка DI: зависимости собраны контейнером, событие
	// саги проходит через publisher в журнал.
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("build dependencies: %v", err)
	}
	defer deps.Close()

	offer := seedAcceptedOffer(t, deps)

	err = deps.Coordinator.HandleOfferAccepted(context.Background(), offerAcceptedEvent(offer.ID))
	if err != nil {
		t.Fatalf("saga step: %v", err)
	}

	order, err := deps.Orders.GetByOffer(offer.ID)
	if err != nil {
		t.Fatalf("expected order created: %v", err)
	}

	events, err := deps.Events.ListByAggregate(order.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "order.created" {
		t.Fatalf("expected order.created stored, got %v", events)
	}
	// Брокер не сконфигурирован: событие остаётся в backlog для relay.
	if events[0].Published {
		t.Error("expected event unpublished without broker")
	}
}
