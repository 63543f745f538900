package memory_test

import (
	"encoding/json"
	"testing"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/storage/memory"
)

func newEvent(aggregateID string) domain.DomainEvent {
	return domain.DomainEvent{
		EventType:     domain.EventOfferAccepted,
		AggregateID:   aggregateID,
		AggregateType: domain.AggregateOffer,
		Payload:       json.RawMessage(`{"companyId":"company-1","totalMinor":1000}`),
	}
}

func TestEventRepository_AppendAssignsID(t *testing.T) {
	repo := memory.NewEventRepository()

	stored, err := repo.Append(newEvent("offer-1"))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected generated event id")
	}
	if stored.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be set")
	}
	if stored.Published {
		t.Fatal("new event must not be marked published")
	}
}

func TestEventRepository_PullUnpublishedAndMark(t *testing.T) {
	repo := memory.NewEventRepository()

	first, _ := repo.Append(newEvent("offer-1"))
	second, _ := repo.Append(newEvent("offer-2"))

	pending, err := repo.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 unpublished events, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Fatalf("expected oldest event first, got %s", pending[0].ID)
	}

	if err := repo.MarkPublished(first.ID); err != nil {
		t.Fatalf("mark published failed: %v", err)
	}

	pending, _ = repo.PullUnpublished(10)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected only second event to remain unpublished, got %v", pending)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.UnpublishedCount != 1 {
		t.Fatalf("expected 1 unpublished in stats, got %d", stats.UnpublishedCount)
	}
}

func TestEventRepository_ListByAggregate(t *testing.T) {
	repo := memory.NewEventRepository()

	if _, err := repo.Append(newEvent("offer-1")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := repo.Append(newEvent("offer-2")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := repo.Append(newEvent("offer-1")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events, err := repo.ListByAggregate("offer-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for offer-1, got %d", len(events))
	}
}
