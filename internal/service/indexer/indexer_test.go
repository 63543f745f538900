package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/search"
	"github.com/darioristic/crmflow/internal/storage/memory"
)

func seedOffer(t *testing.T, offers domain.OfferRepository, id, number, company string) {
	t.Helper()
	err := offers.Create(domain.Offer{
		ID:          id,
		Number:      number,
		CompanyID:   "company-1",
		CompanyName: company,
		Status:      domain.OfferStatusDraft,
		Currency:    "EUR",
		TotalMinor:  100000,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed offer %s: %v", id, err)
	}
}

func TestIndexerHandleEventUpserts(t *testing.T) {
	t.Parallel()

	engine := search.NewMemoryEngine()
	offers := memory.NewOfferRepository()
	seedOffer(t, offers, "offer-1", "OF-2026-001", "Acme GmbH")

	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	err := ix.HandleEvent(ctx, domain.DomainEvent{
		EventType:     domain.EventOfferCreated,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	result, err := ix.Search(ctx, search.Query{Term: "acme"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Hits) != 1 || result.Hits[0]["id"] != "offer-1" {
		t.Fatalf("expected offer-1 indexed, got %v", result.Hits)
	}
}

func TestIndexerHandleEventDeletesMissingAggregate(t *testing.T) {
	t.Parallel()

	engine := search.NewMemoryEngine()
	offers := memory.NewOfferRepository()
	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	// Документ есть в индексе, агрегата в хранилище уже нет.
	if err := engine.Upsert(ctx, IndexOffers, []search.Document{{"id": "offer-gone", "number": "OF-0"}}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	err := ix.HandleEvent(ctx, domain.DomainEvent{
		EventType:     domain.EventOfferExpired,
		AggregateID:   "offer-gone",
		AggregateType: domain.AggregateOffer,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	result, _ := ix.Search(ctx, search.Query{})
	if len(result.Hits) != 0 {
		t.Fatalf("expected document removed, got %v", result.Hits)
	}
}

// flakyEngine падает на первых failures записях, дальше делегирует
// реальному движку.
type flakyEngine struct {
	search.Engine
	mu       sync.Mutex
	failures int
	attempts int
}

func (e *flakyEngine) Upsert(ctx context.Context, indexUID string, docs []search.Document) error {
	e.mu.Lock()
	e.attempts++
	fail := e.failures > 0
	if fail {
		e.failures--
	}
	e.mu.Unlock()
	if fail {
		return errors.New("engine unavailable")
	}
	return e.Engine.Upsert(ctx, indexUID, docs)
}

func TestIndexerRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	inner := search.NewMemoryEngine()
	engine := &flakyEngine{Engine: inner, failures: 2}
	offers := memory.NewOfferRepository()
	seedOffer(t, offers, "offer-1", "OF-2026-001", "Acme GmbH")

	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	err := ix.HandleEvent(ctx, domain.DomainEvent{
		EventType:     domain.EventOfferCreated,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if engine.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", engine.attempts)
	}
}

func TestIndexerDefaultRetryScheduleAllowsThreeRetries(t *testing.T) {
	t.Parallel()

	inner := search.NewMemoryEngine()
	engine := &flakyEngine{Engine: inner, failures: 3}
	offers := memory.NewOfferRepository()
	seedOffer(t, offers, "offer-1", "OF-2026-001", "Acme GmbH")

	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	// Три переходных сбоя укладываются в дефолтный бюджет retry.
	err := ix.HandleEvent(ctx, domain.DomainEvent{
		EventType:     domain.EventOfferCreated,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
	})
	if err != nil {
		t.Fatalf("expected success on fourth attempt, got %v", err)
	}
	if engine.attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", engine.attempts)
	}
}

func TestIndexerGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	inner := search.NewMemoryEngine()
	engine := &flakyEngine{Engine: inner, failures: 10}
	offers := memory.NewOfferRepository()
	seedOffer(t, offers, "offer-1", "OF-2026-001", "Acme GmbH")

	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0), WithMaxAttempts(3))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	err := ix.HandleEvent(ctx, domain.DomainEvent{
		EventType:     domain.EventOfferCreated,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if engine.attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", engine.attempts)
	}
}

func TestIndexerReindexAll(t *testing.T) {
	t.Parallel()

	engine := search.NewMemoryEngine()
	offers := memory.NewOfferRepository()
	seedOffer(t, offers, "offer-1", "OF-2026-001", "Acme GmbH")
	seedOffer(t, offers, "offer-2", "OF-2026-002", "Globex AG")

	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	// Осиротевший документ исчезает при полной переиндексации.
	if err := engine.Upsert(ctx, IndexOffers, []search.Document{{"id": "stale", "number": "OF-0"}}); err != nil {
		t.Fatalf("seed stale doc: %v", err)
	}

	if err := ix.ReindexAll(ctx); err != nil {
		t.Fatalf("reindex all: %v", err)
	}

	result, err := ix.Search(ctx, search.Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.EstimatedTotal != 2 {
		t.Fatalf("expected 2 documents after reindex, got %d", result.EstimatedTotal)
	}
	for _, hit := range result.Hits {
		if hit["id"] == "stale" {
			t.Error("expected stale document to be removed")
		}
	}
}

func TestIndexerSearchDefaultsToNewestFirst(t *testing.T) {
	t.Parallel()

	engine := search.NewMemoryEngine()
	offers := memory.NewOfferRepository()
	ix := NewOfferIndexer(engine, offers, WithRetryBaseDelay(0))
	ctx := context.Background()
	if err := ix.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	docs := []search.Document{
		{"id": "old", "number": "OF-1", "createdAt": int64(100)},
		{"id": "new", "number": "OF-2", "createdAt": int64(200)},
	}
	if err := engine.Upsert(ctx, IndexOffers, docs); err != nil {
		t.Fatalf("seed docs: %v", err)
	}

	result, err := ix.Search(ctx, search.Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Hits) != 2 || result.Hits[0]["id"] != "new" {
		t.Fatalf("expected newest first, got %v", result.Hits)
	}
}
