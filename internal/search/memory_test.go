package search_test

import (
	"context"
	"testing"

	"github.com/darioristic/crmflow/internal/search"
)

func newIndex(t *testing.T) *search.MemoryEngine {
	t.Helper()
	engine := search.NewMemoryEngine()
	err := engine.EnsureIndex(context.Background(), "offers", search.IndexSettings{
		PrimaryKey:           "id",
		SearchableAttributes: []string{"number", "companyName"},
		FilterableAttributes: []string{"status", "companyId"},
		SortableAttributes:   []string{"createdAt", "totalMinor"},
	})
	if err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	return engine
}

func seedDocs(t *testing.T, engine *search.MemoryEngine) {
	t.Helper()
	err := engine.Upsert(context.Background(), "offers", []search.Document{
		{"id": "o1", "number": "OF-2026-001", "companyName": "Acme GmbH", "status": "draft", "companyId": "c1", "createdAt": int64(100), "totalMinor": int64(500)},
		{"id": "o2", "number": "OF-2026-002", "companyName": "Globex AG", "status": "accepted", "companyId": "c2", "createdAt": int64(200), "totalMinor": int64(900)},
		{"id": "o3", "number": "OF-2026-003", "companyName": "Acme GmbH", "status": "accepted", "companyId": "c1", "createdAt": int64(300), "totalMinor": int64(100)},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestMemoryEngineSearchByTerm(t *testing.T) {
	engine := newIndex(t)
	seedDocs(t, engine)

	result, err := engine.Search(context.Background(), "offers", search.Query{Term: "acme"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.EstimatedTotal != 2 {
		t.Fatalf("expected 2 hits for term acme, got %d", result.EstimatedTotal)
	}
}

func TestMemoryEngineFilterAndSort(t *testing.T) {
	engine := newIndex(t)
	seedDocs(t, engine)

	result, err := engine.Search(context.Background(), "offers", search.Query{
		Filter: `status = accepted`,
		Sort:   []string{"createdAt:desc"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("expected 2 accepted offers, got %d", len(result.Hits))
	}
	if result.Hits[0]["id"] != "o3" || result.Hits[1]["id"] != "o2" {
		t.Errorf("expected newest first, got %v then %v", result.Hits[0]["id"], result.Hits[1]["id"])
	}
}

func TestMemoryEngineCompositeFilter(t *testing.T) {
	engine := newIndex(t)
	seedDocs(t, engine)

	result, err := engine.Search(context.Background(), "offers", search.Query{
		Filter: `status = accepted AND companyId = "c1"`,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Hits) != 1 || result.Hits[0]["id"] != "o3" {
		t.Fatalf("expected single hit o3, got %v", result.Hits)
	}
}

func TestMemoryEngineUpsertReplacesByPrimaryKey(t *testing.T) {
	engine := newIndex(t)
	seedDocs(t, engine)

	err := engine.Upsert(context.Background(), "offers", []search.Document{
		{"id": "o1", "number": "OF-2026-001", "companyName": "Acme GmbH", "status": "sent", "companyId": "c1", "createdAt": int64(100), "totalMinor": int64(500)},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := engine.Search(context.Background(), "offers", search.Query{Filter: "status = draft"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Hits) != 0 {
		t.Errorf("expected draft document to be replaced, got %v", result.Hits)
	}
}

func TestMemoryEngineDeleteAndPagination(t *testing.T) {
	engine := newIndex(t)
	seedDocs(t, engine)
	ctx := context.Background()

	if err := engine.Delete(ctx, "offers", "o2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	result, err := engine.Search(ctx, "offers", search.Query{
		Sort:   []string{"createdAt:asc"},
		Offset: 1,
		Limit:  1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.EstimatedTotal != 2 {
		t.Errorf("expected total 2 after delete, got %d", result.EstimatedTotal)
	}
	if len(result.Hits) != 1 || result.Hits[0]["id"] != "o3" {
		t.Fatalf("expected page with o3, got %v", result.Hits)
	}

	if err := engine.DeleteAll(ctx, "offers"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	result, _ = engine.Search(ctx, "offers", search.Query{})
	if result.EstimatedTotal != 0 {
		t.Errorf("expected empty index, got %d", result.EstimatedTotal)
	}
}
