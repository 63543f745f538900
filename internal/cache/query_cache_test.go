package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/darioristic/crmflow/internal/cache"
)

func newTestClient(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.NewClient(context.Background(), cache.Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

type offerRow struct {
	ID    string `json:"id"`
	Total int64  `json:"total"`
}

func TestQueryCacheReadThrough(t *testing.T) {
	client, _ := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (any, error) {
		loads++
		return []offerRow{{ID: "o1", Total: 500}}, nil
	}

	var first []offerRow
	hit, err := qc.GetOrLoad(ctx, "offers:list", []string{"offers"}, load, &first)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if hit {
		t.Error("expected miss on cold cache")
	}

	var second []offerRow
	hit, err = qc.GetOrLoad(ctx, "offers:list", []string{"offers"}, load, &second)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !hit {
		t.Error("expected hit on warm cache")
	}
	if loads != 1 {
		t.Errorf("expected loader called once, got %d", loads)
	}
	if len(second) != 1 || second[0].ID != "o1" {
		t.Errorf("expected cached rows, got %v", second)
	}
}

func TestQueryCacheRevalidateForcesReload(t *testing.T) {
	client, _ := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (any, error) {
		loads++
		return offerRow{ID: "o1", Total: int64(loads)}, nil
	}

	var row offerRow
	if _, err := qc.GetOrLoad(ctx, "offers:o1", nil, load, &row); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := qc.Revalidate(ctx, "offers:o1", nil, load, &row); err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if loads != 2 {
		t.Errorf("expected loader called twice, got %d", loads)
	}
	if row.Total != 2 {
		t.Errorf("expected refreshed value, got %d", row.Total)
	}

	hit, err := qc.GetOrLoad(ctx, "offers:o1", nil, load, &row)
	if err != nil {
		t.Fatalf("read after revalidate: %v", err)
	}
	if !hit || row.Total != 2 {
		t.Errorf("expected refreshed value cached, hit=%v total=%d", hit, row.Total)
	}
}

func TestQueryCacheInvalidateTag(t *testing.T) {
	client, _ := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (any, error) {
		loads++
		return offerRow{ID: "o1"}, nil
	}

	var row offerRow
	if _, err := qc.GetOrLoad(ctx, "offers:o1", []string{"offers", "company:c1"}, load, &row); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := qc.InvalidateTag(ctx, "company:c1"); err != nil {
		t.Fatalf("invalidate tag: %v", err)
	}

	hit, err := qc.GetOrLoad(ctx, "offers:o1", nil, load, &row)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if hit {
		t.Error("expected miss after tag invalidation")
	}
	if loads != 2 {
		t.Errorf("expected loader called twice, got %d", loads)
	}
}

func TestQueryCacheInvalidatePattern(t *testing.T) {
	client, _ := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Minute)
	ctx := context.Background()

	load := func(ctx context.Context) (any, error) { return "value", nil }
	var out string
	if _, err := qc.GetOrLoad(ctx, "orders:page:1", nil, load, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := qc.GetOrLoad(ctx, "orders:page:2", nil, load, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := qc.GetOrLoad(ctx, "invoices:page:1", nil, load, &out); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := qc.InvalidatePattern(ctx, "orders:*"); err != nil {
		t.Fatalf("invalidate pattern: %v", err)
	}

	hit, _ := qc.GetOrLoad(ctx, "orders:page:1", nil, load, &out)
	if hit {
		t.Error("expected orders pages to be invalidated")
	}
	hit, _ = qc.GetOrLoad(ctx, "invoices:page:1", nil, load, &out)
	if !hit {
		t.Error("expected invoices page to survive")
	}
}

func TestQueryCacheFallsThroughWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Minute)
	ctx := context.Background()

	mr.Close()

	loads := 0
	var out string
	hit, err := qc.GetOrLoad(ctx, "offers:list", nil, func(ctx context.Context) (any, error) {
		loads++
		return "fresh", nil
	}, &out)
	if err != nil {
		t.Fatalf("expected fallthrough, got %v", err)
	}
	if hit || loads != 1 || out != "fresh" {
		t.Errorf("expected direct load, hit=%v loads=%d out=%q", hit, loads, out)
	}
}

func TestQueryCachePerCallTTL(t *testing.T) {
	client, mr := newTestClient(t)
	qc := cache.NewQueryCache(client, time.Hour)
	ctx := context.Background()

	load := func(ctx context.Context) (any, error) {
		return offerRow{ID: "o1", Total: 500}, nil
	}

	var out offerRow
	if _, err := qc.GetOrLoad(ctx, "offers:o1", []string{"offers"}, load, &out, cache.WithTTL(30*time.Second)); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := mr.TTL("offers:o1"); got != 30*time.Second {
		t.Errorf("expected per-call TTL 30s on entry, got %v", got)
	}
	if got := mr.TTL("tag:offers"); got != 30*time.Second {
		t.Errorf("expected per-call TTL 30s on tag set, got %v", got)
	}

	// Без опции действует TTL конструктора.
	if _, err := qc.GetOrLoad(ctx, "offers:o2", nil, load, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := mr.TTL("offers:o2"); got != time.Hour {
		t.Errorf("expected constructor TTL 1h, got %v", got)
	}
}
