package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/darioristic/crmflow/internal/cache"
)

func TestRateLimiterEnforcesLimit(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := cache.NewRateLimiter(client, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user:alice")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected request %d within limit", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "user:alice")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Error("expected fourth request to be limited")
	}
}

func TestRateLimiterScopesAreIndependent(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := cache.NewRateLimiter(client, 1, time.Hour)
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "user:alice"); !allowed {
		t.Fatal("expected first request allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "user:alice"); allowed {
		t.Fatal("expected alice to be limited")
	}
	if allowed, _ := limiter.Allow(ctx, "user:bob"); !allowed {
		t.Error("expected bob to have his own window")
	}
}

func TestRateLimiterReset(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := cache.NewRateLimiter(client, 1, time.Hour)
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "user:alice"); !allowed {
		t.Fatal("expected first request allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "user:alice"); allowed {
		t.Fatal("expected limit reached")
	}

	if err := limiter.Reset(ctx, "user:alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if allowed, _ := limiter.Allow(ctx, "user:alice"); !allowed {
		t.Error("expected request allowed after reset")
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	client, mr := newTestClient(t)
	limiter := cache.NewRateLimiter(client, 1, time.Hour)
	ctx := context.Background()

	mr.Close()

	allowed, err := limiter.Allow(ctx, "user:alice")
	if err != nil {
		t.Fatalf("expected fail open without error, got %v", err)
	}
	if !allowed {
		t.Error("expected request allowed when redis is down")
	}
}
