package admission

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewLimiter(client, 2, 1, time.Minute)

	allowed, _, err := limiter.Allow(ctx, "alice")
	if err != nil || !allowed {
		t.Fatalf("expected first submission admitted, allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = limiter.Allow(ctx, "alice")
	if !allowed {
		t.Fatal("expected second submission admitted")
	}
	allowed, _, _ = limiter.Allow(ctx, "alice")
	if allowed {
		t.Fatal("expected third submission rejected")
	}

	// Buckets are per owner.
	allowed, _, _ = limiter.Allow(ctx, "bob")
	if !allowed {
		t.Fatal("expected a different owner to have its own bucket")
	}
}
