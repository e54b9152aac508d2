package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	t.Cleanup(func() {
		redisClient.Close()
		mr.Close()
	})

	return redisClient, mr
}

func TestTokenBucket_Allow(t *testing.T) {
	redisClient, _ := setupTestRedis(t)
	bucket := NewTokenBucket(redisClient, 5, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, remaining, err := bucket.Allow(ctx, "1", Upload)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected upload %d to be allowed", i+1)
		}
		if remaining != int64(4-i) {
			t.Fatalf("Expected %d remaining, got %d", 4-i, remaining)
		}
	}

	allowed, remaining, err := bucket.Allow(ctx, "1", Upload)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("Expected denial with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}

	// other users have their own bucket
	if allowed, _, _ := bucket.Allow(ctx, "2", Upload); !allowed {
		t.Fatal("Expected another user to be allowed")
	}
}

func TestTokenBucket_GetRemainingDoesNotConsume(t *testing.T) {
	redisClient, _ := setupTestRedis(t)
	bucket := NewTokenBucket(redisClient, 10, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		remaining, err := bucket.GetRemaining(ctx, "1", Upload)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if remaining != 10 {
			t.Fatalf("Expected 10 remaining tokens, got %d", remaining)
		}
	}

	for i := 0; i < 3; i++ {
		bucket.Allow(ctx, "1", Upload)
	}

	remaining, err := bucket.GetRemaining(ctx, "1", Upload)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 7 {
		t.Fatalf("Expected 7 remaining tokens, got %d", remaining)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	redisClient, mr := setupTestRedis(t)
	bucket := NewTokenBucket(redisClient, 5, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		bucket.Allow(ctx, "1", Upload)
	}
	if !mr.Exists(key("1", Upload)) {
		t.Fatal("Expected bucket key to exist")
	}
	if ttl := mr.TTL(key("1", Upload)); ttl != 2*time.Minute {
		t.Fatalf("Expected 2m expiry, got %v", ttl)
	}

	if err := bucket.Reset(ctx, "1", Upload); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	remaining, err := bucket.GetRemaining(ctx, "1", Upload)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("Expected 5 remaining tokens after reset, got %d", remaining)
	}
}
