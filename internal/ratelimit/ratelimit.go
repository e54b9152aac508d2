package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Upload is the action key used for POST /api/upload.
const Upload = "upload"

// takeScript refills the bucket for the elapsed time and, when take is 1,
// consumes one token. It returns {allowed, tokens_left}. last_refill only
// advances by whole tokens so partial refills are not lost.
var takeScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])
	local take = tonumber(ARGV[5])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local tokens_to_add = math.floor(((now - last_refill) / window) * refill_rate)
	if tokens_to_add > 0 then
		tokens = math.min(capacity, tokens + tokens_to_add)
		last_refill = last_refill + math.floor(tokens_to_add * window / refill_rate)
	end

	local allowed = 0
	if take == 1 and tokens > 0 then
		tokens = tokens - 1
		allowed = 1
	end

	if take == 1 then
		redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
		redis.call('EXPIRE', key, window * 2)
	end
	return {allowed, tokens}
`)

// TokenBucket is a per-user, per-action token bucket kept in Redis.
type TokenBucket struct {
	redis    *redis.Client
	capacity int64         // Maximum number of tokens
	refill   int64         // Tokens added per window
	window   time.Duration // Refill window
}

// NewTokenBucket creates a bucket refilling refillRate tokens per minute.
func NewTokenBucket(redisClient *redis.Client, capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		redis:    redisClient,
		capacity: capacity,
		refill:   refillRate,
		window:   time.Minute,
	}
}

func (tb *TokenBucket) Capacity() int64 { return tb.capacity }

func (tb *TokenBucket) Window() time.Duration { return tb.window }

func key(userID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, action)
}

func (tb *TokenBucket) run(ctx context.Context, userID, action string, take int) (bool, int64, error) {
	res, err := takeScript.Run(ctx, tb.redis, []string{key(userID, action)},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), time.Now().Unix(), take).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected result from rate limit script: %v", res)
	}
	allowed, ok1 := vals[0].(int64)
	tokens, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("unexpected result types from rate limit script: %v", vals)
	}

	return allowed == 1, tokens, nil
}

// Allow consumes one token if available and reports the tokens left.
func (tb *TokenBucket) Allow(ctx context.Context, userID, action string) (bool, int64, error) {
	return tb.run(ctx, userID, action, 1)
}

// GetRemaining returns the tokens currently available without consuming one.
func (tb *TokenBucket) GetRemaining(ctx context.Context, userID, action string) (int64, error) {
	_, tokens, err := tb.run(ctx, userID, action, 0)
	return tokens, err
}

// Reset clears the rate limit for a specific user action
func (tb *TokenBucket) Reset(ctx context.Context, userID, action string) error {
	return tb.redis.Del(ctx, key(userID, action)).Err()
}
