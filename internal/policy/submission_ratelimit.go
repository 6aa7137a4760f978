package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmissionRateLimiter caps requests per key over a sliding window,
// independent of RateLimitPolicy (which counts PICKED events per command
// type). This one protects the submission API's endpoints themselves
// from an abusive caller, keyed by remote address rather than command
// type.
type SubmissionRateLimiter struct {
	client     redis.UniversalClient
	maxTokens  int
	windowSize int64
}

// NewSubmissionRateLimiter builds a limiter against an existing Redis
// client. maxTokens <= 0 means the caller should skip rate limiting
// entirely rather than constructing one.
func NewSubmissionRateLimiter(client redis.UniversalClient, maxTokens int, window time.Duration) *SubmissionRateLimiter {
	return &SubmissionRateLimiter{
		client:     client,
		maxTokens:  maxTokens,
		windowSize: int64(window.Seconds()),
	}
}

var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local max_tokens = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
	local count = redis.call('ZCARD', key)
	if count >= max_tokens then
		return 0
	end

	redis.call('ZADD', key, now, now .. '-' .. math.random())
	redis.call('EXPIRE', key, window)
	return 1
`)

// Allow reports whether a request for key should proceed, incrementing
// the window's count as a side effect when it does.
func (l *SubmissionRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().Unix()
	result, err := rateLimitScript.Run(ctx, l.client, []string{"ratelimit:submission:" + key}, l.windowSize, l.maxTokens, now).Result()
	if err != nil {
		return false, fmt.Errorf("submission_rate_limit: %w", err)
	}
	allowed, _ := result.(int64)
	return allowed == 1, nil
}
