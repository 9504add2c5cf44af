package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the verdict of a Limiter for one request.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

if interval_ms > 0 then
  local elapsed = math.max(0, now_ms - last_refill)
  local intervals = math.floor(elapsed / interval_ms)
  if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals)
    last_refill = last_refill + (intervals * interval_ms)
  end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter is a token bucket shared by every API process through Redis.
// A bucket holds limit tokens and regains one every window/limit.
type RedisLimiter struct {
	rdb      redis.Scripter
	capacity int
	interval time.Duration
	ttl      time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		capacity: limit,
		interval: window / time.Duration(limit),
		ttl:      window * 2,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
		time.Now().UnixMilli(),
		l.capacity,
		l.interval.Milliseconds(),
		int64(math.Ceil(l.ttl.Seconds())),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", vals)
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// LocalLimiter keeps one x/time/rate limiter per key in memory. It serves
// single-node deployments and stands in while Redis is unreachable.
type LocalLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		rate:        rate.Limit(float64(limit) / window.Seconds()),
		burst:       limit,
		lastCleanup: time.Now(),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limiter := l.limiter(key)
	if limiter.Allow() {
		return Decision{Allowed: true, Remaining: int64(limiter.Tokens())}, nil
	}

	r := limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return Decision{Allowed: false, RetryAfter: delay}, nil
}

func (l *LocalLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	l.maybeCleanup()
	return v.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket refilled, i.e. idle keys.
func (l *LocalLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit limits requests per client IP and route. When primary fails
// (Redis down) the request is judged by fallback instead.
func RateLimit(prefix string, limit int, primary, fallback Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := prefix + ":" + c.FullPath() + ":" + c.ClientIP()
		ctx := c.Request.Context()

		decision, err := primary.Allow(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limiter unavailable, using fallback", "err", err)
			if fallback == nil {
				c.Next()
				return
			}
			if decision, err = fallback.Allow(ctx, key); err != nil {
				c.Next()
				return
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(decision.Remaining, 0), 10))

		if !decision.Allowed {
			secs := max(int(math.Ceil(decision.RetryAfter.Seconds())), 1)
			c.Header("Retry-After", strconv.Itoa(secs))
			logger.FromContext(ctx).Warn("rate limit exceeded", "key", key, "retry_after", secs)
			response.Error(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
