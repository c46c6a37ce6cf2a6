package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed fixed-window rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "estien:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *RedisRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, normalizedScope, normalizedSubject)
	rawResult, err := fixedWindowRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(currentCount), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	return int(currentCount), retryAfterFromMillis(ttlMs), nil
}

func retryAfterFromMillis(ms int64) int {
	retryAfter := int(math.Ceil(float64(ms) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}

// MemoryRateLimiter is a single-process fixed-window limiter used when Redis is
// not configured. Counts are not shared between replicas.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	expires time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(
	_ context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (int, int, error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key := strings.TrimSpace(scope) + ":" + strings.TrimSpace(subject)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		m.evictExpired(now)
		w = &memoryWindow{expires: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, retryAfterFromMillis(w.expires.Sub(now).Milliseconds()), nil
}

// evictExpired keeps the map from growing without bound. Callers hold mu.
func (m *MemoryRateLimiter) evictExpired(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.expires) {
			delete(m.windows, key)
		}
	}
}
