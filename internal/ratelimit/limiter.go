package ratelimit

import (
	"sync"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// Limiter ограничивает частоту действий по ключу (чат, сообщение)
type Limiter interface {
	Allow(key int64) bool
	Reset(key int64)
	Forget(key int64)
}

// TokenBucketLimiter реализует алгоритм token bucket для rate limiting
type TokenBucketLimiter struct {
	buckets      map[int64]*bucket
	defaultLimit int
	refillRate   time.Duration
	now          func() time.Time
	mu           sync.Mutex
}

// bucket хранит состояние одного ключа
type bucket struct {
	tokens     int
	limit      int
	lastRefill time.Time
}

// NewTokenBucketLimiter создает limiter: limit действий, один токен за refillRate
func NewTokenBucketLimiter(limit int, refillRate time.Duration) *TokenBucketLimiter {
	if limit < 1 {
		limit = 1
	}
	return &TokenBucketLimiter{
		buckets:      make(map[int64]*bucket),
		defaultLimit: limit,
		refillRate:   refillRate,
		now:          time.Now,
	}
}

// Allow проверяет, разрешено ли действие для ключа, и списывает токен
func (tbl *TokenBucketLimiter) Allow(key int64) bool {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	now := tbl.now()
	b, exists := tbl.buckets[key]
	if !exists {
		b = &bucket{tokens: tbl.defaultLimit, limit: tbl.defaultLimit, lastRefill: now}
		tbl.buckets[key] = b
	}
	tbl.refill(b, now)

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	logutils.Log.WithField("key", key).Debug("Rate limit exceeded")
	return false
}

// Remaining возвращает количество оставшихся токенов
func (tbl *TokenBucketLimiter) Remaining(key int64) int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	b, exists := tbl.buckets[key]
	if !exists {
		return tbl.defaultLimit
	}
	tbl.refill(b, tbl.now())
	return b.tokens
}

// Reset возвращает ключу полный запас токенов
func (tbl *TokenBucketLimiter) Reset(key int64) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	if b, exists := tbl.buckets[key]; exists {
		b.tokens = b.limit
		b.lastRefill = tbl.now()
	}
}

// Forget удаляет состояние ключа, например после удаления сообщения
func (tbl *TokenBucketLimiter) Forget(key int64) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	delete(tbl.buckets, key)
}

// refill пополняет токены по прошедшему времени; вызывается под mu
func (tbl *TokenBucketLimiter) refill(b *bucket, now time.Time) {
	if tbl.refillRate <= 0 {
		b.tokens = b.limit
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed < tbl.refillRate {
		return
	}
	tokensToAdd := int(elapsed / tbl.refillRate)
	b.tokens = min(b.limit, b.tokens+tokensToAdd)
	b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * tbl.refillRate)
}

// NoOpRateLimiter реализует интерфейс без ограничений
type NoOpRateLimiter struct{}

// Allow всегда возвращает true
func (NoOpRateLimiter) Allow(_ int64) bool { return true }

// Reset no-op реализация
func (NoOpRateLimiter) Reset(_ int64) {}

// Forget no-op реализация
func (NoOpRateLimiter) Forget(_ int64) {}
