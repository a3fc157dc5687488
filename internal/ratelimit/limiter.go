package ratelimit

import (
	"sync"
	"time"
)

// Limiter ограничивает число входящих событий для одного отправителя.
type Limiter interface {
	Allow(key string) bool
}

// NoopLimiter пропускает все запросы.
type NoopLimiter struct{}

func (NoopLimiter) Allow(string) bool { return true }

// MemoryLimiter — лимитер с фиксированным окном для разработки.
type MemoryLimiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	buckets  map[string]*bucket
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// NewMemoryLimiter разрешает не более capacity событий за окно.
func NewMemoryLimiter(capacity int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		capacity: capacity,
		window:   window,
		buckets:  make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{remaining: l.capacity - 1, resetAt: now.Add(l.window)}
		return true
	}

	if now.After(b.resetAt) {
		b.remaining = l.capacity - 1
		b.resetAt = now.Add(l.window)
		return true
	}

	if b.remaining <= 0 {
		return false
	}

	b.remaining--
	return true
}
