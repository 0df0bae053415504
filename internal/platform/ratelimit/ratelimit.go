// Package ratelimit implements fixed-window request limiting, shared across
// API replicas through Redis or kept in process memory.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit < 1 {
		c.Limit = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(cfg Config, count int, windowStart, now time.Time) Decision {
	d := Decision{Allowed: count <= cfg.Limit, Limit: cfg.Limit, Remaining: cfg.Limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = windowStart.Add(cfg.Window).Sub(now)
	}
	return d
}

type memoryWindow struct {
	start time.Time
	count int
}

// MemoryLimiter counts per process; each replica enforces its own budget.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*memoryWindow
}

func NewMemory(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg.withDefaults(), now: time.Now, windows: map[string]*memoryWindow{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		if len(l.windows) > 10000 {
			l.pruneLocked(start)
		}
		w = &memoryWindow{start: start}
		l.windows[key] = w
	}
	w.count++
	return decide(l.cfg, w.count, start, now), nil
}

func (l *MemoryLimiter) pruneLocked(current time.Time) {
	for k, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, k)
		}
	}
}
