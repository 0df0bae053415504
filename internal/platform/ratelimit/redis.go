package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "medicore.ratelimit"

type RedisLimiter struct {
	rdb    *goredis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

func NewRedis(addr string, cfg Config) (*RedisLimiter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 3 * time.Second, ReadTimeout: time.Second})
	return &RedisLimiter{rdb: rdb, cfg: cfg.withDefaults(), prefix: defaultKeyPrefix, now: time.Now}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.cfg.Window)
	k := fmt.Sprintf("%s:%s:%d", l.prefix, key, start.Unix())

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: l.cfg.Limit}, fmt.Errorf("rate limit incr: %w", err)
	}
	return decide(l.cfg, int(incr.Val()), start, now), nil
}

func (l *RedisLimiter) Close() error { return l.rdb.Close() }
