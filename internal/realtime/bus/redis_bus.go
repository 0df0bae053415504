package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/realtime"
)

const DefaultChannel = "medicore.jobs"

// RedisBus publishes each event type on its own channel, "<prefix>:<event>",
// so subscribers that only care about job_created skip progress chatter.
type RedisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewRedisBus(log *logger.Logger, addr, prefix string) (*RedisBus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("missing REDIS_ADDR")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	b := &RedisBus{log: log.With("component", "RedisJobBus"), rdb: rdb, prefix: prefix}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return b, nil
}

func (b *RedisBus) topic(ev realtime.JobEventType) string {
	return b.prefix + ":" + string(ev)
}

func (b *RedisBus) Publish(ctx context.Context, msg realtime.JobEvent) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	return b.rdb.Publish(ctx, b.topic(msg.Event), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, onMsg func(realtime.JobEvent), events ...realtime.JobEventType) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}

	var sub *goredis.PubSub
	if len(events) == 0 {
		sub = b.rdb.PSubscribe(ctx, b.prefix+":*")
	} else {
		topics := make([]string, 0, len(events))
		for _, ev := range events {
			topics = append(topics, b.topic(ev))
		}
		sub = b.rdb.Subscribe(ctx, topics...)
	}
	// The first Receive returns the subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go b.forward(ctx, sub, onMsg)
	return nil
}

func (b *RedisBus) forward(ctx context.Context, sub *goredis.PubSub, onMsg func(realtime.JobEvent)) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var ev realtime.JobEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				b.log.Warn("Dropping malformed job event", "channel", m.Channel, "error", err)
				continue
			}
			onMsg(ev)
		}
	}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (b *RedisBus) Close() error { return b.rdb.Close() }
