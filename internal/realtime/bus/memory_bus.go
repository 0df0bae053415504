package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/medicore-backend/internal/realtime"
)

var errClosed = errors.New("job bus closed")

type memorySub struct {
	fn     func(realtime.JobEvent)
	filter []realtime.JobEventType
}

// MemoryBus fans events out to in-process subscribers. Used when API and
// worker share a process without Redis, and in tests.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]memorySub
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]memorySub{}}
}

func (b *MemoryBus) Publish(_ context.Context, msg realtime.JobEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errClosed
	}
	for _, s := range b.subs {
		if wants(s.filter, msg.Event) {
			s.fn(msg)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, onMsg func(realtime.JobEvent), events ...realtime.JobEventType) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = memorySub{fn: onMsg, filter: events}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errClosed
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]memorySub{}
	return nil
}
