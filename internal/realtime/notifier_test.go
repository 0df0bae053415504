package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/realtime"
	"github.com/yungbote/medicore-backend/internal/realtime/bus"
)

func TestJobNotifierPublishesLifecycle(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	var got []realtime.JobEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Subscribe(ctx, func(m realtime.JobEvent) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	n := realtime.NewJobNotifier(logger.Nop(), b)
	owner := uuid.New()
	job := &types.JobRun{ID: uuid.New(), JobType: "study_process", Status: "queued"}

	n.JobCreated(owner, job)
	n.JobProgress(owner, job, "decode", 20, "decoding")
	n.JobFailed(owner, job, "run", "boom")
	n.JobDone(owner, job)

	mu.Lock()
	defer mu.Unlock()
	want := []realtime.JobEventType{realtime.EventJobCreated, realtime.EventJobProgress, realtime.EventJobFailed, realtime.EventJobDone}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.Event != want[i] || ev.JobID != job.ID || ev.OwnerUserID != owner {
			t.Fatalf("event %d: %+v", i, ev)
		}
	}
	if got[1].Stage != "decode" || got[1].Progress != 20 {
		t.Fatalf("progress event: %+v", got[1])
	}
	if got[2].Error != "boom" {
		t.Fatalf("failed event: %+v", got[2])
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	n := realtime.NewJobNotifier(logger.Nop(), nil)
	n.JobCreated(uuid.New(), nil)
	n.JobDone(uuid.New(), &types.JobRun{})
}

func TestMemoryBusUnsubscribesOnCancel(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 4)
	if err := b.Subscribe(ctx, func(realtime.JobEvent) { calls <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	_ = b.Publish(context.Background(), realtime.JobEvent{Event: realtime.EventJobCreated})
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for len(calls) > 0 {
			<-calls
		}
		_ = b.Publish(context.Background(), realtime.JobEvent{Event: realtime.EventJobCreated})
		if len(calls) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber still receiving after cancel")
}

func TestMemoryBusFiltersByEventType(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []realtime.JobEventType
	if err := b.Subscribe(ctx, func(m realtime.JobEvent) { got = append(got, m.Event) }, realtime.EventJobCreated); err != nil {
		t.Fatal(err)
	}
	for _, ev := range []realtime.JobEventType{realtime.EventJobProgress, realtime.EventJobCreated, realtime.EventJobDone} {
		_ = b.Publish(ctx, realtime.JobEvent{Event: ev})
	}
	if len(got) != 1 || got[0] != realtime.EventJobCreated {
		t.Fatalf("got %v", got)
	}

	_ = b.Close()
	if err := b.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
