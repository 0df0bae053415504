package bus

import (
	"context"

	"github.com/yungbote/medicore-backend/internal/realtime"
)

// Bus carries job lifecycle events between the API and worker processes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.JobEvent) error
	// Subscribe delivers events until ctx is done. With no event types given,
	// every event is delivered.
	Subscribe(ctx context.Context, onMsg func(realtime.JobEvent), events ...realtime.JobEventType) error
	Ping(ctx context.Context) error
	Close() error
}

func wants(filter []realtime.JobEventType, ev realtime.JobEventType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == ev {
			return true
		}
	}
	return false
}
