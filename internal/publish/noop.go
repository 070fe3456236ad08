package publish

import (
	"context"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, event.Record) error { return nil }

func (NoopPublisher) Close() error { return nil }
