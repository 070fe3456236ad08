// Package publish fans stored records out to a message bus.
package publish

import (
	"context"
	"strings"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// SubjectPrefix is prepended to the event type to form the subject.
const SubjectPrefix = "livekit.webhook."

// UntypedToken replaces the event type for records without one.
const UntypedToken = "untyped"

// Publisher sends records to subscribers.
type Publisher interface {
	Publish(ctx context.Context, rec event.Record) error
	Close() error
}

// Subject returns the subject a record is published on. Characters that
// NATS treats as separators or wildcards are replaced with '_'.
func Subject(eventType string) string {
	if eventType == "" {
		return SubjectPrefix + UntypedToken
	}
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, eventType)
	return SubjectPrefix + token
}

// Hook adapts a Publisher to the ingest post-insert hook signature.
func Hook(p Publisher) func(ctx context.Context, rec event.Record) error {
	return func(ctx context.Context, rec event.Record) error {
		return p.Publish(ctx, rec)
	}
}
