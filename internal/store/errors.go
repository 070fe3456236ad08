package store

import (
	"errors"
	"fmt"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// Sentinel errors for the store packages.
var (
	// ErrInvalidCursor is returned when a cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor format")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrClosed is returned by a log that has been closed.
	ErrClosed = errors.New("store closed")
)

// ValidateRecord checks the invariants every stored record must satisfy.
func ValidateRecord(r *event.Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if r.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: received_at is required", ErrInvalidRecord)
	}
	if len(r.RawPayload) == 0 {
		return fmt.Errorf("%w: raw_payload is required", ErrInvalidRecord)
	}
	return nil
}
