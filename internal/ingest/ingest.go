// Package ingest turns signed webhook deliveries into stored event records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/signature"
)

// DefaultMaxBodyBytes caps the size of a delivery body.
const DefaultMaxBodyBytes = 1 << 20

// EventStore defines the log operation needed by Pipeline.
type EventStore interface {
	Append(ctx context.Context, r *event.Record) error
}

// Hook runs after a record has been appended. Errors are logged and
// never fail the delivery.
type Hook func(ctx context.Context, rec event.Record) error

type namedHook struct {
	name string
	fn   Hook
}

// Delivery is one inbound webhook request.
type Delivery struct {
	Body       io.Reader
	Signature  string
	RemoteAddr string
}

// Pipeline verifies, decodes, extracts and appends webhook deliveries.
type Pipeline struct {
	verifier *signature.Verifier
	store    EventStore
	logger   *slog.Logger
	clock    Clock
	maxBody  int64
	hooks    []namedHook

	// appendMu orders appends within the process; seq holds hooks to that order.
	appendMu sync.Mutex
	seq      *sequencer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the clock for the Pipeline (for testing).
func WithClock(clock Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

// WithOnInsert registers a hook that runs after each successful append.
// Hooks run in registration order.
func WithOnInsert(name string, hook Hook) Option {
	return func(p *Pipeline) {
		if hook != nil {
			p.hooks = append(p.hooks, namedHook{name: name, fn: hook})
		}
	}
}

// New creates a new Pipeline. A nil or empty verifier rejects every delivery.
func New(verifier *signature.Verifier, store EventStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		verifier: verifier,
		store:    store,
		logger:   slog.Default(),
		clock:    DefaultClock,
		maxBody:  DefaultMaxBodyBytes,
		seq:      newSequencer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Receive processes one delivery. On success the stored record is returned.
// A *RejectError means nothing was written; any other error comes from the store.
//
// received_at is read under the append lock, and hooks see records in seq
// order even when deliveries arrive concurrently.
func (p *Pipeline) Receive(ctx context.Context, d Delivery) (*event.Record, error) {
	// Without a secret or a signature nothing can verify, so the body is not read.
	if err := p.verifier.CheckHeader(d.Signature); err != nil {
		return nil, p.rejected(d, reject(ReasonSignature, err))
	}

	body, err := p.readBody(d.Body)
	if err != nil {
		return nil, p.rejected(d, err)
	}

	if err := p.verifier.Verify(body, d.Signature); err != nil {
		return nil, p.rejected(d, reject(ReasonSignature, err))
	}

	payload, err := event.Decode(body)
	if err != nil {
		return nil, p.rejected(d, reject(ReasonMalformed, err))
	}

	rec := ToRecord(body, payload, p.clock)
	ticket, err := p.appendRecord(ctx, rec)
	if err != nil {
		p.logger.Error("failed to append record",
			"event", rec.EventType,
			"error", err,
		)
		return nil, fmt.Errorf("append record: %w", err)
	}

	p.logger.Info("webhook received: "+Summary(rec),
		"seq", rec.Seq,
		"id", rec.ID,
		"event", rec.EventType,
	)

	stored := *rec
	p.seq.do(ticket, func() { p.runHooks(ctx, stored) })
	return rec, nil
}

// appendRecord stamps received_at and appends rec as one step, and returns
// the hook ticket for the new record.
func (p *Pipeline) appendRecord(ctx context.Context, rec *event.Record) (uint64, error) {
	p.appendMu.Lock()
	defer p.appendMu.Unlock()

	rec.ReceivedAt = p.clock.Now().UTC()
	if err := p.store.Append(ctx, rec); err != nil {
		return 0, err
	}
	return p.seq.next(), nil
}

func (p *Pipeline) readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, reject(ReasonMalformed, errors.New("empty body"))
	}
	body, err := io.ReadAll(io.LimitReader(r, p.maxBody+1))
	if err != nil {
		// The HTTP layer may already cap the body with http.MaxBytesReader.
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, reject(ReasonTooLarge, err)
		}
		return nil, reject(ReasonMalformed, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > p.maxBody {
		return nil, reject(ReasonTooLarge, fmt.Errorf("body exceeds %d bytes", p.maxBody))
	}
	return body, nil
}

func (p *Pipeline) rejected(d Delivery, err error) error {
	var re *RejectError
	if errors.As(err, &re) {
		p.logger.Warn("webhook rejected",
			"reason", re.Reason.String(),
			"remote", d.RemoteAddr,
			"error", re.Err,
		)
	}
	return err
}

func (p *Pipeline) runHooks(ctx context.Context, rec event.Record) {
	for _, h := range p.hooks {
		if err := h.fn(ctx, rec); err != nil {
			p.logger.Warn("post-insert hook failed",
				"hook", h.name,
				"seq", rec.Seq,
				"error", err,
			)
		}
	}
}
