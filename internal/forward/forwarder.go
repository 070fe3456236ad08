package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// Status represents the current status of the forwarder.
type Status struct {
	Disabled       bool      `json:"disabled"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	DisabledAt     time.Time `json:"disabled_at,omitzero"`
	Forwarded      int64     `json:"forwarded"`
	Dropped        int64     `json:"dropped"`
	Pending        int       `json:"pending"`
}

// DefaultMaxQueueSize is the default maximum number of records held for delivery.
const DefaultMaxQueueSize = 1000

// DefaultBatchDelay is used when the configured delay is not positive.
const DefaultBatchDelay = 3 * time.Second

// Forwarder batches stored records and delivers them with a Sender.
// It runs a dedicated goroutine for delivery.
type Forwarder struct {
	sender       Sender
	afterFunc    AfterFunc
	now          func() time.Time
	batchDelay   time.Duration
	backoff      *Backoff
	logger       *slog.Logger
	maxQueueSize int

	recordCh chan event.Record
	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	// internal state (protected by mu)
	mu          sync.Mutex
	queue       []event.Record
	timerHandle TimerHandle
	status      Status

	// backoff state, touched only by the run loop
	backoffAttempt int
	backoffUntil   time.Time

	stopOnce sync.Once
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithAfterFunc sets the timer function (for testing).
func WithAfterFunc(af AfterFunc) Option {
	return func(f *Forwarder) { f.afterFunc = af }
}

// WithNow sets the clock (for testing).
func WithNow(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

// WithBackoff overrides the backoff calculator.
func WithBackoff(b *Backoff) Option {
	return func(f *Forwarder) { f.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// WithMaxQueueSize sets the maximum queue size.
func WithMaxQueueSize(size int) Option {
	return func(f *Forwarder) {
		if size > 0 {
			f.maxQueueSize = size
		}
	}
}

// New creates a Forwarder. Call Run to start delivering.
func New(sender Sender, batchDelay time.Duration, opts ...Option) *Forwarder {
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}

	f := &Forwarder{
		sender:       sender,
		afterFunc:    DefaultAfterFunc,
		now:          time.Now,
		batchDelay:   batchDelay,
		backoff:      NewBackoff(DefaultBackoffConfig),
		logger:       slog.Default(),
		maxQueueSize: DefaultMaxQueueSize,
		recordCh:     make(chan event.Record, 256),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run starts the delivery loop.
// Blocks until Stop is called or ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	defer close(f.doneCh)

	for {
		select {
		case rec := <-f.recordCh:
			f.handleRecord(rec)

		case <-f.flushCh:
			f.flush(ctx)

		case <-f.stopCh:
			f.drainRecordCh()
			f.flush(ctx)
			return

		case <-ctx.Done():
			f.drainRecordCh()
			f.flush(context.Background()) // fresh context for final flush
			return
		}
	}
}

// Enqueue schedules a record for delivery.
// Safe to call from any goroutine.
// Non-blocking: if the channel is full, the record is dropped.
func (f *Forwarder) Enqueue(rec event.Record) {
	f.mu.Lock()
	disabled := f.status.Disabled
	f.mu.Unlock()
	if disabled {
		return
	}

	select {
	case f.recordCh <- rec:
	default:
		f.mu.Lock()
		f.status.Dropped++
		f.mu.Unlock()
		f.logger.Warn("forward queue full, record dropped", "seq", rec.Seq)
	}
}

// Hook adapts Enqueue to the ingest post-insert hook signature.
func (f *Forwarder) Hook(_ context.Context, rec event.Record) error {
	f.Enqueue(rec)
	return nil
}

func (f *Forwarder) drainRecordCh() {
	for {
		select {
		case rec := <-f.recordCh:
			f.handleRecord(rec)
		default:
			return
		}
	}
}

func (f *Forwarder) handleRecord(rec event.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queue = append(f.queue, rec)

	// Enforce queue size limit (drop oldest records)
	if len(f.queue) > f.maxQueueSize {
		dropped := len(f.queue) - f.maxQueueSize
		f.queue = f.queue[dropped:]
		f.status.Dropped += int64(dropped)
		f.logger.Warn("forward queue overflow, dropped old records", "dropped", dropped)
	}

	if f.timerHandle == nil {
		f.timerHandle = f.afterFunc(f.batchDelay, f.triggerFlush)
	}
}

func (f *Forwarder) triggerFlush() {
	select {
	case f.flushCh <- struct{}{}:
	default:
	}
}

func (f *Forwarder) flush(ctx context.Context) {
	f.mu.Lock()
	if len(f.queue) == 0 || f.status.Disabled {
		f.timerHandle = nil
		f.mu.Unlock()
		return
	}

	// Keep records queued until backoff ends
	if now := f.now(); now.Before(f.backoffUntil) {
		remaining := f.backoffUntil.Sub(now)
		f.logger.Debug("in backoff period, keeping records in queue",
			"queue_size", len(f.queue),
			"remaining", remaining,
		)
		f.timerHandle = f.afterFunc(remaining, f.triggerFlush)
		f.mu.Unlock()
		return
	}

	records := f.queue
	f.queue = nil
	f.timerHandle = nil
	f.mu.Unlock()

	batches := BuildBatches(records, f.now())
	sent := 0
	for _, batch := range batches {
		result, retryAfter := f.sender.Send(ctx, batch)
		f.handleSendResult(result, retryAfter)
		if result != SendOK {
			break
		}
		sent += batch.Count
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Forwarded += int64(sent)
	if sent == len(records) || f.status.Disabled {
		return
	}

	// Put unsent records back in front of anything that arrived meanwhile.
	f.queue = append(records[sent:len(records):len(records)], f.queue...)
	if f.timerHandle == nil {
		delay := f.backoffUntil.Sub(f.now())
		if delay <= 0 {
			delay = f.batchDelay
		}
		f.timerHandle = f.afterFunc(delay, f.triggerFlush)
	}
}

func (f *Forwarder) handleSendResult(result SendResult, retryAfter time.Duration) {
	switch result {
	case SendOK:
		f.backoffAttempt = 0
		f.backoffUntil = time.Time{}

	case SendRetryable:
		delay := retryAfter
		if delay == 0 {
			delay = f.backoff.Delay(f.backoffAttempt)
		}
		f.backoffAttempt++
		f.backoffUntil = f.now().Add(delay)
		f.logger.Warn("forward failed, backing off",
			"attempt", f.backoffAttempt,
			"backoff_until", f.backoffUntil,
		)

	case SendFatal:
		f.mu.Lock()
		f.status.Disabled = true
		f.status.DisabledReason = "fatal error (invalid endpoint or authentication failed)"
		f.status.DisabledAt = f.now()
		f.mu.Unlock()
		f.logger.Error("forward fatal error, forwarding disabled")
	}
}

// Stop stops the forwarder after a final best-effort flush.
// Waits for the run loop to finish or until ctx is cancelled.
// Safe to call multiple times.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})

	select {
	case <-f.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current forwarder status.
// Safe for concurrent use.
func (f *Forwarder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.Pending = len(f.queue)
	return st
}

// QueueLength returns the current queue length.
func (f *Forwarder) QueueLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
