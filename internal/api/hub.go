package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

const (
	defaultSubscriberBufferSize = 16
	defaultBroadcastBufferSize  = 64
)

// Subscriber represents an SSE client connection.
// Records arrive in seq order. A slow subscriber loses records rather than
// blocking the others, and Lagged fires so it can catch up from the log.
type Subscriber struct {
	events chan *event.Record
	done   chan struct{}
	lagged chan struct{}
}

func newSubscriber(size int) *Subscriber {
	return &Subscriber{
		events: make(chan *event.Record, size),
		done:   make(chan struct{}),
		lagged: make(chan struct{}, 1),
	}
}

// Events returns the channel for receiving records.
func (s *Subscriber) Events() <-chan *event.Record {
	return s.events
}

// Done returns a channel that is closed when the subscriber is unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Lagged receives a value after one or more records were not delivered.
// Signals coalesce until read.
func (s *Subscriber) Lagged() <-chan struct{} {
	return s.lagged
}

func (s *Subscriber) markLagged() {
	select {
	case s.lagged <- struct{}{}:
	default:
	}
}

// Hub fans stored records out to SSE subscribers from a single goroutine.
// It forwards records in increasing seq order and drops stale ones. Any
// record a subscriber misses, including one dropped before it reached the
// hub, is reported through that subscriber's Lagged channel.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *event.Record
	overflow   chan struct{}
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	subscriberBufferSize int
	logger               *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets the buffer size for subscriber event channels.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.subscriberBufferSize = size
		}
	}
}

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a new SSE hub.
// Call Run() to start the hub's event loop.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:             make(chan *Subscriber),
		unregister:           make(chan *Subscriber),
		broadcast:            make(chan *event.Record, defaultBroadcastBufferSize),
		overflow:             make(chan struct{}, 1),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
		subscriberBufferSize: defaultSubscriberBufferSize,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop.
// This method blocks until Stop() is called.
// Should be called in a goroutine: go hub.Run()
func (h *Hub) Run() {
	clients := make(map[*Subscriber]struct{})
	defer close(h.stopped)

	var last int64
	lagAll := func() {
		for sub := range clients {
			sub.markLagged()
		}
	}

	for {
		select {
		case sub := <-h.register:
			clients[sub] = struct{}{}
			h.logger.Debug("subscriber registered", "count", len(clients))

		case sub := <-h.unregister:
			if _, ok := clients[sub]; ok {
				delete(clients, sub)
				close(sub.done)
				close(sub.events)
				h.logger.Debug("subscriber unregistered", "count", len(clients))
			}

		case <-h.overflow:
			lagAll()

		case rec := <-h.broadcast:
			if rec.Seq <= last {
				h.logger.Debug("stale record not broadcast", "seq", rec.Seq, "last", last)
				continue
			}
			if last > 0 && rec.Seq > last+1 {
				lagAll()
			}
			last = rec.Seq

			for sub := range clients {
				select {
				case sub.events <- rec:
				default:
					sub.markLagged()
					h.logger.Warn("subscriber channel full, record dropped",
						"seq", rec.Seq,
						"event_type", rec.EventType,
					)
				}
			}

		case <-h.stop:
			for sub := range clients {
				close(sub.done)
				close(sub.events)
			}
			return
		}
	}
}

// Stop stops the hub's event loop.
// Blocks until the hub has fully stopped.
// Safe to call multiple times (idempotent).
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Subscribe creates a new subscriber.
// The caller must call Unsubscribe when done.
func (h *Hub) Subscribe() *Subscriber {
	sub := newSubscriber(h.subscriberBufferSize)

	select {
	case h.register <- sub:
		return sub
	case <-h.stopped:
		// Hub is stopped, return a closed subscriber
		close(sub.done)
		close(sub.events)
		return sub
	}
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	select {
	case h.unregister <- sub:
	case <-h.stopped:
		// Hub is stopped, nothing to do
	}
}

// Publish queues a record for all subscribers. It never blocks: when the
// broadcast queue is full the record is dropped and every subscriber is
// marked lagged.
func (h *Hub) Publish(rec *event.Record) {
	if rec == nil {
		return
	}

	select {
	case h.broadcast <- rec:
	case <-h.stopped:
	default:
		h.logger.Warn("broadcast channel full, record dropped",
			"seq", rec.Seq,
			"event_type", rec.EventType,
		)
		select {
		case h.overflow <- struct{}{}:
		default:
		}
	}
}

// Hook adapts Publish to the ingest post-insert hook signature.
func (h *Hub) Hook(_ context.Context, rec event.Record) error {
	h.Publish(&rec)
	return nil
}
