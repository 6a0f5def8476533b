package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	ActionResetStarted   = "reset.started"
	ActionResetSucceeded = "reset.succeeded"
	ActionResetFailed    = "reset.failed"
	ActionClientDeleted  = "client.deleted"
	ActionClientBanned   = "client.banned"
	ActionClientUnbanned = "client.unbanned"
)

// DefaultQueueSize bounds how many events may wait for the sink.
const DefaultQueueSize = 100

// publishTimeout bounds a single sink call so a stuck broker cannot hold the
// worker forever.
const publishTimeout = 5 * time.Second

type Event struct {
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId,omitempty"`
	RunID    string         `json:"runId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink delivers events somewhere durable or visible.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Recorder is what services depend on. A nil Recorder is allowed wherever
// one is accepted.
type Recorder interface {
	Dispatch(ev Event)
}

// Dispatcher hands events to a Sink on its own goroutine. Dispatch never
// blocks: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	once   sync.Once
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sink Sink, logger *slog.Logger, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.sink.Publish(ctx, ev); err != nil {
			d.logger.Warn("audit publish failed",
				slog.String("action", ev.Action),
				slog.String("entity_id", ev.EntityID),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}

func (d *Dispatcher) Dispatch(ev Event) {
	if ev.At.IsZero() {
		ev.At = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("audit dispatcher closed, dropping event", slog.String("action", ev.Action))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("audit queue full, dropping event", slog.String("action", ev.Action))
	}
}

// Close stops accepting events and waits until the queued ones have been
// handed to the sink or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record dispatches ev when r is set.
func Record(r Recorder, ev Event) {
	if r != nil {
		r.Dispatch(ev)
	}
}
