package simpledeposit

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a typed domain occurrence fired on the dispatcher.
type Event interface {
	EventName() string
}

// DepositCompletedEvent fires when the reconciler transitions a record to
// deposited.
type DepositCompletedEvent struct {
	Record *DepositRecord
}

// EventName returns the event name
func (DepositCompletedEvent) EventName() string { return "deposit.completed" }

// DepositFailedEvent fires when the reconciler transitions a record to
// failed.
type DepositFailedEvent struct {
	Record *DepositRecord
}

// EventName returns the event name
func (DepositFailedEvent) EventName() string { return "deposit.failed" }

// ValidationFailedEvent fires when an upload cannot be turned into a
// submittable package.
type ValidationFailedEvent struct {
	FileName string
	Reason   string
}

// EventName returns the event name
func (ValidationFailedEvent) EventName() string { return "deposit.validation_failed" }

// DepositApprovedEvent fires when a submission clears authorization and all
// entries were handed to the archive.
type DepositApprovedEvent struct {
	Package    *Package
	DepositIDs []string
}

// EventName returns the event name
func (DepositApprovedEvent) EventName() string { return "deposit.approved" }

// EventListener reacts to domain events. Listeners register by name; each
// gets its own worker, so delivery is FIFO per listener with no ordering
// guarantee across listeners.
type EventListener interface {
	Name() string
	Handle(ctx context.Context, event Event)
}

const listenerQueueSize = 64

type listenerWorker struct {
	listener EventListener
	queue    chan Event
}

// Dispatcher fans events out to registered listeners on a decoupled worker
// pool. Fire enqueues and returns immediately; it never blocks on listener
// execution beyond queue admission. There is no synchronous fallback:
// callers that need to observe side effects (tests, graceful shutdown) must
// Drain first.
type Dispatcher struct {
	mu      sync.Mutex
	workers map[string]*listenerWorker
	pending sync.WaitGroup
	firing  sync.WaitGroup
	done    sync.WaitGroup
	closed  bool
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{workers: make(map[string]*listenerWorker)}
}

// AddListener registers a listener and starts its worker. Re-registering a
// name replaces nothing: the first registration wins.
func (d *Dispatcher) AddListener(listener EventListener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if _, exists := d.workers[listener.Name()]; exists {
		return
	}

	w := &listenerWorker{
		listener: listener,
		queue:    make(chan Event, listenerQueueSize),
	}
	d.workers[listener.Name()] = w

	d.done.Add(1)
	go d.run(w)
}

func (d *Dispatcher) run(w *listenerWorker) {
	defer d.done.Done()
	for event := range w.queue {
		func() {
			defer d.pending.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event listener panicked", "listener", w.listener.Name(), "event", event.EventName(), "panic", r)
				}
			}()
			w.listener.Handle(context.Background(), event)
		}()
	}
}

// Fire enqueues the event for every registered listener and returns. The
// firing call does not wait for any listener to run. The sends happen
// outside the dispatcher lock, so a listener with a full queue slows only
// the caller that fired, never listener registration or other dispatcher
// operations.
func (d *Dispatcher) Fire(event Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	targets := make([]*listenerWorker, 0, len(d.workers))
	for _, w := range d.workers {
		targets = append(targets, w)
	}
	d.pending.Add(len(targets))
	d.firing.Add(1)
	d.mu.Unlock()

	for _, w := range targets {
		w.queue <- event
	}
	d.firing.Done()
}

// Drain blocks until every already-fired event has been handled or the
// context is cancelled. Production request paths never call this.
func (d *Dispatcher) Drain(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops all workers after their queues empty. The dispatcher accepts
// no events afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	// In-flight Fire calls hold references to the queues; let their sends
	// land before closing.
	d.firing.Wait()

	d.mu.Lock()
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	d.done.Wait()
}

// SlogListener logs every event it receives. Useful in development and as
// the default audit trail.
type SlogListener struct {
	logger *slog.Logger
}

// NewSlogListener creates a listener that logs events through the given logger
func NewSlogListener(logger *slog.Logger) *SlogListener {
	return &SlogListener{logger: logger}
}

// Name returns the listener name
func (l *SlogListener) Name() string { return "slog" }

// Handle logs the event
func (l *SlogListener) Handle(ctx context.Context, event Event) {
	switch e := event.(type) {
	case DepositCompletedEvent:
		l.logger.Info("deposit completed", "deposit_id", e.Record.DepositID, "object_id", e.Record.BusinessObjectID)
	case DepositFailedEvent:
		l.logger.Warn("deposit failed", "deposit_id", e.Record.DepositID, "object_id", e.Record.BusinessObjectID)
	case ValidationFailedEvent:
		l.logger.Warn("deposit validation failed", "file_name", e.FileName, "reason", e.Reason)
	case DepositApprovedEvent:
		l.logger.Info("deposit approved", "package_id", e.Package.ID, "deposits", len(e.DepositIDs))
	default:
		l.logger.Info("event", "name", event.EventName())
	}
}
