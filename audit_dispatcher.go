package ternsecure

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// criticalAuditEvents are never dropped on a full buffer. Emit waits for room
// until the request context ends, even with DropIfFull.
var criticalAuditEvents = map[string]bool{
	auditEventSessionRevoke: true,
	auditEventRateLimited:   true,
	auditEventPanic:         true,
}

// auditDispatcher hands audit events from request goroutines to a single writer
// goroutine that owns the sink.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink
	logger     *slog.Logger

	queue   chan AuditEvent
	stop    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	writer  sync.WaitGroup

	dropped atomic.Uint64
	mu      sync.Mutex
	byType  map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		logger:     logger,
		queue:      make(chan AuditEvent, size),
		stop:       make(chan struct{}),
		byType:     make(map[string]uint64),
	}
	d.writer.Add(1)
	go d.write()
	return d
}

func (d *auditDispatcher) write() {
	defer d.writer.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event. Routine events are dropped on a full buffer when
// DropIfFull is set; otherwise Emit waits until ctx ends or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !criticalAuditEvents[event.EventType] {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(ctx, event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.stop:
	case <-ctx.Done():
		d.recordDrop(ctx, event)
	}
}

func (d *auditDispatcher) recordDrop(ctx context.Context, event AuditEvent) {
	d.dropped.Add(1)

	d.mu.Lock()
	d.byType[event.EventType]++
	first := d.byType[event.EventType] == 1
	d.mu.Unlock()

	if first {
		d.logger.WarnContext(ctx, "audit buffer full; dropping events",
			slog.String("event_type", event.EventType),
			slog.String("request_id", event.RequestID))
	}
}

// Close stops accepting events, flushes the queue to the sink and waits for it.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.writer.Wait()
	})
}

// Dropped returns the total number of events that never reached the sink.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}
