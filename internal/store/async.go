package store

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/aggregate"
	"github.com/srg/blewatch/internal/eventbus"
	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/session"
)

// DefaultQueueCapacity bounds the pending-write queue.
const DefaultQueueCapacity = 256

// AsyncWriter decouples the ingestion path from the store: writes are
// queued on a drop-oldest ring and drained by a single worker goroutine.
// Enqueueing never blocks and never fails; a write error is logged and
// dropped, never surfaced to the scan path. Under sustained backpressure
// the oldest pending write is discarded, which is acceptable for an
// at-least-once historical sink.
type AsyncWriter struct {
	gw     Gateway
	logger *logrus.Logger
	ops    *eventbus.RingChannel[func() error]

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncWriter starts the drain worker over the given gateway.
func NewAsyncWriter(gw Gateway, logger *logrus.Logger, capacity int) *AsyncWriter {
	if logger == nil {
		logger = logrus.New()
	}
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	w := &AsyncWriter{
		gw:     gw,
		logger: logger,
		ops:    eventbus.NewRingChannel[func() error](capacity),
		done:   make(chan struct{}),
	}
	groutine.Go(nil, "store-drain", func(context.Context) { w.drain() })
	return w
}

func (w *AsyncWriter) drain() {
	defer close(w.done)
	for {
		op, ok := w.ops.Receive()
		if !ok {
			return
		}
		if err := op(); err != nil {
			w.logger.WithError(err).Warn("Persistence write failed")
		}
	}
}

func (w *AsyncWriter) enqueue(op func() error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	if w.ops.Send(op) {
		w.logger.Warn("Persistence queue full, dropped oldest pending write")
	}
}

// UpsertDevice queues a device write.
func (w *AsyncWriter) UpsertDevice(rec registry.DeviceRecord) {
	w.enqueue(func() error { return w.gw.UpsertDevice(rec) })
}

// InsertDetection queues a raw-detection append.
func (w *AsyncWriter) InsertDetection(sessionID string, rec registry.DeviceRecord) {
	w.enqueue(func() error { return w.gw.InsertDetection(sessionID, rec) })
}

// UpsertSession queues a session write.
func (w *AsyncWriter) UpsertSession(s session.Session) {
	w.enqueue(func() error { return w.gw.UpsertSession(s) })
}

// InsertDataPoint queues a data-point append.
func (w *AsyncWriter) InsertDataPoint(p aggregate.DataPoint) {
	w.enqueue(func() error { return w.gw.InsertDataPoint(p) })
}

// Close stops accepting writes, flushes the queue, and waits for the worker
// to finish. Idempotent.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.ops.Close()
	<-w.done

	m := w.ops.GetMetrics()
	w.logger.WithFields(logrus.Fields{
		"written":   m.Written,
		"processed": m.Processed,
		"dropped":   m.Overwritten,
	}).Debug("Persistence queue drained")
}
