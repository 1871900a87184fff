// Package eventbus provides a bounded, drop-oldest channel used for the
// engine's event surface and for the async persistence queue. Producers on
// the ingestion path must never block; when a consumer falls behind, the
// oldest buffered element is discarded.
package eventbus

import "sync/atomic"

// RingChannel wraps a buffered channel with overwrite-oldest semantics.
//
// Writers use Send (drop-oldest, never blocks). Readers either consume C()
// directly or call Receive, which additionally tracks the processed counter.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("eventbus: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Reads via C() bypass the
// Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered element if the
// channel is full. It never blocks indefinitely. Returns true when an
// element was dropped to make room.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		rc.ch <- v
		rc.metrics.addWritten(1)
	}

	return dropped
}

// Receive blocks until a value is available or the channel is closed.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.addProcessed(1)
	}
	return
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the underlying channel. After this, Send panics.
func (rc *RingChannel[T]) Close() { close(rc.ch) }

// GetMetrics returns an atomic snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics tracks RingChannel throughput with lock-free counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int)   { atomic.AddInt64(&m.Processed, int64(n)) }
func (m *Metrics) addWritten(n int)     { atomic.AddInt64(&m.Written, int64(n)) }
func (m *Metrics) addOverwritten(n int) { atomic.AddInt64(&m.Overwritten, int64(n)) }
