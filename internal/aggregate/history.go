package aggregate

import "sync"

// DefaultHistoryCapacity bounds the in-memory data-point history for
// long-running sessions. A fixed constant, not derived from device count.
const DefaultHistoryCapacity = 360

// history is a fixed-capacity FIFO buffer of data points. When full, the
// oldest point is evicted; insertion order equals time order here, so FIFO
// is exactly recency eviction.
type history struct {
	mu    sync.Mutex
	buf   []DataPoint
	head  int // index of the oldest element
	count int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &history{buf: make([]DataPoint, capacity)}
}

// Append adds a point, evicting the oldest when at capacity.
func (h *history) Append(p DataPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.count) % len(h.buf)
	h.buf[tail] = p
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
	} else {
		h.count++
	}
}

// Points returns the buffered points, oldest first.
func (h *history) Points() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]DataPoint, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

// Len returns the number of buffered points.
func (h *history) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
