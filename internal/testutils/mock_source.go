package testutils

import (
	"sync"

	"github.com/srg/blewatch/internal/observation"
)

// MockSource is a scripted observation.Source. Tests control readiness,
// inject subscribe failures, push observations and faults by hand, and
// assert on subscribe/unsubscribe call counts.
type MockSource struct {
	mu sync.Mutex

	// NotReady makes Ready return false.
	NotReady bool

	// SubscribeErr, when set, fails the next Subscribe call.
	SubscribeErr error

	subscribeCalls   int
	unsubscribeCalls int
	open             bool

	handler observation.Handler
	errh    func(error)
	filter  observation.Filter
}

// NewMockSource returns a ready source with no scripted failures.
func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.NotReady
}

func (m *MockSource) Subscribe(filter observation.Filter, h observation.Handler, errh func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribeCalls++
	if m.SubscribeErr != nil {
		err := m.SubscribeErr
		m.SubscribeErr = nil
		return err
	}

	m.open = true
	m.filter = filter
	m.handler = h
	m.errh = errh
	return nil
}

func (m *MockSource) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubscribeCalls++
	m.open = false
	m.handler = nil
	m.errh = nil
	return nil
}

// Push delivers an observation as the platform would, synchronously on the
// caller's goroutine. Dropped silently when no subscription is open.
func (m *MockSource) Push(obs observation.Observation) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()

	if h != nil {
		h(obs)
	}
}

// Fault injects a mid-scan error event.
func (m *MockSource) Fault(err error) {
	m.mu.Lock()
	errh := m.errh
	m.mu.Unlock()

	if errh != nil {
		errh(err)
	}
}

// SubscribeCalls returns how many times Subscribe was invoked.
func (m *MockSource) SubscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCalls
}

// UnsubscribeCalls returns how many times Unsubscribe was invoked.
func (m *MockSource) UnsubscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribeCalls
}

// Open reports whether a subscription is currently established.
func (m *MockSource) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// LastFilter returns the filter from the most recent Subscribe.
func (m *MockSource) LastFilter() observation.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}
