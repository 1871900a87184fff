// Package session tracks the lifecycle of one bounded scanning interval:
// start, live duration, end, and the discovered-device summary frozen at
// close.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionActive is returned by Start while a session is already running.
// Callers must Stop before restarting.
var ErrSessionActive = errors.New("scan session already active")

// ErrNoSession is returned by End when nothing is running.
var ErrNoSession = errors.New("no active scan session")

// Config is the scan configuration snapshot frozen into a session at start.
type Config struct {
	ScanDuration    time.Duration `json:"scan_duration" yaml:"scan_duration" default:"10s"`
	ScanTimeout     time.Duration `json:"scan_timeout" yaml:"scan_timeout" default:"0s"`
	ServiceUUIDs    []string      `json:"service_uuids,omitempty" yaml:"service_uuids,omitempty"`
	AllowDuplicates bool          `json:"allow_duplicates" yaml:"allow_duplicates" default:"true"`
	ScanMode        string        `json:"scan_mode,omitempty" yaml:"scan_mode,omitempty" default:"balanced"`
}

// Session is one scanning interval. Once ended it is immutable.
type Session struct {
	ID        string
	StartTime time.Time

	// EndTime is zero while the session is active.
	EndTime time.Time

	// Duration is frozen at end; zero while active (use Tracker.Duration for
	// the live value).
	Duration time.Duration

	DevicesDiscovered int
	DeviceIDs         []string

	Config Config
}

// IsActive reports whether the session has not ended yet.
func (s Session) IsActive() bool {
	return !s.StartTime.IsZero() && s.EndTime.IsZero()
}

// Tracker enforces the one-active-session invariant.
type Tracker struct {
	mu      sync.Mutex
	current Session
	now     func() time.Time
}

// NewTracker creates a tracker. nowFn defaults to time.Now and exists so
// tests control timestamps.
func NewTracker(nowFn func() time.Time) *Tracker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{now: nowFn}
}

// Start begins a new session with a time-derived unique id. Starting while a
// session is active is rejected with ErrSessionActive and leaves the running
// session untouched.
func (t *Tracker) Start(cfg Config) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.IsActive() {
		return t.current, ErrSessionActive
	}

	start := t.now()
	t.current = Session{
		ID:        fmt.Sprintf("%d-%s", start.UnixMilli(), uuid.NewString()[:8]),
		StartTime: start,
		Config:    cfg,
	}
	return t.current, nil
}

// End closes the active session, freezing its end time, duration, and the
// discovered-device summary.
func (t *Tracker) End(discoveredIDs []string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.current.IsActive() {
		return Session{}, ErrNoSession
	}

	ids := make([]string, len(discoveredIDs))
	copy(ids, discoveredIDs)
	sort.Strings(ids)

	t.current.EndTime = t.now()
	t.current.Duration = t.current.EndTime.Sub(t.current.StartTime)
	t.current.DeviceIDs = ids
	t.current.DevicesDiscovered = len(ids)
	return t.current, nil
}

// Current returns the most recent session, active or ended. The bool is
// false before any session has started.
func (t *Tracker) Current() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, !t.current.StartTime.IsZero()
}

// Duration returns the live elapsed time for an active session, or the
// frozen duration for an ended one.
func (t *Tracker) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.IsActive() {
		return t.now().Sub(t.current.StartTime)
	}
	return t.current.Duration
}
