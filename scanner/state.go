package scanner

import "errors"

// State is the duty-cycle scheduler's state machine position.
type State int

const (
	Idle State = iota
	Initializing
	ActiveScan
	Resting
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case ActiveScan:
		return "active_scan"
	case Resting:
		return "resting"
	case Stopping:
		return "stopping"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned by Start while a scan is in progress.
	ErrAlreadyRunning = errors.New("scanner already running")

	// ErrNotReady means the observation source radio is off or unauthorized.
	// Fatal to the current start attempt.
	ErrNotReady = errors.New("observation source not ready")

	// ErrInvalidProfile marks a rejected battery profile.
	ErrInvalidProfile = errors.New("invalid battery profile")
)
