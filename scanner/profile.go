package scanner

import (
	"fmt"
	"time"
)

// DefaultMinRSSI is the weakest signal accepted pre-merge in the foreground
// profile.
const DefaultMinRSSI = -85

// BatteryProfile is the duty-cycle configuration. Profiles are swapped
// wholesale (never field-by-field) on foreground/background transitions or
// when entering low-power mode.
//
// The DutyCycling flag is honored at Start; a profile swap while running
// changes timing and the RSSI threshold at the next phase boundary but does
// not switch between duty-cycled and continuous modes mid-session.
type BatteryProfile struct {
	// DutyCycling alternates active-scan and rest phases. When false the
	// subscription stays open continuously.
	DutyCycling bool `yaml:"duty_cycling" default:"true"`

	// ScanDuration is the active-scan phase length.
	ScanDuration time.Duration `yaml:"scan_duration" default:"10s"`

	// RestDuration is the radio-off phase length.
	RestDuration time.Duration `yaml:"rest_duration" default:"20s"`

	// MinRSSI discards observations weaker than this threshold before they
	// reach the registry.
	MinRSSI int `yaml:"min_rssi" default:"-85"`

	// ForegroundInterval and BackgroundInterval are the base reporting
	// cadences (aggregation ticks) for each lifecycle state.
	ForegroundInterval time.Duration `yaml:"foreground_interval" default:"10s"`
	BackgroundInterval time.Duration `yaml:"background_interval" default:"30s"`
}

// DefaultProfile is the foreground profile.
func DefaultProfile() BatteryProfile {
	return BatteryProfile{
		DutyCycling:        true,
		ScanDuration:       10 * time.Second,
		RestDuration:       20 * time.Second,
		MinRSSI:            DefaultMinRSSI,
		ForegroundInterval: 10 * time.Second,
		BackgroundInterval: 30 * time.Second,
	}
}

// BackgroundProfile trades discovery latency for power: shorter active
// windows, longer rest, and a stricter threshold so weak, likely-irrelevant
// signals are not processed at all.
func BackgroundProfile() BatteryProfile {
	p := DefaultProfile()
	p.ScanDuration = 5 * time.Second
	p.RestDuration = 55 * time.Second
	p.MinRSSI = -75
	return p
}

// Validate rejects profiles that would wedge the duty cycle. Called
// synchronously by Start and SetProfile; on failure the previous profile is
// retained.
func (p BatteryProfile) Validate() error {
	if p.ScanDuration <= 0 {
		return fmt.Errorf("%w: scan duration %v", ErrInvalidProfile, p.ScanDuration)
	}
	if p.DutyCycling && p.RestDuration <= 0 {
		return fmt.Errorf("%w: rest duration %v", ErrInvalidProfile, p.RestDuration)
	}
	if p.MinRSSI > 0 || p.MinRSSI < -128 {
		return fmt.Errorf("%w: min RSSI %d dBm out of range", ErrInvalidProfile, p.MinRSSI)
	}
	if p.ForegroundInterval < 0 || p.BackgroundInterval < 0 {
		return fmt.Errorf("%w: negative base interval", ErrInvalidProfile)
	}
	return nil
}

// Lifecycle is the two-valued foreground/background input from the platform.
// The full app-lifecycle state machine stays outside the core.
type Lifecycle int

const (
	Foreground Lifecycle = iota
	Background
)

func (l Lifecycle) String() string {
	if l == Background {
		return "background"
	}
	return "foreground"
}

// ProfileFor returns the stock profile for a lifecycle state.
func ProfileFor(l Lifecycle) BatteryProfile {
	if l == Background {
		return BackgroundProfile()
	}
	return DefaultProfile()
}
