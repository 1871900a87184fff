//go:build darwin

package goble

import (
	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates ble.Device instances (overridable in tests).
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}
