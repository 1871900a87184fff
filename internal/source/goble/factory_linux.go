//go:build linux

package goble

import (
	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates ble.Device instances (overridable in tests).
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}
