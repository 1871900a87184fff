package main

import (
	"errors"

	"github.com/srg/blewatch/scanner"
)

// formatUserError maps internal errors to actionable CLI messages.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, scanner.ErrNotReady):
		return "Bluetooth radio is not available. Check that Bluetooth is powered on and this process is authorized to use it."
	case errors.Is(err, scanner.ErrAlreadyRunning):
		return "a scan is already running"
	case errors.Is(err, scanner.ErrInvalidProfile):
		return err.Error()
	default:
		return err.Error()
	}
}
