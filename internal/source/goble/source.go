// Package goble adapts the go-ble radio stack to the engine's Observation
// Source boundary. The scheduler drives Subscribe/Unsubscribe around its
// duty cycle; this adapter owns the go-ble device handle and converts raw
// advertisements into observations.
package goble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/observation"
)

// txPowerUnset is go-ble's sentinel for "TX power not present".
const txPowerUnset = 127

// Source implements observation.Source over a go-ble device.
type Source struct {
	logger *logrus.Logger

	mu     sync.Mutex
	dev    ble.Device
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates an unopened radio source.
func NewSource(logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{logger: logger}
}

// Ready reports whether the radio can be opened. The device handle is
// created lazily and cached.
func (s *Source) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceLocked() == nil
}

func (s *Source) deviceLocked() error {
	if s.dev != nil {
		return nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		s.logger.WithError(err).Warn("BLE radio unavailable")
		return err
	}
	s.dev = dev
	return nil
}

// Subscribe opens the advertisement stream. go-ble delivers advertisements
// on its own goroutine until the scan context is cancelled.
func (s *Source) Subscribe(filter observation.Filter, h observation.Handler, errh func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("subscription already open")
	}
	if err := s.deviceLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	dev := s.dev
	handler := func(adv ble.Advertisement) {
		obs := toObservation(adv)
		if !matchesFilter(obs, filter) {
			return
		}
		h(obs)
	}

	groutine.Go(ctx, "ble-scan-pump", func(ctx context.Context) {
		defer close(done)
		err := dev.Scan(ctx, filter.AllowDuplicates, handler)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			if errh != nil {
				errh(err)
			}
		}
	})

	return nil
}

// Unsubscribe cancels the scan and waits for go-ble's delivery goroutine to
// drain, so no handler call happens after it returns.
func (s *Source) Unsubscribe() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// toObservation converts a raw go-ble advertisement.
func toObservation(adv ble.Advertisement) observation.Observation {
	obs := observation.Observation{
		ID:               adv.Addr().String(),
		RSSI:             adv.RSSI(),
		LocalName:        adv.LocalName(),
		PlatformName:     adv.Addr().String(),
		ManufacturerData: adv.ManufacturerData(),
		Connectable:      adv.Connectable(),
		Timestamp:        time.Now(),
	}

	for _, svc := range adv.Services() {
		obs.ServiceUUIDs = append(obs.ServiceUUIDs, svc.String())
	}

	if sd := adv.ServiceData(); len(sd) > 0 {
		obs.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			obs.ServiceData[d.UUID.String()] = d.Data
		}
	}

	if tx := adv.TxPowerLevel(); tx != txPowerUnset {
		power := tx
		obs.TxPower = &power
	}

	return obs
}

// matchesFilter applies the service-UUID filter client-side; go-ble's Scan
// has no native service filtering on all platforms.
func matchesFilter(obs observation.Observation, filter observation.Filter) bool {
	if len(filter.ServiceUUIDs) == 0 {
		return true
	}
	for _, want := range filter.ServiceUUIDs {
		for _, have := range obs.ServiceUUIDs {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}
