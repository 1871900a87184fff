// Package testutils provides fixtures shared by the engine's test suites: a
// fluent observation builder and a scripted mock Observation Source with
// call counting.
package testutils

import (
	"time"

	"github.com/srg/blewatch/internal/observation"
)

// ObservationBuilder builds observations for tests with a fluent API.
type ObservationBuilder struct {
	obs observation.Observation
}

// NewObservation starts a builder with sane defaults: connectable, RSSI -50,
// zero timestamp (the registry substitutes time.Now for zero timestamps).
func NewObservation(id string) *ObservationBuilder {
	return &ObservationBuilder{obs: observation.Observation{
		ID:          id,
		RSSI:        -50,
		Connectable: true,
	}}
}

func (b *ObservationBuilder) WithName(name string) *ObservationBuilder {
	b.obs.LocalName = name
	return b
}

func (b *ObservationBuilder) WithPlatformName(name string) *ObservationBuilder {
	b.obs.PlatformName = name
	return b
}

func (b *ObservationBuilder) WithRSSI(rssi int) *ObservationBuilder {
	b.obs.RSSI = rssi
	return b
}

func (b *ObservationBuilder) WithServices(uuids ...string) *ObservationBuilder {
	b.obs.ServiceUUIDs = append(b.obs.ServiceUUIDs, uuids...)
	return b
}

func (b *ObservationBuilder) WithManufacturerData(data []byte) *ObservationBuilder {
	b.obs.ManufacturerData = data
	return b
}

func (b *ObservationBuilder) WithServiceData(uuid string, data []byte) *ObservationBuilder {
	if b.obs.ServiceData == nil {
		b.obs.ServiceData = make(map[string][]byte)
	}
	b.obs.ServiceData[uuid] = data
	return b
}

func (b *ObservationBuilder) WithConnectable(c bool) *ObservationBuilder {
	b.obs.Connectable = c
	return b
}

func (b *ObservationBuilder) WithTxPower(power int) *ObservationBuilder {
	b.obs.TxPower = &power
	return b
}

func (b *ObservationBuilder) WithTimestamp(t time.Time) *ObservationBuilder {
	b.obs.Timestamp = t
	return b
}

// Build returns the observation.
func (b *ObservationBuilder) Build() observation.Observation {
	return b.obs
}
