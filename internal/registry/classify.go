package registry

import (
	"encoding/binary"
	"strings"
)

// UnknownType is the fallback label for devices no classification rule
// matches.
const UnknownType = "Unknown"

// typeRule pairs a predicate with the label it assigns. Rules are evaluated
// in order, first match wins.
type typeRule struct {
	label string
	match func(rec DeviceRecord) bool
}

// typeRules is the static classification table. Ordering matters: more
// specific service matches come before broad vendor matches.
var typeRules = []typeRule{
	{"Heart Rate Monitor", advertisesService("180d")},
	{"Battery Service", advertisesService("180f")},
	{"Health Thermometer", advertisesService("1809")},
	{"Blood Pressure Monitor", advertisesService("1810")},
	{"Cycling Sensor", advertisesService("1816", "1818")},
	{"Running Sensor", advertisesService("1814")},
	{"Environmental Sensor", advertisesService("181a")},
	{"Input Device", advertisesService("1812")},
	{"Audio Device", advertisesService("1843", "1844", "184e")},
	{"Proximity Tag", advertisesService("1802", "1803")},
	{"Fitness Machine", advertisesService("1826")},
	{"Eddystone Beacon", advertisesService("feaa")},
	{"Apple Device", manufacturerCompany(0x004c)},
	{"Microsoft Device", manufacturerCompany(0x0006)},
	{"Google Device", manufacturerCompany(0x00e0)},
	{"Samsung Device", manufacturerCompany(0x0075)},
	{"Garmin Device", manufacturerCompany(0x0087)},
}

// Classify derives a best-effort device type label from advertised services
// and manufacturer data. Pure and idempotent: the same record always yields
// the same label.
func Classify(rec DeviceRecord) string {
	for _, rule := range typeRules {
		if rule.match(rec) {
			return rule.label
		}
	}
	return UnknownType
}

// advertisesService matches records advertising any service whose UUID starts
// with one of the given short-form prefixes. Short 16-bit UUIDs expand into
// the Bluetooth base UUID as "0000xxxx-...", so both forms are checked.
func advertisesService(prefixes ...string) func(DeviceRecord) bool {
	return func(rec DeviceRecord) bool {
		for _, uuid := range rec.ServiceUUIDs {
			for _, p := range prefixes {
				if strings.HasPrefix(uuid, p) || strings.HasPrefix(uuid, "0000"+p) {
					return true
				}
			}
		}
		return false
	}
}

// manufacturerCompany matches on the Bluetooth SIG company identifier carried
// in the first two bytes of manufacturer data (little-endian, per BLE
// convention).
func manufacturerCompany(id uint16) func(DeviceRecord) bool {
	return func(rec DeviceRecord) bool {
		if len(rec.ManufacturerData) < 2 {
			return false
		}
		return binary.LittleEndian.Uint16(rec.ManufacturerData[0:2]) == id
	}
}
