// Package bledb names Bluetooth SIG assigned numbers that show up in
// advertisements: 16-bit service UUIDs and company identifiers.
//
// The tables are a curated subset of the Bluetooth SIG assigned numbers
// covering beacons, fitness sensors and common consumer devices.
package bledb

import (
	"strings"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
)

// DataVersion identifies the assigned-numbers snapshot the tables follow.
const DataVersion = "2025-01"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"1805": "Current Time",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"1818": "Cycling Power",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"181c": "User Data",
	"181d": "Weight Scale",
	"1826": "Fitness Machine",
	"fd6f": "Exposure Notification",
	"fe9f": "Google",
	"feaa": "Eddystone",
	"febe": "Bose Corporation",
	"fe2c": "Google Fast Pair",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
}

var vendors = map[uint16]string{
	0x0000: "Ericsson Technology Licensing",
	0x0006: "Microsoft",
	0x000F: "Broadcom Corporation",
	0x004C: "Apple, Inc.",
	0x0059: "Nordic Semiconductor ASA",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x00E0: "Google",
	0x0157: "Anhui Huami Information Technology Co., Ltd.",
	0x0171: "Amazon.com Services, LLC",
	0x02E5: "Espressif Systems (Shanghai) Co., Ltd.",
	0x0499: "Ruuvi Innovations Ltd.",
	0xFFFE: "BLIMCo",
}

// NormalizeUUID renders s the way table keys are stored: 4 hex digits for
// SIG-based 16-bit UUIDs, 8 for 32-bit ones, and 32 undashed hex digits
// otherwise. Unparsable input is returned lowercased with separators removed.
func NormalizeUUID(s string) string {
	u, err := bleuuid.Parse(s)
	if err != nil {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.Trim(s, "{}")
		return strings.ReplaceAll(strings.TrimPrefix(s, "0x"), "-", "")
	}
	return key(u)
}

func key(u uuid.UUID) string {
	return strings.ReplaceAll(bleuuid.Shorten(u), "-", "")
}

// LookupService returns the assigned name of a service UUID in any textual
// form accepted by bleuuid.Parse, or "" when it is unknown.
func LookupService(s string) string {
	return services[NormalizeUUID(s)]
}

// ServiceName is LookupService for a parsed UUID.
func ServiceName(u uuid.UUID) string {
	return services[key(u)]
}

// LookupVendor returns the company name for a company identifier, or "".
func LookupVendor(id uint16) string {
	return vendors[id]
}
