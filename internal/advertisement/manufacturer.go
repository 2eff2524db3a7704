package advertisement

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Company identifiers with a known payload layout.
const (
	CompanyApple uint16 = 0x004C
	CompanyBlim  uint16 = 0xFFFE // BLIMCo (test/internal use)
)

// ManufacturerDataParser parses company-specific manufacturer data.
// The payload excludes the 2-byte company identifier.
type ManufacturerDataParser func([]byte) (interface{}, error)

// VendorInfo is implemented by parsed manufacturer data that knows its vendor.
type VendorInfo interface {
	VendorID() uint16
	VendorName() string
}

var manufacturerDataParsers = map[uint16]ManufacturerDataParser{
	CompanyApple: parseAppleManufacturerData,
	CompanyBlim:  parseBlimManufacturerData,
}

// ParseManufacturerData parses the manufacturer specific data of a company.
//
// It returns (nil, nil) for companies without a registered parser, and an
// error when a known company's payload is malformed.
func ParseManufacturerData(companyID uint16, payload []byte) (interface{}, error) {
	parser, exists := manufacturerDataParsers[companyID]
	if !exists {
		return nil, nil
	}
	return parser(payload)
}

// IsParsableManufacturerData returns true if a parser exists for the company ID
func IsParsableManufacturerData(companyID uint16) bool {
	_, exists := manufacturerDataParsers[companyID]
	return exists
}

// -----------------------------------------------------------------------------
// Apple iBeacon
// -----------------------------------------------------------------------------

const (
	iBeaconType   = 0x02
	iBeaconLength = 0x15
)

// IBeacon is a parsed iBeacon frame.
//
// Format (23 bytes after the company id):
//   - Byte 0:      Type (0x02)
//   - Byte 1:      Length (0x15)
//   - Bytes 2-17:  Proximity UUID (big-endian)
//   - Bytes 18-19: Major (big-endian)
//   - Bytes 20-21: Minor (big-endian)
//   - Byte 22:     Measured power at 1m (signed dBm)
type IBeacon struct {
	ProximityUUID uuid.UUID
	Major         uint16
	Minor         uint16
	MeasuredPower int
}

// VendorID implements VendorInfo interface
func (b *IBeacon) VendorID() uint16 { return CompanyApple }

// VendorName implements VendorInfo interface
func (b *IBeacon) VendorName() string { return "Apple" }

func (b *IBeacon) String() string {
	return fmt.Sprintf("iBeacon %s major=%d minor=%d power=%ddBm", b.ProximityUUID, b.Major, b.Minor, b.MeasuredPower)
}

func parseAppleManufacturerData(data []byte) (interface{}, error) {
	if len(data) < 2 || data[0] != iBeaconType {
		// other Apple frames (AirDrop, Continuity...) are not decoded
		return nil, nil
	}
	if data[1] != iBeaconLength || len(data) < 2+iBeaconLength {
		return nil, fmt.Errorf("ibeacon frame too short: %d bytes, expected %d", len(data), 2+iBeaconLength)
	}

	var proximity uuid.UUID
	copy(proximity[:], data[2:18])

	return &IBeacon{
		ProximityUUID: proximity,
		Major:         binary.BigEndian.Uint16(data[18:20]),
		Minor:         binary.BigEndian.Uint16(data[20:22]),
		MeasuredPower: int(int8(data[22])),
	}, nil
}

// -----------------------------------------------------------------------------
// Blim (BLIMCo) Manufacturer Data
// -----------------------------------------------------------------------------

// BlimDeviceType represents known Blim device types
type BlimDeviceType uint8

const (
	BlimDeviceTypeBLETest BlimDeviceType = 0x00
	BlimDeviceTypeIMU     BlimDeviceType = 0x01
)

// String returns human-readable device type name
func (t BlimDeviceType) String() string {
	switch t {
	case BlimDeviceTypeBLETest:
		return "BLE Test Device"
	case BlimDeviceTypeIMU:
		return "IMU Streamer"
	default:
		return fmt.Sprintf("Unknown (0x%02X)", uint8(t))
	}
}

// BlimManufacturerData represents parsed Blim manufacturer data
//
// Format (5 bytes after the company id):
//   - Byte 0:    Device Type
//   - Byte 1:    Hardware Version (high nibble = major, low nibble = minor)
//   - Bytes 2-4: Firmware Version (Major.Minor.Patch)
type BlimManufacturerData struct {
	DeviceType      BlimDeviceType
	HardwareVersion string
	FirmwareVersion string
}

// VendorID implements VendorInfo interface
func (b *BlimManufacturerData) VendorID() uint16 { return CompanyBlim }

// VendorName implements VendorInfo interface
func (b *BlimManufacturerData) VendorName() string { return "BLIMCo" }

func (b *BlimManufacturerData) String() string {
	return fmt.Sprintf("%s hw=%s fw=%s", b.DeviceType, b.HardwareVersion, b.FirmwareVersion)
}

func parseBlimManufacturerData(data []byte) (interface{}, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("blim manufacturer data too short: %d bytes, expected 5", len(data))
	}

	return &BlimManufacturerData{
		DeviceType:      BlimDeviceType(data[0]),
		HardwareVersion: fmt.Sprintf("%d.%d", data[1]>>4, data[1]&0x0F),
		FirmwareVersion: fmt.Sprintf("%d.%d.%d", data[2], data[3], data[4]),
	}, nil
}
