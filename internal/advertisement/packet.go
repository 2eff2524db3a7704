package advertisement

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
)

// AD types handled by the decoder.
// Refer to Supplement to the Bluetooth Core Specification, Part A.
const (
	TypeFlags            byte = 0x01
	TypeSomeUUID16       byte = 0x02
	TypeAllUUID16        byte = 0x03
	TypeSomeUUID32       byte = 0x04
	TypeAllUUID32        byte = 0x05
	TypeSomeUUID128      byte = 0x06
	TypeAllUUID128       byte = 0x07
	TypeShortName        byte = 0x08
	TypeCompleteName     byte = 0x09
	TypeTxPower          byte = 0x0A
	TypeServiceData16    byte = 0x16
	TypeServiceData32    byte = 0x20
	TypeServiceData128   byte = 0x21
	TypeManufacturerData byte = 0xFF
)

// MaxLegacyPayload is the size of a legacy advertising or scan response PDU payload.
const MaxLegacyPayload = 31

// Packet crafts advertisement payloads, one AD structure at a time.
type Packet []byte

// AppendField appends a raw AD structure.
func (p Packet) AppendField(typ byte, b []byte) Packet {
	p = append(p, byte(len(b)+1), typ)
	return append(p, b...)
}

// AppendFlags appends the flags field.
func (p Packet) AppendFlags(f byte) Packet {
	return p.AppendField(TypeFlags, []byte{f})
}

// AppendShortName appends a shortened local name.
func (p Packet) AppendShortName(n string) Packet {
	return p.AppendField(TypeShortName, []byte(n))
}

// AppendCompleteName appends a complete local name.
func (p Packet) AppendCompleteName(n string) Packet {
	return p.AppendField(TypeCompleteName, []byte(n))
}

// AppendTxPower appends the Tx Power Level field.
func (p Packet) AppendTxPower(dbm int) Packet {
	return p.AppendField(TypeTxPower, []byte{byte(int8(dbm))})
}

// AppendUUIDs appends complete service UUID lists, one per encoded width,
// in the order 16, 32, 128-bit.
func (p Packet) AppendUUIDs(uuids ...uuid.UUID) Packet {
	var u16, u32, u128 []byte
	for _, u := range uuids {
		c := bleuuid.Compact(u)
		switch len(c) {
		case bleuuid.Len16:
			u16 = append(u16, c...)
		case bleuuid.Len32:
			u32 = append(u32, c...)
		default:
			u128 = append(u128, c...)
		}
	}
	if len(u16) > 0 {
		p = p.AppendField(TypeAllUUID16, u16)
	}
	if len(u32) > 0 {
		p = p.AppendField(TypeAllUUID32, u32)
	}
	if len(u128) > 0 {
		p = p.AppendField(TypeAllUUID128, u128)
	}
	return p
}

// AppendRawUUIDs appends a UUID list from already little-endian encoded
// UUIDs of equal width.
func (p Packet) AppendRawUUIDs(width int, encoded []byte) Packet {
	switch width {
	case bleuuid.Len16:
		return p.AppendField(TypeAllUUID16, encoded)
	case bleuuid.Len32:
		return p.AppendField(TypeAllUUID32, encoded)
	default:
		return p.AppendField(TypeAllUUID128, encoded)
	}
}

// AppendServiceData appends service data using the shortest UUID encoding.
func (p Packet) AppendServiceData(u uuid.UUID, data []byte) Packet {
	return p.AppendRawServiceData(bleuuid.Compact(u), data)
}

// AppendRawServiceData appends service data for an already little-endian encoded UUID.
func (p Packet) AppendRawServiceData(encoded []byte, data []byte) Packet {
	typ := TypeServiceData128
	switch len(encoded) {
	case bleuuid.Len16:
		typ = TypeServiceData16
	case bleuuid.Len32:
		typ = TypeServiceData32
	}
	b := make([]byte, 0, len(encoded)+len(data))
	b = append(b, encoded...)
	return p.AppendField(typ, append(b, data...))
}

// AppendManufacturerData appends manufacturer specific data for a company id.
func (p Packet) AppendManufacturerData(id uint16, data []byte) Packet {
	b := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(data)), id)
	return p.AppendField(TypeManufacturerData, append(b, data...))
}

// Len returns the payload size in bytes.
func (p Packet) Len() int { return len(p) }

// Bytes returns the payload.
func (p Packet) Bytes() []byte { return []byte(p) }
