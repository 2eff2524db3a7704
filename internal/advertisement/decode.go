package advertisement

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
)

// DecodeError describes the first structural problem found in a payload.
type DecodeError struct {
	Offset int   // offset of the AD structure's length byte
	Type   byte  // AD type, zero if the type byte itself was missing
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed advertisement at offset %d (type 0x%02X): %s", e.Offset, e.Type, e.Reason)
}

// Decode parses an advertisement payload. It never fails: a malformed
// payload yields a Record with every field absent and the raw bytes intact.
func Decode(b []byte) *Record {
	rec, _ := Parse(b)
	return rec
}

// Parse is Decode that also reports why a payload was rejected.
// The returned Record is always non-nil.
func Parse(b []byte) (*Record, error) {
	raw := bytes.Clone(b)
	rec, err := parse(raw)
	if err != nil {
		return emptyRecord(raw), err
	}
	return rec, nil
}

func parse(raw []byte) (*Record, error) {
	rec := emptyRecord(raw)

	for pos := 0; pos < len(raw); {
		start := pos
		length := int(raw[pos])
		pos++
		if length == 0 {
			break
		}
		if pos >= len(raw) {
			return nil, &DecodeError{Offset: start, Reason: "missing AD type"}
		}
		typ := raw[pos]
		pos++

		end := pos + length - 1
		if end > len(raw) {
			if !isKnownType(typ) {
				// skipping an unknown structure simply runs off the end
				break
			}
			return nil, &DecodeError{Offset: start, Type: typ, Reason: fmt.Sprintf("length %d overruns buffer", length)}
		}
		data := raw[pos:end]
		pos = end

		if err := rec.apply(typ, data); err != nil {
			return nil, &DecodeError{Offset: start, Type: typ, Reason: err.Error()}
		}
	}

	return rec, nil
}

func (r *Record) apply(typ byte, data []byte) error {
	switch typ {
	case TypeFlags:
		if len(data) < 1 {
			return fmt.Errorf("empty flags")
		}
		r.flags = int(data[0])

	case TypeSomeUUID16, TypeAllUUID16:
		return r.appendUUIDs(data, bleuuid.Len16)
	case TypeSomeUUID32, TypeAllUUID32:
		return r.appendUUIDs(data, bleuuid.Len32)
	case TypeSomeUUID128, TypeAllUUID128:
		return r.appendUUIDs(data, bleuuid.Len128)

	case TypeShortName, TypeCompleteName:
		name := strings.ToValidUTF8(string(data), "\uFFFD")
		r.localName = &name

	case TypeTxPower:
		if len(data) < 1 {
			return fmt.Errorf("empty tx power")
		}
		r.txPower = int(int8(data[0]))

	case TypeServiceData16:
		return r.putServiceData(data, bleuuid.Len16)
	case TypeServiceData32:
		return r.putServiceData(data, bleuuid.Len32)
	case TypeServiceData128:
		return r.putServiceData(data, bleuuid.Len128)

	case TypeManufacturerData:
		if len(data) < 2 {
			return fmt.Errorf("manufacturer data too short: %d bytes", len(data))
		}
		if r.manufacturerData == nil {
			r.manufacturerData = make(map[uint16][]byte)
		}
		r.manufacturerData[binary.LittleEndian.Uint16(data[:2])] = bytes.Clone(data[2:])
	}
	return nil
}

func (r *Record) appendUUIDs(data []byte, width int) error {
	if len(data)%width != 0 {
		return fmt.Errorf("uuid list of %d bytes is not a multiple of %d", len(data), width)
	}
	for off := 0; off < len(data); off += width {
		u, err := bleuuid.Expand(data[off : off+width])
		if err != nil {
			return err
		}
		r.serviceUUIDs = append(r.serviceUUIDs, u)
	}
	return nil
}

func (r *Record) putServiceData(data []byte, width int) error {
	if len(data) < width {
		return fmt.Errorf("service data of %d bytes is shorter than its %d-byte uuid", len(data), width)
	}
	u, err := bleuuid.Expand(data[:width])
	if err != nil {
		return err
	}
	if r.serviceData == nil {
		r.serviceData = make(map[uuid.UUID][]byte)
	}
	r.serviceData[u] = bytes.Clone(data[width:])
	return nil
}

func isKnownType(typ byte) bool {
	switch typ {
	case TypeFlags,
		TypeSomeUUID16, TypeAllUUID16,
		TypeSomeUUID32, TypeAllUUID32,
		TypeSomeUUID128, TypeAllUUID128,
		TypeShortName, TypeCompleteName,
		TypeTxPower,
		TypeServiceData16, TypeServiceData32, TypeServiceData128,
		TypeManufacturerData:
		return true
	}
	return false
}
