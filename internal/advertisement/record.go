// Package advertisement decodes and builds BLE advertisement payloads.
//
// A payload is a sequence of AD structures, each encoded as
// len(1) | type(1) | data(len-1). Decode turns a payload into a Record;
// Packet builds one.
package advertisement

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
)

// Sentinels reported for fields missing from the payload.
const (
	FlagsAbsent   = -1
	TxPowerAbsent = math.MinInt32
)

// Record is an immutable, decoded advertisement.
type Record struct {
	flags            int
	serviceUUIDs     []uuid.UUID
	serviceData      map[uuid.UUID][]byte
	manufacturerData map[uint16][]byte
	txPower          int
	localName        *string
	raw              []byte
}

// Flags returns the advertise flags, or FlagsAbsent.
func (r *Record) Flags() int { return r.flags }

// TxPowerLevel returns the advertised transmit power in dBm, or TxPowerAbsent.
func (r *Record) TxPowerLevel() int { return r.txPower }

// HasTxPowerLevel reports whether a Tx Power Level field was present.
func (r *Record) HasTxPowerLevel() bool { return r.txPower != TxPowerAbsent }

// LocalName returns the shortened or complete local name, whichever came last.
func (r *Record) LocalName() (string, bool) {
	if r.localName == nil {
		return "", false
	}
	return *r.localName, true
}

// ServiceUUIDs returns the advertised service UUIDs in encounter order.
func (r *Record) ServiceUUIDs() []uuid.UUID {
	if len(r.serviceUUIDs) == 0 {
		return nil
	}
	out := make([]uuid.UUID, len(r.serviceUUIDs))
	copy(out, r.serviceUUIDs)
	return out
}

// ServiceData returns a copy of the service data map.
func (r *Record) ServiceData() map[uuid.UUID][]byte {
	out := make(map[uuid.UUID][]byte, len(r.serviceData))
	for k, v := range r.serviceData {
		out[k] = bytes.Clone(v)
	}
	return out
}

// ServiceDataFor returns the service data advertised for u.
func (r *Record) ServiceDataFor(u uuid.UUID) ([]byte, bool) {
	v, ok := r.serviceData[u]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// ManufacturerData returns a copy of the manufacturer specific data map.
// Values do not include the 2-byte company identifier.
func (r *Record) ManufacturerData() map[uint16][]byte {
	out := make(map[uint16][]byte, len(r.manufacturerData))
	for k, v := range r.manufacturerData {
		out[k] = bytes.Clone(v)
	}
	return out
}

// ManufacturerDataFor returns the manufacturer specific data for a company id.
func (r *Record) ManufacturerDataFor(id uint16) ([]byte, bool) {
	v, ok := r.manufacturerData[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Bytes returns the payload the record was decoded from, byte for byte.
func (r *Record) Bytes() []byte {
	return bytes.Clone(r.raw)
}

// Equal compares records by their raw bytes.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return bytes.Equal(r.raw, other.raw)
}

// IsEmpty reports whether no field was decoded.
func (r *Record) IsEmpty() bool {
	return r.flags == FlagsAbsent &&
		r.txPower == TxPowerAbsent &&
		r.localName == nil &&
		len(r.serviceUUIDs) == 0 &&
		len(r.serviceData) == 0 &&
		len(r.manufacturerData) == 0
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString("Record{")
	fmt.Fprintf(&sb, "flags=%d", r.flags)
	if name, ok := r.LocalName(); ok {
		fmt.Fprintf(&sb, " name=%q", name)
	}
	if r.HasTxPowerLevel() {
		fmt.Fprintf(&sb, " tx=%d", r.txPower)
	}
	if len(r.serviceUUIDs) > 0 {
		names := make([]string, len(r.serviceUUIDs))
		for i, u := range r.serviceUUIDs {
			names[i] = bleuuid.Shorten(u)
		}
		fmt.Fprintf(&sb, " services=[%s]", strings.Join(names, ","))
	}
	if len(r.serviceData) > 0 {
		keys := make([]string, 0, len(r.serviceData))
		for u, v := range r.serviceData {
			keys = append(keys, fmt.Sprintf("%s:%x", bleuuid.Shorten(u), v))
		}
		sort.Strings(keys)
		fmt.Fprintf(&sb, " serviceData=[%s]", strings.Join(keys, ","))
	}
	if len(r.manufacturerData) > 0 {
		keys := make([]string, 0, len(r.manufacturerData))
		for id, v := range r.manufacturerData {
			keys = append(keys, fmt.Sprintf("%04x:%x", id, v))
		}
		sort.Strings(keys)
		fmt.Fprintf(&sb, " manufacturerData=[%s]", strings.Join(keys, ","))
	}
	fmt.Fprintf(&sb, " raw=%x}", r.raw)
	return sb.String()
}

func emptyRecord(raw []byte) *Record {
	return &Record{
		flags:   FlagsAbsent,
		txPower: TxPowerAbsent,
		raw:     raw,
	}
}
