// Package bleuuid converts between the compact UUID encodings found in BLE
// advertisements and full 128-bit UUIDs.
package bleuuid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth SIG base UUID that 16 and 32-bit UUIDs expand against.
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// Byte widths of the three UUID encodings used on the air.
const (
	Len16  = 2
	Len32  = 4
	Len128 = 16
)

// ErrInvalidLength is returned by Expand for inputs that are not 2, 4 or 16 bytes long.
var ErrInvalidLength = errors.New("invalid uuid length")

// Expand converts a little-endian over-the-air UUID into a 128-bit UUID.
//
// 16-byte input is taken as two little-endian 64-bit halves, the low half first.
// 2 and 4-byte input is an unsigned little-endian short value that is added to
// the upper 32 bits of BaseUUID.
func Expand(b []byte) (uuid.UUID, error) {
	switch len(b) {
	case Len128:
		lsb := binary.LittleEndian.Uint64(b[0:8])
		msb := binary.LittleEndian.Uint64(b[8:16])
		return fromHalves(msb, lsb), nil
	case Len16:
		return FromShort(uint32(binary.LittleEndian.Uint16(b))), nil
	case Len32:
		return FromShort(binary.LittleEndian.Uint32(b)), nil
	default:
		return uuid.Nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
}

// FromShort expands a 16 or 32-bit assigned number against BaseUUID.
func FromShort(short uint32) uuid.UUID {
	msb, lsb := halves(BaseUUID)
	return fromHalves(msb+uint64(short)<<32, lsb)
}

// Compact returns the shortest little-endian wire encoding of u: 2 bytes for
// 16-bit assigned numbers, 4 bytes for 32-bit ones and 16 bytes otherwise.
func Compact(u uuid.UUID) []byte {
	short, width := shortValue(u)
	switch width {
	case Len16:
		return binary.LittleEndian.AppendUint16(nil, uint16(short))
	case Len32:
		return binary.LittleEndian.AppendUint32(nil, short)
	}
	msb, lsb := halves(u)
	out := binary.LittleEndian.AppendUint64(make([]byte, 0, Len128), lsb)
	return binary.LittleEndian.AppendUint64(out, msb)
}

// MaskedEqual reports whether a and b agree on every bit set in mask.
// The high and low 64-bit halves are compared independently.
func MaskedEqual(a, b, mask uuid.UUID) bool {
	aMsb, aLsb := halves(a)
	bMsb, bLsb := halves(b)
	mMsb, mLsb := halves(mask)
	if aLsb&mLsb != bLsb&mLsb {
		return false
	}
	return aMsb&mMsb == bMsb&mMsb
}

// Parse accepts a 16-bit ("180D", "0x180D"), 32-bit ("FE33110B") or full
// 128-bit UUID, with or without dashes or braces.
func Parse(s string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")

	if len(trimmed) == 4 || len(trimmed) == 8 {
		v, err := strconv.ParseUint(trimmed, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		return FromShort(uint32(v)), nil
	}

	u, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for tests and tables.
func MustParse(s string) uuid.UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Shorten renders u for display: 4 hex digits for 16-bit assigned numbers,
// 8 for 32-bit ones and the canonical form otherwise. Output is lowercase.
func Shorten(u uuid.UUID) string {
	short, width := shortValue(u)
	switch width {
	case Len16:
		return fmt.Sprintf("%04x", short)
	case Len32:
		return fmt.Sprintf("%08x", short)
	default:
		return u.String()
	}
}

// IsBased reports whether u was derived from BaseUUID.
func IsBased(u uuid.UUID) bool {
	return bytes.Equal(u[4:], BaseUUID[4:])
}

func shortValue(u uuid.UUID) (uint32, int) {
	if !IsBased(u) {
		return 0, Len128
	}
	short := binary.BigEndian.Uint32(u[0:4])
	if short <= 0xFFFF {
		return short, Len16
	}
	return short, Len32
}

func halves(u uuid.UUID) (msb, lsb uint64) {
	return binary.BigEndian.Uint64(u[0:8]), binary.BigEndian.Uint64(u[8:16])
}

func fromHalves(msb, lsb uint64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], msb)
	binary.BigEndian.PutUint64(u[8:16], lsb)
	return u
}
