package radio

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/srg/blescan/scanner"
)

// recEncMode is the CBOR encoder mode for recorded frames.
// Configured for nanosecond-precision timestamps and deterministic encoding.
var recEncMode cbor.EncMode

// recDecMode is the CBOR decoder mode for recorded frames.
var recDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create recording CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	recDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create recording CBOR decoder mode: %v", err))
	}
}

// FrameKind tells what a recorded frame carries.
type FrameKind uint8

const (
	FrameEvent   FrameKind = 0
	FrameBatch   FrameKind = 1
	FrameFailure FrameKind = 2
)

func (k FrameKind) String() string {
	switch k {
	case FrameEvent:
		return "EVENT"
	case FrameBatch:
		return "BATCH"
	case FrameFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Sighting is the recorded form of a scanner.DiscoveryEvent. The payload is
// kept raw so replays decode it exactly like live input.
type Sighting struct {
	Address      string    `cbor:"1,keyasint"`
	RSSI         int       `cbor:"2,keyasint"`
	Timestamp    time.Time `cbor:"3,keyasint"`
	Payload      []byte    `cbor:"4,keyasint,omitempty"`
	HasRecord    bool      `cbor:"5,keyasint,omitempty"`
	CallbackType int       `cbor:"6,keyasint,omitempty"`
}

// Frame is one unit of radio input as it reached the sink.
// CBOR encoding uses integer keys for compactness.
type Frame struct {
	Timestamp time.Time  `cbor:"1,keyasint"`
	Kind      FrameKind  `cbor:"2,keyasint"`
	Sightings []Sighting `cbor:"3,keyasint,omitempty"`
	ErrorCode int        `cbor:"4,keyasint,omitempty"`
}

func newSighting(ev scanner.DiscoveryEvent) Sighting {
	s := Sighting{
		Address:      ev.Address,
		RSSI:         ev.RSSI,
		Timestamp:    ev.Timestamp,
		CallbackType: int(ev.CallbackType),
	}
	if ev.Record != nil {
		s.HasRecord = true
		s.Payload = ev.Record.Bytes()
	}
	return s
}

// Event rebuilds the discovery event, stamped with ts.
func (s Sighting) Event(ts time.Time) scanner.DiscoveryEvent {
	var ev scanner.DiscoveryEvent
	if s.HasRecord {
		ev = scanner.NewDiscoveryEvent(s.Address, s.Payload, s.RSSI, ts)
	} else {
		ev = scanner.DiscoveryEvent{Address: s.Address, RSSI: s.RSSI, Timestamp: ts}
	}
	ev.CallbackType = scanner.CallbackType(s.CallbackType)
	return ev
}

// EncodeFrame encodes a Frame to CBOR bytes.
func EncodeFrame(f Frame) ([]byte, error) {
	return recEncMode.Marshal(f)
}

// DecodeFrame decodes CBOR bytes into a Frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := recDecMode.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// NewEncoder creates a CBOR encoder for frames that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return recEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for frames that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return recDecMode.NewDecoder(r)
}
