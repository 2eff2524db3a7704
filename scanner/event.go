package scanner

import (
	"fmt"
	"time"

	"github.com/srg/blescan/internal/advertisement"
)

// DiscoveryEvent is one sighting of an advertising device.
type DiscoveryEvent struct {
	Address   string
	Record    *advertisement.Record // nil when the radio delivered no payload
	RSSI      int
	Timestamp time.Time

	// CallbackType is set only by radios that report first-match/match-lost
	// natively. Plain sightings leave it zero.
	CallbackType CallbackType
}

// NewDiscoveryEvent decodes raw and stamps the event with ts.
func NewDiscoveryEvent(address string, raw []byte, rssi int, ts time.Time) DiscoveryEvent {
	return DiscoveryEvent{
		Address:   address,
		Record:    advertisement.Decode(raw),
		RSSI:      rssi,
		Timestamp: ts,
	}
}

// Name returns the advertised local name, or "" when there is none.
func (e DiscoveryEvent) Name() string {
	if e.Record == nil {
		return ""
	}
	name, _ := e.Record.LocalName()
	return name
}

func (e DiscoveryEvent) native() bool {
	return e.CallbackType != 0 && e.CallbackType != CallbackAllMatches
}

func (e DiscoveryEvent) String() string {
	return fmt.Sprintf("%s rssi=%d name=%q", e.Address, e.RSSI, e.Name())
}
