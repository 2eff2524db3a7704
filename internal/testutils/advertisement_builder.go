package testutils

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/scanner"
)

// go-ble reports 127 when the Tx Power Level field is absent.
const txPowerUnknown = 127

// DefaultTestTime is the timestamp events get unless At is used.
var DefaultTestTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type serviceDataEntry struct {
	uuid uuid.UUID
	data []byte
}

// AdvertisementBuilder builds advertisement payloads, discovery events and
// mocked ble.Advertisement values from one fluent description. Only the
// fields that were set end up in the payload.
type AdvertisementBuilder struct {
	address      string
	name         *string
	rssi         int
	flags        *byte
	txPower      *int
	services     []uuid.UUID
	serviceData  []serviceDataEntry
	manufID      *uint16
	manufData    []byte
	timestamp    time.Time
	callbackType scanner.CallbackType
	connectable  bool
}

// NewAdvertisementBuilder creates a builder for a connectable device at
// 00:00:00:00:00:01 with RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		address:     "00:00:00:00:00:01",
		rssi:        -50,
		timestamp:   DefaultTestTime,
		connectable: true,
	}
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = &name
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithFlags(flags byte) *AdvertisementBuilder {
	b.flags = &flags
	return b
}

func (b *AdvertisementBuilder) WithTxPower(dbm int) *AdvertisementBuilder {
	b.txPower = &dbm
	return b
}

// WithServices adds service UUIDs in any notation bleuuid.Parse accepts.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, s := range uuids {
		b.services = append(b.services, bleuuid.MustParse(s))
	}
	return b
}

func (b *AdvertisementBuilder) WithServiceData(u string, data []byte) *AdvertisementBuilder {
	b.serviceData = append(b.serviceData, serviceDataEntry{uuid: bleuuid.MustParse(u), data: data})
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(companyID uint16, data []byte) *AdvertisementBuilder {
	b.manufID = &companyID
	b.manufData = data
	return b
}

func (b *AdvertisementBuilder) WithConnectable(connectable bool) *AdvertisementBuilder {
	b.connectable = connectable
	return b
}

// At sets the event timestamp.
func (b *AdvertisementBuilder) At(ts time.Time) *AdvertisementBuilder {
	b.timestamp = ts
	return b
}

// Native marks the event as a radio-reported first-match or match-lost.
func (b *AdvertisementBuilder) Native(t scanner.CallbackType) *AdvertisementBuilder {
	b.callbackType = t
	return b
}

// FromJSON configures the builder from a JSON description:
//
//	{"address": "...", "name": "...", "rssi": -40, "tx_power": 4,
//	 "services": ["180d"], "service_data": {"180d": "0102"},
//	 "manufacturer_id": 76, "manufacturer_data": "0215..."}
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var desc struct {
		Address          *string           `json:"address"`
		Name             *string           `json:"name"`
		RSSI             *int              `json:"rssi"`
		TxPower          *int              `json:"tx_power"`
		Services         []string          `json:"services"`
		ServiceData      map[string]string `json:"service_data"`
		ManufacturerID   *uint16           `json:"manufacturer_id"`
		ManufacturerData string            `json:"manufacturer_data"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &desc); err != nil {
		panic(fmt.Sprintf("invalid advertisement JSON: %v", err))
	}

	if desc.Address != nil {
		b.WithAddress(*desc.Address)
	}
	if desc.Name != nil {
		b.WithName(*desc.Name)
	}
	if desc.RSSI != nil {
		b.WithRSSI(*desc.RSSI)
	}
	if desc.TxPower != nil {
		b.WithTxPower(*desc.TxPower)
	}
	b.WithServices(desc.Services...)
	for u, data := range desc.ServiceData {
		b.WithServiceData(u, mustHex(data))
	}
	if desc.ManufacturerID != nil {
		b.WithManufacturerData(*desc.ManufacturerID, mustHex(desc.ManufacturerData))
	}
	return b
}

// Bytes encodes the configured fields as an advertisement payload.
func (b *AdvertisementBuilder) Bytes() []byte {
	var p advertisement.Packet
	if b.flags != nil {
		p = p.AppendFlags(*b.flags)
	}
	if b.name != nil {
		p = p.AppendCompleteName(*b.name)
	}
	if b.txPower != nil {
		p = p.AppendTxPower(*b.txPower)
	}
	if len(b.services) > 0 {
		p = p.AppendUUIDs(b.services...)
	}
	for _, sd := range b.serviceData {
		p = p.AppendServiceData(sd.uuid, sd.data)
	}
	if b.manufID != nil {
		p = p.AppendManufacturerData(*b.manufID, b.manufData)
	}
	return p.Bytes()
}

// Event returns the discovery event a radio would deliver for this device.
func (b *AdvertisementBuilder) Event() scanner.DiscoveryEvent {
	ev := scanner.NewDiscoveryEvent(b.address, b.Bytes(), b.rssi, b.timestamp)
	ev.CallbackType = b.callbackType
	return ev
}

// BuildBLE returns a mocked ble.Advertisement carrying the same fields.
func (b *AdvertisementBuilder) BuildBLE() *MockAdvertisement {
	addr := &MockAddr{}
	addr.On("String").Return(b.address)

	adv := &MockAdvertisement{}
	adv.On("Addr").Return(addr)
	adv.On("RSSI").Return(b.rssi)
	adv.On("Connectable").Return(b.connectable)

	name := ""
	if b.name != nil {
		name = *b.name
	}
	adv.On("LocalName").Return(name)

	tx := txPowerUnknown
	if b.txPower != nil {
		tx = *b.txPower
	}
	adv.On("TxPowerLevel").Return(tx)

	var services []ble.UUID
	for _, u := range b.services {
		services = append(services, ble.UUID(bleuuid.Compact(u)))
	}
	adv.On("Services").Return(services)
	adv.On("OverflowService").Return([]ble.UUID(nil))
	adv.On("SolicitedService").Return([]ble.UUID(nil))

	var serviceData []ble.ServiceData
	for _, sd := range b.serviceData {
		serviceData = append(serviceData, ble.ServiceData{UUID: ble.UUID(bleuuid.Compact(sd.uuid)), Data: sd.data})
	}
	adv.On("ServiceData").Return(serviceData)

	var manufacturer []byte
	if b.manufID != nil {
		manufacturer = binary.LittleEndian.AppendUint16(nil, *b.manufID)
		manufacturer = append(manufacturer, b.manufData...)
	}
	adv.On("ManufacturerData").Return(manufacturer)
	return adv
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex %q: %v", s, err))
	}
	return b
}
