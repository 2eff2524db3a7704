package testutils

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertisementBuilder_Bytes(t *testing.T) {
	raw := NewAdvertisementBuilder().
		WithFlags(0x06).
		WithName("Beacon").
		WithTxPower(-4).
		WithServices("180d").
		WithServiceData("180d", []byte{0x01}).
		WithManufacturerData(advertisement.CompanyApple, []byte{0x02, 0x15}).
		Bytes()

	rec, err := advertisement.Parse(raw)
	require.NoError(t, err)

	name, ok := rec.LocalName()
	assert.True(t, ok)
	assert.Equal(t, "Beacon", name)
	assert.Equal(t, 0x06, rec.Flags())
	assert.Equal(t, -4, rec.TxPowerLevel())
	assert.Equal(t, []byte{0x01}, rec.ServiceData()[bleuuid.MustParse("180d")])
	assert.Equal(t, []byte{0x02, 0x15}, rec.ManufacturerData()[advertisement.CompanyApple])
}

func TestAdvertisementBuilder_FromJSON(t *testing.T) {
	ev := CreateAdvertisementFromJSON(`{
		"address": "%s",
		"name": "HR",
		"rssi": -42,
		"services": ["180d"],
		"manufacturer_id": 65534,
		"manufacturer_data": "0102"
	}`, "AA:BB:CC:DD:EE:FF").Event()

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", ev.Address)
	assert.Equal(t, -42, ev.RSSI)
	assert.Equal(t, "HR", ev.Name())
	assert.Equal(t, DefaultTestTime, ev.Timestamp)
	data, ok := ev.Record.ManufacturerDataFor(advertisement.CompanyBlim)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, data)
}

func TestAdvertisementBuilder_BuildBLE(t *testing.T) {
	adv := CreateAdvertisement("HR", "11:22:33:44:55:66", -60).
		WithServices("180d").
		WithManufacturerData(0x004C, []byte{0x02}).
		BuildBLE()

	var _ ble.Advertisement = adv
	assert.Equal(t, "11:22:33:44:55:66", adv.Addr().String())
	assert.Equal(t, "HR", adv.LocalName())
	assert.Equal(t, -60, adv.RSSI())
	assert.Equal(t, 127, adv.TxPowerLevel())
	assert.Equal(t, []byte{0x4C, 0x00, 0x02}, adv.ManufacturerData())
	require.Len(t, adv.Services(), 1)
	assert.Equal(t, ble.UUID{0x0d, 0x18}, adv.Services()[0])
}
