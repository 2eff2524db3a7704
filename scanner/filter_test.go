package scanner_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/internal/testutils"
	"github.com/srg/blescan/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_ManufacturerMask(t *testing.T) {
	ev := testutils.NewAdvertisementBuilder().
		WithManufacturerData(0x004C, []byte{0x02, 0x14, 0x99}).
		Event()

	unmasked := scanner.MustFilter(scanner.WithManufacturerData(0x004C, []byte{0x02, 0x15}))
	masked := scanner.MustFilter(scanner.WithManufacturerData(0x004C, []byte{0x02, 0x15}, 0xFF, 0x00))
	otherVendor := scanner.MustFilter(scanner.WithManufacturerData(0x0059, nil))
	anyPayload := scanner.MustFilter(scanner.WithManufacturerData(0x004C, nil))

	assert.False(t, unmasked.Matches(ev))
	assert.True(t, masked.Matches(ev))
	assert.False(t, otherVendor.Matches(ev))
	assert.True(t, anyPayload.Matches(ev))
}

func TestFilter_Criteria(t *testing.T) {
	ev := testutils.NewAdvertisementBuilder().
		WithAddress("01:02:03:04:05:AB").
		WithName("Thermo").
		WithServices("180d", "6e400001-b5a3-f393-e0a9-e50e24dcca9e").
		WithServiceData("180f", []byte{0x64, 0x01}).
		Event()

	hr := bleuuid.MustParse("180d")
	battery := bleuuid.MustParse("180f")
	highMask := uuid.MustParse("ffff0000-0000-0000-0000-000000000000")
	shortMask := uuid.MustParse("0000ffff-0000-0000-0000-000000000000")

	tests := []struct {
		name   string
		filter *scanner.Filter
		match  bool
	}{
		{"empty filter", scanner.MustFilter(), true},
		{"address", scanner.MustFilter(scanner.WithDeviceAddress("01:02:03:04:05:AB")), true},
		{"other address", scanner.MustFilter(scanner.WithDeviceAddress("01:02:03:04:05:AC")), false},
		{"name", scanner.MustFilter(scanner.WithDeviceName("Thermo")), true},
		{"name is not a prefix match", scanner.MustFilter(scanner.WithDeviceName("Therm")), false},
		{"service", scanner.MustFilter(scanner.WithServiceUUID(hr)), true},
		{"128-bit service", scanner.MustFilter(scanner.WithServiceUUID(bleuuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"))), true},
		{"absent service", scanner.MustFilter(scanner.WithServiceUUID(battery)), false},
		{"service under high mask", scanner.MustFilter(scanner.WithServiceUUIDMask(battery, highMask)), true},
		{"service under short mask", scanner.MustFilter(scanner.WithServiceUUIDMask(battery, shortMask)), false},
		{"service data prefix", scanner.MustFilter(scanner.WithServiceData(battery, []byte{0x64})), true},
		{"service data longer than value", scanner.MustFilter(scanner.WithServiceData(battery, []byte{0x64, 0x01, 0x00})), false},
		{"service data masked", scanner.MustFilter(scanner.WithServiceData(battery, []byte{0x60, 0x00}, 0xF0, 0x00)), true},
		{"service data of absent uuid", scanner.MustFilter(scanner.WithServiceData(hr, nil)), false},
		{"every criterion", scanner.MustFilter(
			scanner.WithDeviceAddress("01:02:03:04:05:AB"),
			scanner.WithDeviceName("Thermo"),
			scanner.WithServiceUUID(hr),
			scanner.WithServiceData(battery, []byte{0x64}),
		), true},
		{"one criterion fails", scanner.MustFilter(
			scanner.WithDeviceName("Thermo"),
			scanner.WithManufacturerData(0x004C, nil),
		), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.filter.Matches(ev))
			// matching is pure
			assert.Equal(t, tt.match, tt.filter.Matches(ev))
		})
	}
}

// A zero UUID mask satisfies the masked comparison for every service data
// entry, so the filter UUID itself is irrelevant.
func TestFilter_ZeroServiceDataUUIDMaskMatchesAnyEntry(t *testing.T) {
	filterUUID := uuid.MustParse("75837467-2222-3333-4444-193749571524")

	withData := scanner.MustFilter(scanner.WithServiceDataUUIDMask(filterUUID, uuid.Nil, []byte{0x50, 0x64}))
	withoutData := scanner.MustFilter(scanner.WithServiceDataUUIDMask(filterUUID, uuid.Nil, nil))

	ev := testutils.NewAdvertisementBuilder().WithServiceData("180d", []byte{0x50, 0x64, 0x01}).Event()
	assert.True(t, withData.Matches(ev))
	assert.True(t, withoutData.Matches(ev))

	otherValue := testutils.NewAdvertisementBuilder().WithServiceData("180d", []byte{0x51}).Event()
	assert.False(t, withData.Matches(otherValue))
	assert.True(t, withoutData.Matches(otherValue))

	noServiceData := testutils.NewAdvertisementBuilder().WithName("x").Event()
	assert.False(t, withoutData.Matches(noServiceData))
}

func TestFilter_MissingRecord(t *testing.T) {
	ev := scanner.DiscoveryEvent{Address: "01:02:03:04:05:06", RSSI: -70}

	assert.True(t, scanner.MustFilter(scanner.WithDeviceAddress("01:02:03:04:05:06")).Matches(ev))
	assert.True(t, scanner.MustFilter().Matches(ev))
	assert.False(t, scanner.MustFilter(scanner.WithDeviceName("x")).Matches(ev))
	assert.False(t, scanner.MustFilter(scanner.WithServiceUUID(bleuuid.MustParse("180d"))).Matches(ev))
	assert.False(t, scanner.MustFilter(scanner.WithServiceData(bleuuid.MustParse("180d"), nil)).Matches(ev))
	assert.False(t, scanner.MustFilter(scanner.WithManufacturerData(0, nil)).Matches(ev))
}

func TestFilter_ConstructionErrors(t *testing.T) {
	u := bleuuid.MustParse("180d")

	tests := []struct {
		name string
		opt  scanner.FilterOption
	}{
		{"lower case address", scanner.WithDeviceAddress("01:02:03:04:05:ab")},
		{"short address", scanner.WithDeviceAddress("01:02:03")},
		{"mask without data", scanner.WithServiceData(u, nil, 0xFF)},
		{"mask length mismatch", scanner.WithServiceData(u, []byte{0x01, 0x02}, 0xFF)},
		{"manufacturer mask length mismatch", scanner.WithManufacturerData(0x004C, []byte{0x01}, 0xFF, 0xFF)},
		{"manufacturer mask without data", scanner.WithManufacturerData(0x004C, nil, 0xFF)},
		{"negative manufacturer id", scanner.WithManufacturerData(-2, nil)},
		{"manufacturer id too large", scanner.WithManufacturerData(0x10000, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := scanner.NewFilter(tt.opt)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, scanner.ErrInvalidFilter))

			var fe *scanner.FilterError
			assert.True(t, errors.As(err, &fe))
		})
	}

	assert.Panics(t, func() { scanner.MustFilter(scanner.WithDeviceAddress("bad")) })
}

func TestFilter_MaskIsCopied(t *testing.T) {
	data := []byte{0x02, 0x15}
	mask := []byte{0xFF, 0xFF}
	f := scanner.MustFilter(scanner.WithManufacturerData(0x004C, data, mask...))

	data[1] = 0x00
	mask[1] = 0x00

	ev := testutils.NewAdvertisementBuilder().WithManufacturerData(0x004C, []byte{0x02, 0x15}).Event()
	assert.True(t, f.Matches(ev))
}

func TestFilters_Match(t *testing.T) {
	ev := testutils.NewAdvertisementBuilder().WithName("A").Event()

	assert.True(t, scanner.Filters(nil).Match(ev))
	assert.True(t, scanner.Filters{
		scanner.MustFilter(scanner.WithDeviceName("B")),
		scanner.MustFilter(scanner.WithDeviceName("A")),
	}.Match(ev))
	assert.False(t, scanner.Filters{scanner.MustFilter(scanner.WithDeviceName("B"))}.Match(ev))
}

func TestFilter_String(t *testing.T) {
	f := scanner.MustFilter(
		scanner.WithDeviceName("Thermo"),
		scanner.WithManufacturerData(0x004C, []byte{0x02}),
	)
	assert.Equal(t, `Filter{name="Thermo" manufacturer=004c:02/}`, f.String())
}
