package bledb

import (
	"testing"

	"github.com/srg/blescan/internal/bleuuid"
	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit short form",
			input:    "180d",
			expected: "180d",
		},
		{
			name:     "16-bit with 0x prefix",
			input:    "0x180D",
			expected: "180d",
		},
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "0000180d-0000-1000-8000-00805f9b34fb",
			expected: "180d",
		},
		{
			name:     "Full Bluetooth SIG UUID without dashes",
			input:    "0000180d00001000800000805f9b34fb",
			expected: "180d",
		},
		{
			name:     "32-bit SIG UUID",
			input:    "fe33110b",
			expected: "fe33110b",
		},
		{
			name:     "Custom 128-bit UUID (not SIG base)",
			input:    "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "6e400001b5a3f393e0a9e50e24dcca9e",
		},
		{
			name:     "UUID with braces",
			input:    "{0000180d-0000-1000-8000-00805f9b34fb}",
			expected: "180d",
		},
		{
			name:     "Garbage is only cleaned up",
			input:    " {Not-A-UUID} ",
			expected: "notauuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestLookupService(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{"Heart Rate - short form", "180d", "Heart Rate"},
		{"Heart Rate - with 0x prefix", "0x180d", "Heart Rate"},
		{"Heart Rate - full UUID", "0000180d-0000-1000-8000-00805f9b34fb", "Heart Rate"},
		{"Battery Service - full UUID without dashes", "0000180f00001000800000805f9b34fb", "Battery Service"},
		{"Eddystone", "FEAA", "Eddystone"},
		{"Nordic UART", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "Nordic UART Service"},
		{"Unknown UUID", "ffff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupService(tt.uuid))
		})
	}
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "Heart Rate", ServiceName(bleuuid.FromShort(0x180d)))
	assert.Empty(t, ServiceName(bleuuid.MustParse("12345678-1234-1234-1234-123456789abc")))
}

func TestLookupVendor(t *testing.T) {
	assert.Equal(t, "Apple, Inc.", LookupVendor(0x004C))
	assert.Equal(t, "BLIMCo", LookupVendor(0xFFFE))
	assert.Empty(t, LookupVendor(0x1234))
}
