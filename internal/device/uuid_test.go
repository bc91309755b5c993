package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2A19", "2a19"},
		{"0x180F", "180f"},
		{"0X180f", "180f"},
		{"00002a19-0000-1000-8000-00805f9b34fb", "2a19"},
		{"0000180F00001000800000805F9B34FB", "180f"},
		{"0000-2902-0000-1000-8000-00805f9b34fb", "2902"},
		{"00020000-2FF1-4355-AE68-BD2F575B2249", "000200002ff14355ae68bd2f575b2249"},
		{"000200042ff14355ae68bd2f575b2249", "000200042ff14355ae68bd2f575b2249"},
		{"  00020001-2ff1-4355-ae68-bd2f575b2249 ", "000200012ff14355ae68bd2f575b2249"},
		// SIG prefix or suffix alone is not enough to shorten
		{"AA002902-0000-1000-8000-00805f9b34fb", "aa00290200001000800000805f9b34fb"},
		{"00002902-1234-5678-9abc-def012345678", "00002902123456789abcdef012345678"},
		{"0000290200001000800000805f9b34fb00", "0000290200001000800000805f9b34fb00"},
		{"00002902", "00002902"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUID_Idempotent(t *testing.T) {
	for _, u := range []string{"2a19", "000200032ff14355ae68bd2f575b2249", "00002902-0000-1000-8000-00805f9b34fb"} {
		once := NormalizeUUID(u)
		assert.Equal(t, once, NormalizeUUID(once))
		assert.Equal(t, once, NormalizeUUID(FormatUUID(u)), "FormatUUID output MUST normalize back")
	}
}

func TestFormatUUID(t *testing.T) {
	assert.Equal(t, "00020004-2ff1-4355-ae68-bd2f575b2249", FormatUUID("000200042FF14355AE68BD2F575B2249"))
	assert.Equal(t, "2a19", FormatUUID("00002a19-0000-1000-8000-00805f9b34fb"), "SIG UUIDs MUST stay in short form")
	assert.Equal(t, "180f", FormatUUID("0x180F"))
}
