package device

import (
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix if present (e.g., "0x2902" -> "2902").
// Full 128-bit UUIDs in Bluetooth SIG base format are shortened to their 16-bit form.
func NormalizeUUID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}

	var norm string
	if parsed, err := uuid.Parse(s); err == nil {
		norm = strings.ReplaceAll(parsed.String(), "-", "")
	} else {
		norm = strings.ToLower(strings.ReplaceAll(s, "-", ""))
	}

	if len(norm) == 32 && strings.HasPrefix(norm, "0000") && strings.HasSuffix(norm, sigBaseSuffix) {
		return norm[4:8]
	}
	return norm
}

// FormatUUID renders a normalized 128-bit UUID in the canonical dashed form.
// Short UUIDs are returned unchanged.
func FormatUUID(s string) string {
	norm := NormalizeUUID(s)
	if parsed, err := uuid.Parse(norm); err == nil {
		return parsed.String()
	}
	return norm
}
