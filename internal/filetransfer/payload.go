package filetransfer

import (
	"math/rand/v2"
)

// DataPayloadLen is the length of the data write
const DataPayloadLen = 100 + 256*200

// SizePayload is written to the size characteristic before a transfer.
// The literal is what devices in the field expect; it is not derived from DataPayloadLen.
func SizePayload() []byte {
	return []byte{100, 200, 0, 0}
}

// CommandBegin is written to the command characteristic to start a transfer
func CommandBegin() []byte {
	return []byte{1}
}

// NewDataPayload returns DataPayloadLen bytes drawn uniformly from [1,254].
// A nil rng uses the package-level source.
func NewDataPayload(rng *rand.Rand) []byte {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	data := make([]byte, DataPayloadLen)
	for i := range data {
		data[i] = byte(1 + intN(254))
	}
	return data
}
