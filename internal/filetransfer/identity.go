// Package filetransfer drives the vendor file-transfer GATT service: it resolves the
// service's characteristics into roles and runs the fixed command script against them.
package filetransfer

import (
	"fmt"
)

// Fixed GATT identity of the file-transfer service
const (
	ServiceUUID = "00020000-2ff1-4355-ae68-bd2f575b2249"
	CommandUUID = "00020001-2ff1-4355-ae68-bd2f575b2249"
	DataUUID    = "00020002-2ff1-4355-ae68-bd2f575b2249"
	SizeUUID    = "00020003-2ff1-4355-ae68-bd2f575b2249"
	StatusUUID  = "00020004-2ff1-4355-ae68-bd2f575b2249"
)

// TransferState is the device-side status reported by the status characteristic.
// It is decoded for display only.
type TransferState uint8

const (
	StateLock TransferState = iota + 1
	StateIdle
	StateRecv
	StateWait
	StateSend
	StateFail
)

func (s TransferState) String() string {
	switch s {
	case StateLock:
		return "LOCK"
	case StateIdle:
		return "IDLE"
	case StateRecv:
		return "RECV"
	case StateWait:
		return "WAIT"
	case StateSend:
		return "SEND"
	case StateFail:
		return "FAIL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// ParseTransferState decodes a status characteristic value.
// Only the first byte is significant.
func ParseTransferState(value []byte) (TransferState, error) {
	if len(value) == 0 {
		return 0, fmt.Errorf("empty status value")
	}
	s := TransferState(value[0])
	if s < StateLock || s > StateFail {
		return s, fmt.Errorf("unknown transfer state %d", value[0])
	}
	return s, nil
}
