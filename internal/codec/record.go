package codec

import (
	"encoding/binary"

	"github.com/pilldispenser/firmware/internal/messages"
)

// LogSize is the fixed size, in bytes, of one log slot: payload (6 bytes)
// plus a 2-byte CRC. Chosen per the "latest sources" EEPROM layout.
const LogSize = 8

// LogPayloadLen is LogSize without its trailing CRC.
const LogPayloadLen = LogSize - 2

// StatusSize is the fixed size, in bytes, of the DeviceStatus record.
const StatusSize = 8

// StatusPayloadLen is StatusSize without its trailing CRC.
const StatusPayloadLen = StatusSize - 2

// LogEntry is one slot of the circular event log.
type LogEntry struct {
	InUse       bool
	MessageCode messages.Code
	TimestampMs uint32
}

// EncodeLog packs e into a LogSize-byte slot, including its CRC.
func EncodeLog(e LogEntry) []byte {
	payload := make([]byte, LogPayloadLen)
	if e.InUse {
		payload[0] = 1
	}
	payload[1] = byte(e.MessageCode)
	binary.BigEndian.PutUint32(payload[2:6], e.TimestampMs)
	return AppendCRC(payload)
}

// DecodeLog unpacks a LogSize-byte slot. The caller must have already
// verified its CRC with Verify; DecodeLog does not re-check it.
func DecodeLog(buf []byte) LogEntry {
	return LogEntry{
		InUse:       buf[0] != 0,
		MessageCode: messages.Code(buf[1]),
		TimestampMs: binary.BigEndian.Uint32(buf[2:6]),
	}
}

// DeviceStatus is the single authoritative persisted status record, plus the
// volatile (never persisted) log cursor the controller keeps alongside it.
type DeviceStatus struct {
	PillDispenseState  uint8
	RebootStatusCode   messages.ActivityCode
	PrevCalibStepCount uint16
	PrevCalibEdgeCount uint16

	// UnusedLogIndex is the next log slot to write. It is rebuilt by
	// logstore.FindFirstFree at every boot and is never encoded.
	UnusedLogIndex int
}

// EncodeStatus packs s into a StatusSize-byte record, including its CRC.
func EncodeStatus(s DeviceStatus) []byte {
	payload := make([]byte, StatusPayloadLen)
	payload[0] = s.PillDispenseState
	payload[1] = byte(s.RebootStatusCode)
	binary.LittleEndian.PutUint16(payload[2:4], s.PrevCalibStepCount)
	binary.LittleEndian.PutUint16(payload[4:6], s.PrevCalibEdgeCount)
	return AppendCRC(payload)
}

// DecodeStatus unpacks a StatusSize-byte record. The caller must have
// already verified its CRC with Verify.
func DecodeStatus(buf []byte) DeviceStatus {
	return DeviceStatus{
		PillDispenseState:  buf[0],
		RebootStatusCode:   messages.ActivityCode(buf[1]),
		PrevCalibStepCount: binary.LittleEndian.Uint16(buf[2:4]),
		PrevCalibEdgeCount: binary.LittleEndian.Uint16(buf[4:6]),
	}
}
