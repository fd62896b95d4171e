// Package logstore implements the wrap-around circular event log: MAX_LOGS
// fixed-size slots, append-in-order, zero-and-wrap when full.
package logstore

import (
	"github.com/pilldispenser/firmware/internal/codec"
	"github.com/pilldispenser/firmware/internal/eeprom"
	"github.com/pilldispenser/firmware/internal/messages"
)

// Store manages the ring of LogEntry slots living at [BaseAddr, BaseAddr+MaxLogs*LogSize).
type Store struct {
	dev      eeprom.Device
	baseAddr uint16
	maxLogs  int
}

// New returns a Store for maxLogs slots of codec.LogSize bytes each,
// starting at baseAddr.
func New(dev eeprom.Device, baseAddr uint16, maxLogs int) *Store {
	return &Store{dev: dev, baseAddr: baseAddr, maxLogs: maxLogs}
}

func (s *Store) slotAddr(i int) uint16 {
	return s.baseAddr + uint16(i*codec.LogSize)
}

// MaxLogs returns the number of slots in the ring.
func (s *Store) MaxLogs() int {
	return s.maxLogs
}

// FindFirstFree scans slots 0..MaxLogs-1 and returns the first whose in-use
// byte is 0. If every slot is in use, it zeroes the whole ring and returns 0.
func (s *Store) FindFirstFree() (int, error) {
	for i := 0; i < s.maxLogs; i++ {
		b, err := s.dev.ReadByte(s.slotAddr(i))
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return i, nil
		}
	}
	if err := s.ZeroAll(); err != nil {
		return 0, err
	}
	return 0, nil
}

// ZeroAll writes 0 to the in-use byte of every slot. The rest of each slot is
// left untouched; a stale CRC makes any leftover payload fail verification.
func (s *Store) ZeroAll() error {
	for i := 0; i < s.maxLogs; i++ {
		if err := s.dev.WriteByte(s.slotAddr(i), 0); err != nil {
			return err
		}
	}
	return nil
}

// Append composes a LogEntry from code and tMs, writes it to the slot named
// by status.UnusedLogIndex, and advances that index (wrapping and zeroing
// the ring when it would exceed MaxLogs-1).
func (s *Store) Append(status *codec.DeviceStatus, code messages.Code, tMs uint32) error {
	entry := codec.LogEntry{InUse: true, MessageCode: code, TimestampMs: tMs}
	buf := codec.EncodeLog(entry)
	if err := s.dev.WritePage(s.slotAddr(status.UnusedLogIndex), buf); err != nil {
		return err
	}
	return s.advanceIndex(status)
}

func (s *Store) advanceIndex(status *codec.DeviceStatus) error {
	if status.UnusedLogIndex < s.maxLogs-1 {
		status.UnusedLogIndex++
		return nil
	}
	if err := s.ZeroAll(); err != nil {
		return err
	}
	status.UnusedLogIndex = 0
	return nil
}

// ValidEntry is one slot returned by PrintValid: its index, decoded message,
// and the seconds elapsed since the boot that produced it.
type ValidEntry struct {
	Slot       int
	Message    messages.Code
	SecondsAgo uint32
}

// PrintValid returns every slot whose in-use byte is 1 and whose CRC
// verifies, in slot order. Slots with a set in-use byte but a bad CRC are
// failed partial writes and are silently skipped.
func (s *Store) PrintValid() ([]ValidEntry, error) {
	var out []ValidEntry
	buf := make([]byte, codec.LogSize)
	for i := 0; i < s.maxLogs; i++ {
		if err := s.dev.ReadPage(s.slotAddr(i), buf); err != nil {
			return nil, err
		}
		if buf[0] != 1 {
			continue
		}
		if !codec.Verify(buf) {
			continue
		}
		entry := codec.DecodeLog(buf)
		out = append(out, ValidEntry{
			Slot:       i,
			Message:    entry.MessageCode,
			SecondsAgo: entry.TimestampMs / 1000,
		})
	}
	return out, nil
}
