// Package statusstore implements the single-slot, CRC-protected DeviceStatus
// record: read-with-verify, and idempotent, dirty-flag-coalesced update.
package statusstore

import (
	"github.com/pilldispenser/firmware/internal/codec"
	"github.com/pilldispenser/firmware/internal/eeprom"
)

// Store manages the DeviceStatus record at a fixed EEPROM address.
type Store struct {
	dev  eeprom.Device
	addr uint16

	// last is the most recently written payload (sans CRC and the volatile
	// UnusedLogIndex field), used to elide no-op writes.
	last    codec.DeviceStatus
	hasLast bool
}

// New returns a Store for the status record at addr.
func New(dev eeprom.Device, addr uint16) *Store {
	return &Store{dev: dev, addr: addr}
}

// Read reads the status record and verifies its CRC. On success it returns
// the decoded record and true. On CRC mismatch it returns a zeroed record
// and false; the caller must log GREMLINS.
func (s *Store) Read() (codec.DeviceStatus, bool) {
	buf := make([]byte, codec.StatusSize)
	if err := s.dev.ReadPage(s.addr, buf); err != nil {
		return codec.DeviceStatus{}, false
	}
	if !codec.Verify(buf) {
		return codec.DeviceStatus{}, false
	}
	return codec.DecodeStatus(buf), true
}

// Update re-encodes status with a fresh CRC and writes it to the fixed
// status address, unless every persisted field is unchanged since the last
// Update (the dirty-flag coalescing recommended to extend EEPROM life).
func (s *Store) Update(status codec.DeviceStatus) error {
	persisted := status
	persisted.UnusedLogIndex = 0 // volatile field never participates in the comparison or the write

	if s.hasLast && persisted == s.last {
		return nil
	}

	buf := codec.EncodeStatus(persisted)
	if err := s.dev.WritePage(s.addr, buf); err != nil {
		return err
	}
	s.last = persisted
	s.hasLast = true
	return nil
}
