// Package eeprom is the persistence layer's boundary to the external 24-series
// I2C EEPROM. The wire protocol (two-byte big-endian address, write-then-read
// latching, write-cycle backoff) lives here; everything above this package
// talks only to the small Device interface.
package eeprom

// Device is the byte/page client the persistence layer (logstore,
// statusstore) depends on. It is satisfied by *I2CDevice on real hardware
// and by an in-memory fake in tests.
type Device interface {
	// ReadPage reads len(dst) bytes starting at address.
	ReadPage(address uint16, dst []byte) error
	// WritePage writes src starting at address. The device's write-cycle
	// time is honoured before the next access, not before returning.
	WritePage(address uint16, src []byte) error
	// ReadByte reads a single byte at address.
	ReadByte(address uint16) (byte, error)
	// WriteByte writes a single byte at address. The device's write-cycle
	// time is honoured before the next access, not before returning.
	WriteByte(address uint16, value byte) error
}
