//go:build tinygo

package eeprom

import (
	"machine"
	"time"
)

// Address is the 24-series EEPROM's fixed I2C address on the reference
// hardware.
const Address = 0x50

// I2CDevice talks to a 24-series EEPROM (>=4 KiB) over machine.I2C, honoring
// the device's maximum write-cycle time by blocking subsequent writes until
// it has elapsed.
type I2CDevice struct {
	bus           *machine.I2C
	writeCycleMax time.Duration
	lastWriteAt   time.Time
}

// NewI2CDevice returns a Device bound to bus. writeCycleMax is the EEPROM's
// maximum page-write cycle time (5ms on the reference hardware).
func NewI2CDevice(bus *machine.I2C, writeCycleMax time.Duration) *I2CDevice {
	return &I2CDevice{bus: bus, writeCycleMax: writeCycleMax}
}

func (d *I2CDevice) blockForWriteCycle() {
	if d.lastWriteAt.IsZero() {
		return
	}
	elapsed := time.Since(d.lastWriteAt)
	if elapsed < d.writeCycleMax {
		time.Sleep(d.writeCycleMax - elapsed)
	}
}

func addrBytes(address uint16) [2]byte {
	return [2]byte{byte(address >> 8), byte(address)}
}

// ReadPage reads len(dst) bytes starting at address. The EEPROM latches the
// read address with a write-then-read, per the device's protocol.
func (d *I2CDevice) ReadPage(address uint16, dst []byte) error {
	d.blockForWriteCycle()
	a := addrBytes(address)
	return d.bus.Tx(Address, a[:], dst)
}

// ReadByte reads a single byte at address.
func (d *I2CDevice) ReadByte(address uint16) (byte, error) {
	var b [1]byte
	if err := d.ReadPage(address, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WritePage writes src starting at address, then blocks on the next call
// until the device's write-cycle time has elapsed.
func (d *I2CDevice) WritePage(address uint16, src []byte) error {
	d.blockForWriteCycle()
	a := addrBytes(address)
	out := make([]byte, 0, len(a)+len(src))
	out = append(out, a[:]...)
	out = append(out, src...)
	if err := d.bus.Tx(Address, out, nil); err != nil {
		return err
	}
	d.lastWriteAt = time.Now()
	return nil
}

// WriteByte writes a single byte at address.
func (d *I2CDevice) WriteByte(address uint16, value byte) error {
	return d.WritePage(address, []byte{value})
}
