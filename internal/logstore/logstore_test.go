package logstore

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/pilldispenser/firmware/internal/codec"
	"github.com/pilldispenser/firmware/internal/messages"
)

// fakeEEPROM is an in-memory eeprom.Device, the same mock-bus idiom the
// teacher uses for host-testable drivers (sharpmem_test.go's mockBus).
type fakeEEPROM struct {
	mem []byte
}

func newFakeEEPROM(size int) *fakeEEPROM {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF // blank EEPROM reads as 0xFF
	}
	return &fakeEEPROM{mem: mem}
}

func (f *fakeEEPROM) ReadPage(address uint16, dst []byte) error {
	copy(dst, f.mem[address:])
	return nil
}

func (f *fakeEEPROM) WritePage(address uint16, src []byte) error {
	copy(f.mem[address:], src)
	return nil
}

func (f *fakeEEPROM) ReadByte(address uint16) (byte, error) {
	return f.mem[address], nil
}

func (f *fakeEEPROM) WriteByte(address uint16, value byte) error {
	f.mem[address] = value
	return nil
}

func Test_FindFirstFree_emptyRing(t *testing.T) {
	c := qt.New(t)
	dev := newFakeEEPROM(32 * codec.LogSize)
	store := New(dev, 0, 32)

	// Blank EEPROM (0xFF) has a nonzero in-use byte everywhere, so the ring
	// reads as entirely full and gets zeroed.
	idx, err := store.FindFirstFree()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 0)
}

func Test_FindFirstFree_leastFreeIndex(t *testing.T) {
	c := qt.New(t)
	dev := newFakeEEPROM(32 * codec.LogSize)
	store := New(dev, 0, 32)
	c.Assert(store.ZeroAll(), qt.IsNil)

	status := &codec.DeviceStatus{}
	for i := 0; i < 5; i++ {
		c.Assert(store.Append(status, messages.BootFinished, uint32(i)), qt.IsNil)
	}

	idx, err := store.FindFirstFree()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 5)
}

func Test_ring_wrapsAndZeroes(t *testing.T) {
	c := qt.New(t)
	const maxLogs = 32
	dev := newFakeEEPROM(maxLogs * codec.LogSize)
	store := New(dev, 0, maxLogs)
	c.Assert(store.ZeroAll(), qt.IsNil)

	status := &codec.DeviceStatus{}
	for i := 0; i < 33; i++ {
		c.Assert(store.Append(status, messages.BootFinished, uint32(i)), qt.IsNil)
	}

	// The 32nd append (index 31, the last slot) triggers ZeroAll and resets
	// the index to 0; the 33rd append then lands at slot 0.
	idx, err := store.FindFirstFree()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 1)

	entries, err := store.PrintValid()
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
	c.Assert(entries[0].Slot, qt.Equals, 0)
}

func Test_PrintValid_skipsBadCRC(t *testing.T) {
	c := qt.New(t)
	dev := newFakeEEPROM(8 * codec.LogSize)
	store := New(dev, 0, 8)
	c.Assert(store.ZeroAll(), qt.IsNil)

	status := &codec.DeviceStatus{}
	c.Assert(store.Append(status, messages.PillDispensed, 1000), qt.IsNil)
	c.Assert(store.Append(status, messages.PillError, 2000), qt.IsNil)

	// Corrupt the second entry's payload without touching its in-use byte;
	// its CRC must no longer verify, and it must be silently skipped.
	dev.mem[codec.LogSize+2] ^= 0xFF

	entries, err := store.PrintValid()
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
	c.Assert(entries[0].Message, qt.Equals, messages.PillDispensed)
}

func Test_PrintValid_secondsAgo(t *testing.T) {
	c := qt.New(t)
	dev := newFakeEEPROM(8 * codec.LogSize)
	store := New(dev, 0, 8)
	c.Assert(store.ZeroAll(), qt.IsNil)

	status := &codec.DeviceStatus{}
	c.Assert(store.Append(status, messages.BootFinished, 65_000), qt.IsNil)

	entries, err := store.PrintValid()
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
	c.Assert(entries[0].SecondsAgo, qt.Equals, uint32(65))
}
