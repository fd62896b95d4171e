//go:build rp2040
// +build rp2040

package lora

import (
	"machine"
	"time"
)

// MachineUART adapts *machine.UART to the Shipper's UART dependency,
// polling Buffered()/ReadByte() and assembling CRLF-terminated lines in the
// style of comboat.device.serviceUART/processUART.
type MachineUART struct {
	uart *machine.UART
	buf  []byte
}

// NewMachineUART configures uart at baud and returns a ready UART.
func NewMachineUART(uart *machine.UART, tx, rx machine.Pin, baud uint32) *MachineUART {
	uart.Configure(machine.UARTConfig{BaudRate: baud, TX: tx, RX: rx})
	return &MachineUART{uart: uart}
}

// Write sends p as-is.
func (m *MachineUART) Write(p []byte) (int, error) {
	return m.uart.Write(p)
}

// ReadLine polls for a CRLF-terminated line for up to timeout, stripping the
// terminator. It returns ("", false) on timeout with no complete line seen.
func (m *MachineUART) ReadLine(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for m.uart.Buffered() > 0 {
			b, err := m.uart.ReadByte()
			if err != nil {
				continue
			}
			m.buf = append(m.buf, b)
			if len(m.buf) >= 2 && m.buf[len(m.buf)-2] == '\r' && m.buf[len(m.buf)-1] == '\n' {
				line := string(m.buf[:len(m.buf)-2])
				m.buf = m.buf[:0]
				return line, true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "", false
}
