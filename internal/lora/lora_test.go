package lora

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

// fakeUART is a host-testable stand-in for a LoRa module's UART, queuing
// scripted responses (or timeouts, represented by an empty string) per
// write, in the mock-peripheral idiom of sharpmem_test.go's mockBus.
type fakeUART struct {
	written   []string
	responses []string // "" means "time out"
	next      int
}

func (u *fakeUART) Write(p []byte) (int, error) {
	u.written = append(u.written, string(p))
	return len(p), nil
}

func (u *fakeUART) ReadLine(timeout time.Duration) (string, bool) {
	if u.next >= len(u.responses) {
		return "", false
	}
	resp := u.responses[u.next]
	u.next++
	if resp == "" {
		return "", false
	}
	return resp, true
}

func Test_New_joinSucceeds_marksAvailable(t *testing.T) {
	c := qt.New(t)
	uart := &fakeUART{responses: []string{"OK", "OK", "OK", "OK", "OK", "+JOIN: Done"}}

	s := New(uart, Config{AppKey: "1AEF109988E296E7D46DDB456C77B208"})

	c.Assert(s.Available(), qt.IsTrue)
	c.Assert(uart.written, qt.HasLen, 6)
	c.Assert(uart.written[0], qt.Equals, "AT\r\n")
	c.Assert(uart.written[2], qt.Contains, "1AEF109988E296E7D46DDB456C77B208")
}

func Test_New_joinFails_marksUnavailable(t *testing.T) {
	c := qt.New(t)
	// AT succeeds, AT+MODE never gets a response within maxTries.
	uart := &fakeUART{responses: []string{"OK", "", "", "", "", ""}}

	s := New(uart, Config{AppKey: "deadbeef"})

	c.Assert(s.Available(), qt.IsFalse)
}

func Test_Send_framesMessage(t *testing.T) {
	c := qt.New(t)
	uart := &fakeUART{responses: []string{"OK", "OK", "OK", "OK", "OK", "OK", "+MSG: Start"}}

	s := New(uart, Config{AppKey: "k"})
	c.Assert(s.Available(), qt.IsTrue)

	s.Send("pill dispensed")
	c.Assert(uart.written[len(uart.written)-1], qt.Equals, `AT+MSG="pill dispensed"` + "\r\n")
}

func Test_Send_whenUnavailable_isNoOp(t *testing.T) {
	c := qt.New(t)
	uart := &fakeUART{responses: []string{"", "", "", "", ""}}

	s := New(uart, Config{AppKey: "k"})
	c.Assert(s.Available(), qt.IsFalse)

	s.Send("should not send")
	c.Assert(uart.written, qt.HasLen, 5) // only the failed AT retries
}

func Test_Send_failureMarksUnavailable(t *testing.T) {
	c := qt.New(t)
	uart := &fakeUART{responses: []string{
		"OK", "OK", "OK", "OK", "OK", "OK", // join succeeds (6 commands)
		"", "", "", "", "", // send retries exhausted
	}}

	s := New(uart, Config{AppKey: "k"})
	c.Assert(s.Available(), qt.IsTrue)

	s.Send("x")
	c.Assert(s.Available(), qt.IsFalse)
}
