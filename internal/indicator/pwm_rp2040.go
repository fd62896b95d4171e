//go:build rp2040
// +build rp2040

package indicator

import "machine"

// PWMChannel drives one indicator LED through the RP2040's PWM peripheral,
// matching the reference firmware's gpio_set_function(..., GPIO_FUNC_PWM)
// setup in led.c.
type PWMChannel struct {
	pwm *machine.PWM
	ch  uint8
	top uint32
}

// NewPWMChannel configures pin for PWM output and returns a Channel driving
// it at a fixed 1000-step duty resolution.
func NewPWMChannel(pwm *machine.PWM, pin machine.Pin) *PWMChannel {
	top, _ := pwm.Configure(machine.PWMConfig{Period: 1e9 / 1000})
	ch, _ := pwm.Channel(pin)
	return &PWMChannel{pwm: pwm, ch: ch, top: top}
}

// Set drives the LED at level out of 1000.
func (c *PWMChannel) Set(level uint16) {
	c.pwm.Set(c.ch, c.top*uint32(level)/1000)
}
