// Package indicator drives the three-LED PWM indicator: a toggle-all
// pattern for wait/error states and a one-hot chase for calibration/run
// states, following the reference firmware's led_*_toggle functions.
package indicator

import "time"

// Pattern names the animation the controller's current state calls for.
type Pattern int

const (
	// Steady lights all three LEDs with no animation; used once
	// the dispenser is idle and stationary between dispenses.
	Steady Pattern = iota
	// Wait toggles all three LEDs together every 500ms, shown in CALIBRATE.
	Wait
	// Calibration chases a single lit LED across the three every 500ms.
	Calibration
	// Run chases a single lit LED across the three every 200ms.
	Run
	// Error toggles all three LEDs together every 200ms.
	Error
)

const brightness = 100 // PWM duty level, out of a 1000-wide wrap

var (
	waitToggleDelay        = 500 * time.Millisecond
	calibrationToggleDelay = 500 * time.Millisecond
	runToggleDelay         = 200 * time.Millisecond
	errorToggleDelay       = 200 * time.Millisecond
)

// Channel is a single PWM-capable LED output. Implementations live outside
// this package (a real machine.PWM channel on hardware, a fake in tests).
type Channel interface {
	Set(level uint16)
}

// Indicator drives three Channels through whichever Pattern the controller
// selects, tracking animation phase and the last time it advanced.
type Indicator struct {
	leds    [3]Channel
	on      bool
	stage   int
	lastRun time.Time
}

// New returns an Indicator driving the three given channels, in carousel
// display order.
func New(led0, led1, led2 Channel) *Indicator {
	return &Indicator{leds: [3]Channel{led0, led1, led2}}
}

func (i *Indicator) allOff() {
	for _, led := range i.leds {
		led.Set(0)
	}
	i.on = false
}

func (i *Indicator) allOn() {
	for _, led := range i.leds {
		led.Set(brightness)
	}
	i.on = true
}

func (i *Indicator) toggle() {
	if i.on {
		i.allOff()
	} else {
		i.allOn()
	}
}

func (i *Indicator) chase() {
	for n, led := range i.leds {
		if n == i.stage {
			led.Set(brightness)
		} else {
			led.Set(0)
		}
	}
	i.stage = (i.stage + 1) % 3
}

// due reports whether at least delay has elapsed since the last animation
// step, and if so records now as the new baseline.
func (i *Indicator) due(now time.Time, delay time.Duration) bool {
	if now.Sub(i.lastRun) < delay {
		return false
	}
	i.lastRun = now
	return true
}

// Step advances the animation for the given pattern by one tick, using now
// as the current time. Steady turns all LEDs on and resets animation phase.
func (i *Indicator) Step(pattern Pattern, now time.Time) {
	switch pattern {
	case Steady:
		if !i.on {
			i.allOn()
		}
		i.stage = 0
	case Wait:
		if i.due(now, waitToggleDelay) {
			i.toggle()
		}
	case Calibration:
		if i.due(now, calibrationToggleDelay) {
			i.chase()
		}
	case Run:
		if i.due(now, runToggleDelay) {
			i.chase()
		}
	case Error:
		if i.due(now, errorToggleDelay) {
			i.toggle()
		}
	}
}
