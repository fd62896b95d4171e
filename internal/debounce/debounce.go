// Package debounce glues button and piezo GPIO interrupts to the main
// loop. Per the "global IRQ-set flags" redesign, each signal is a plain
// atomic flag the main loop polls and clears, rather than the reference
// firmware's single file-scope callback pointer shared across every pin.
package debounce

import (
	"sync/atomic"
	"time"
)

// Delay is the minimum gap between accepted edges on a debounced input.
const Delay = 20 * time.Millisecond

// Button tracks a debounced GPIO level, set from an interrupt context and
// read from the main loop.
type Button struct {
	pressed  atomic.Bool
	lastEdge time.Time
}

// OnEdge is called from the pin's interrupt handler with the new level and
// the time of the edge. Edges closer than Delay to the previous accepted
// edge are dropped.
func (b *Button) OnEdge(level bool, now time.Time) {
	if !b.lastEdge.IsZero() && now.Sub(b.lastEdge) < Delay {
		return
	}
	b.lastEdge = now
	b.pressed.Store(level)
}

// Pressed reports the button's current debounced level.
func (b *Button) Pressed() bool {
	return b.pressed.Load()
}

// DropSensor latches a single piezo falling-edge event until the main loop
// observes and clears it. Not debounced: the reference firmware treats
// every falling edge as a genuine drop.
type DropSensor struct {
	dropped atomic.Bool
}

// OnFallingEdge is called from the piezo pin's interrupt handler.
func (d *DropSensor) OnFallingEdge() {
	d.dropped.Store(true)
}

// Take reports and clears the latched drop flag, so at most one drop is
// counted per observation.
func (d *DropSensor) Take() bool {
	return d.dropped.Swap(false)
}
