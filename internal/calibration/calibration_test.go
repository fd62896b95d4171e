package calibration

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/pilldispenser/firmware/internal/stepper"
)

// fakeStepper is a host-testable stand-in for *stepper.Engine, recording
// every call the calibration state machines make so tests can assert on
// the exact sequence without a real PIO co-processor.
type fakeStepper struct {
	direction   stepper.Direction
	speed       float32
	stepCount   uint16
	stepMax     uint16
	edgeSteps   uint16
	calibrated  bool
	calibrating bool
	turns       []uint16
}

func newFakeStepper() *fakeStepper {
	return &fakeStepper{direction: stepper.Clockwise}
}

func (f *fakeStepper) SetDirection(clockwise bool) {
	if clockwise {
		f.direction = stepper.Clockwise
	} else {
		f.direction = stepper.Anticlockwise
	}
}
func (f *fakeStepper) GetDirection() stepper.Direction { return f.direction }
func (f *fakeStepper) SetSpeed(rpm float32)             { f.speed = rpm }
func (f *fakeStepper) TurnSteps(stepCount uint16) {
	f.turns = append(f.turns, stepCount)
	f.stepCount += stepCount
}
func (f *fakeStepper) StepCount() uint16             { return f.stepCount }
func (f *fakeStepper) ResetPosition()                { f.stepCount = 0 }
func (f *fakeStepper) SetStepCounter(v uint16)       { f.stepCount = v }
func (f *fakeStepper) SetStepMax(stepMax uint16)     { f.stepMax = stepMax }
func (f *fakeStepper) SetEdgeSteps(edgeSteps uint16) { f.edgeSteps = edgeSteps }
func (f *fakeStepper) SetCalibrated(v bool)          { f.calibrated = v }
func (f *fakeStepper) SetCalibrating(v bool)         { f.calibrating = v }

func Test_Full_startsClockwiseAtMaxSpeed(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	NewFull(fs, 5.0)

	c.Assert(fs.calibrating, qt.IsTrue)
	c.Assert(fs.calibrated, qt.IsFalse)
	c.Assert(fs.direction, qt.Equals, stepper.Clockwise)
	c.Assert(fs.speed, qt.Equals, float32(rpmMax))
	c.Assert(fs.stepMax, qt.Equals, uint16(safeStepMax))
	c.Assert(fs.turns, qt.HasLen, 1)
}

// Test_Full_edgeSequence_completesAndRestoresSpeed drives the full
// calibration FSM through the alternating falling/rising opto-fork
// sequence a real carousel produces: entering and leaving the gap reverses
// direction each time, so the same physical pin can never fire two rising
// (or two falling) edges back to back.
func Test_Full_edgeSequence_completesAndRestoresSpeed(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	f := NewFull(fs, 7.5)

	// First falling edge: enters the gap, reverses, slows to RPM_MIN.
	f.OnFallingEdge()
	c.Assert(f.Done(), qt.IsFalse)
	c.Assert(fs.direction, qt.Equals, stepper.Anticlockwise)
	c.Assert(fs.speed, qt.Equals, float32(rpmMin))

	// First rising edge: leaves the gap, position zeroed, reverses again.
	fs.stepCount = 42 // simulate steps taken while crossing the gap
	f.OnRisingEdge()
	c.Assert(fs.direction, qt.Equals, stepper.Clockwise)

	// Second falling edge (almost a full revolution later): records
	// edge_steps on the clockwise leg, ramps back to RPM_MAX.
	fs.stepCount = 120
	f.OnFallingEdge()
	c.Assert(f.Done(), qt.IsFalse)
	c.Assert(fs.speed, qt.Equals, float32(rpmMax))

	// Rising edge leaving the gap again: reverses once more and slows down
	// for the precise re-approach, mirroring the very first edge.
	fs.stepCount = 4300
	f.OnRisingEdge()
	c.Assert(f.Done(), qt.IsFalse)
	c.Assert(fs.direction, qt.Equals, stepper.Anticlockwise)
	c.Assert(fs.speed, qt.Equals, float32(rpmMin))

	// Final falling edge: re-entering the gap from the reversed approach.
	// Computes step_max/edge_steps/step_counter, restores the caller's
	// original speed, marks calibrated.
	fs.stepCount = 4312
	f.OnFallingEdge()

	c.Assert(f.Done(), qt.IsTrue)
	c.Assert(fs.calibrated, qt.IsTrue)
	c.Assert(fs.calibrating, qt.IsFalse)
	c.Assert(fs.stepMax, qt.Equals, uint16(4312))
	c.Assert(fs.edgeSteps, qt.Equals, uint16(120))
	c.Assert(fs.speed, qt.Equals, float32(7.5))
}

// Test_Full_secondEdge_anticlockwise_normalizesEdgeSteps covers the branch
// of finish() that fires when the second gap crossing happens on the
// anticlockwise leg: edge_steps must be measured from the far end of
// step_max, not read off the raw step counter.
func Test_Full_secondEdge_anticlockwise_normalizesEdgeSteps(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	f := NewFull(fs, 7.5)

	f.OnFallingEdge() // phaseFirstEdge -> reverses to Anticlockwise

	fs.stepCount = 42
	f.OnRisingEdge() // phaseFirstEdgeVerify -> reverses back to Clockwise

	// Force the second edge to land while still anticlockwise, as if the
	// carousel overshot back past the gap before the forward leg resumed.
	fs.direction = stepper.Anticlockwise
	fs.stepCount = 5800
	f.OnFallingEdge() // phaseSecondEdge -> finish()

	c.Assert(fs.edgeSteps, qt.Equals, uint16(0)) // not yet captured into the stepper
	f.OnRisingEdge() // phaseFirstEdgeAgain
	fs.stepCount = 4312
	f.OnFallingEdge() // phaseFirstEdgeVerifyAgain

	c.Assert(f.Done(), qt.IsTrue)
	c.Assert(fs.edgeSteps, qt.Equals, uint16(safeStepMax-5800))
}

func Test_Half_seeksGapThenSeatsAtEdgeCenter(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	h := NewHalf(fs, 4300, 312, 0)

	c.Assert(fs.direction, qt.Equals, stepper.Anticlockwise)
	c.Assert(fs.calibrating, qt.IsTrue)

	h.OnFallingEdge()
	c.Assert(fs.direction, qt.Equals, stepper.Clockwise)
	c.Assert(h.Done(), qt.IsFalse)

	h.OnRisingEdge()
	c.Assert(h.Done(), qt.IsTrue)
	c.Assert(fs.calibrated, qt.IsTrue)
	c.Assert(fs.stepCount, qt.Equals, uint16(156))
}

func Test_Half_withPillsDispensed_advancesToNextChamber(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	h := NewHalf(fs, 4300, 312, 3)

	h.OnFallingEdge()
	h.OnRisingEdge()

	c.Assert(h.Done(), qt.IsTrue)
	// step_counter lands at 3*step_max/8, matching the reference's "next
	// unserved chamber under the chute" placement.
	want := uint16(3*4300/8 - 312/2 + 312/2)
	c.Assert(fs.stepCount, qt.Equals, want)
}

func Test_Half_ignoresEdgesOutOfSequence(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStepper()
	h := NewHalf(fs, 4300, 312, 0)

	h.OnRisingEdge() // premature: still in the approach phase
	c.Assert(h.Done(), qt.IsFalse)
	c.Assert(fs.calibrated, qt.IsFalse)
}
