// Package stepper implements the micro-stepping driver: pre-computed half-step
// batches handed to a PIO co-processor, absolute position tracking modulo a
// calibrated revolution, and the mid-batch stop algorithm that keeps that
// position true across an abrupt halt.
package stepper

import (
	"github.com/orsinium-labs/tinymath"
)

// Direction is the rotation sense of the carousel.
type Direction bool

const (
	Clockwise     Direction = true
	Anticlockwise Direction = false
)

// Speed bounds, in RPM, per the reference hardware.
const (
	RPMMin = 1.8
	RPMMax = 15.0
)

// phaseTable holds the eight half-step winding patterns, in the order that
// gives clockwise rotation. Each bit maps to one of the four driver pins.
var phaseTable = [8]uint8{0x1, 0x3, 0x2, 0x6, 0x4, 0xC, 0x8, 0x9}

// PIOProgram is the co-processor the engine delegates pulse timing to: it
// walks phaseTable starting at a given index for a given number of
// half-steps, then raises a completion interrupt. Implementations live
// outside this package (a real RP2040 PIO state machine on hardware, a fake
// in tests).
type PIOProgram interface {
	// Enqueue starts (or queues, if already running) a batch: step_count
	// half-steps beginning at entryPhase.
	Enqueue(entryPhase uint8, stepCount uint16)
	// SetClkDiv reprograms the co-processor's clock divider so one half-step
	// takes periodMs milliseconds; the caller disables the state machine
	// around this call.
	SetClkDiv(periodMs float32)
	// SetEnabled enables or disables the state machine.
	SetEnabled(enabled bool)
	// CurrentPhase returns the physical winding state read back from the
	// live output pins, as a phaseTable index.
	CurrentPhase() uint8
	// StepsRemaining returns the half-steps left in the in-flight batch
	// (the batch the state machine is currently executing, not counting
	// anything still queued in its FIFO).
	StepsRemaining() uint16
	// QueuedBatches returns the step counts of batches queued but not yet
	// started, oldest first.
	QueuedBatches() []uint16
	// ClearQueue drops every queued-but-not-started batch and resets the
	// co-processor's program counter to 0.
	ClearQueue()
}

// Engine is one stepper motor driven through a PIOProgram.
type Engine struct {
	pio PIOProgram

	sequenceCounter uint8 // 0..7, index into phaseTable for the next phase
	stepCounter     int32 // 0 <= stepCounter < stepMax
	stepMax         uint16
	edgeSteps       uint16
	stepMemory      []int32 // signed step counts of queued-but-not-undone batches

	direction   Direction
	speedRPM    float32
	running     bool
	calibrated  bool
	calibrating bool
}

// New returns an Engine with its initial step_max set to the given safe
// upper bound (used during calibration before the true revolution length is
// known).
func New(pio PIOProgram, stepMax uint16) *Engine {
	return &Engine{
		pio:       pio,
		stepMax:   stepMax,
		direction: Clockwise,
		speedRPM:  RPMMin,
	}
}

func mod(x, m int32) int32 {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}

// halfStepPeriodMs converts a target RPM, clamped to [RPMMin, RPMMax], into
// the half-step period in milliseconds: 60_000/(rpm*4096). 4096 is the
// number of half-steps per revolution the reference hardware's gearing
// produces one full carousel turn in.
func halfStepPeriodMs(rpm float32) float32 {
	rpm = tinymath.Max(RPMMin, tinymath.Min(RPMMax, rpm))
	return 60_000.0 / (rpm * 4096.0)
}

// SetSpeed clamps rpm to [RPMMin, RPMMax] and reprograms the co-processor's
// clock divider from the resulting half-step period, briefly disabling it
// to do so.
func (e *Engine) SetSpeed(rpm float32) {
	rpm = tinymath.Max(RPMMin, tinymath.Min(RPMMax, rpm))
	e.speedRPM = rpm
	e.pio.SetEnabled(false)
	e.pio.SetClkDiv(halfStepPeriodMs(rpm))
	e.pio.SetEnabled(true)
}

// TurnSteps queues a batch of stepCount half-steps in the engine's current
// direction, updating sequenceCounter, stepCounter and stepMemory
// immediately (the co-processor's completion interrupt later clears
// running).
func (e *Engine) TurnSteps(stepCount uint16) {
	entryPhase := e.sequenceCounter
	e.pio.Enqueue(entryPhase, stepCount)
	e.running = true

	e.sequenceCounter = uint8(mod(int32(e.sequenceCounter)+int32(stepCount), 8))

	signed := int32(stepCount)
	if e.direction == Anticlockwise {
		signed = -signed
	}
	e.stepCounter = mod(e.stepCounter+signed, int32(e.stepMax))
	e.stepMemory = append(e.stepMemory, signed)
}

// TurnOneRevolution queues a batch covering the full calibrated revolution.
func (e *Engine) TurnOneRevolution() {
	e.TurnSteps(e.stepMax)
}

// OnBatchComplete is called by the completion interrupt when the
// co-processor finishes its in-flight batch with nothing left queued.
func (e *Engine) OnBatchComplete() {
	e.running = false
	e.stepMemory = nil // nothing is in flight or queued any more
}

// Poll checks the co-processor for a finished batch with nothing queued
// behind it, calling OnBatchComplete if so. Hardware here has no completion
// interrupt wired, so the main loop calls Poll every iteration instead —
// spec's own "never sleeping, always polling is_running" rule applied one
// level down.
func (e *Engine) Poll() {
	if e.running && e.pio.StepsRemaining() == 0 && len(e.pio.QueuedBatches()) == 0 {
		e.OnBatchComplete()
	}
}

// Stop halts the co-processor immediately, undoes the position contribution
// of every step not actually taken (the in-flight batch's remainder, plus
// every batch still queued), and leaves the state machine idle with its
// program counter at 0. This is the subtle path: step_counter must reflect
// the true physical position afterward, because calibration and recovery
// rely on it.
func (e *Engine) Stop() {
	e.pio.SetEnabled(false)

	current := e.pio.CurrentPhase()
	step := int32(1)
	if e.direction == Anticlockwise {
		step = -1
	}
	e.sequenceCounter = uint8(mod(int32(current)+step, 8))

	stepsLeft := int32(e.pio.StepsRemaining())
	e.stepCounter = mod(e.stepCounter-step*stepsLeft, int32(e.stepMax))

	// Every batch still in the PIO's queue never took a single physical
	// step; undo each one's contribution to stepCounter. stepMemory[0] is
	// the in-flight batch, already accounted for via stepsLeft above.
	for i := len(e.stepMemory) - 1; i >= 1; i-- {
		e.stepCounter = mod(e.stepCounter-e.stepMemory[i], int32(e.stepMax))
	}
	e.stepMemory = nil

	e.pio.ClearQueue()
	e.pio.SetEnabled(true)
	e.running = false
}

// SetDirection stops the motor if running, and recomputes sequenceCounter
// so the next phase on the new direction immediately follows the current
// physical winding state.
func (e *Engine) SetDirection(clockwise bool) {
	want := Clockwise
	if !clockwise {
		want = Anticlockwise
	}
	if e.direction == want {
		return
	}
	if e.running {
		e.Stop()
	}
	e.direction = want
}

// ResetPosition forces step_counter to zero, used by calibration once the
// gap center has been located.
func (e *Engine) ResetPosition() {
	e.stepCounter = 0
}

// SetStepMax sets the calibrated revolution length.
func (e *Engine) SetStepMax(stepMax uint16) {
	e.stepMax = stepMax
}

// SetEdgeSteps records the opto-fork gap width measured by calibration.
func (e *Engine) SetEdgeSteps(edgeSteps uint16) {
	e.edgeSteps = edgeSteps
}

// SetStepCounter forces the absolute position, used by calibration to seat
// the carousel at true home.
func (e *Engine) SetStepCounter(v uint16) {
	e.stepCounter = mod(int32(v), int32(e.stepMax))
}

// SetCalibrated marks or clears the calibrated flag.
func (e *Engine) SetCalibrated(v bool) { e.calibrated = v }

// SetCalibrating marks or clears the calibrating flag.
func (e *Engine) SetCalibrating(v bool) { e.calibrating = v }

// IsRunning reports whether a batch is queued or in flight.
func (e *Engine) IsRunning() bool { return e.running }

// IsCalibrated reports whether a full or half calibration has completed.
func (e *Engine) IsCalibrated() bool { return e.calibrated }

// IsCalibrating reports whether a calibration is in progress.
func (e *Engine) IsCalibrating() bool { return e.calibrating }

// MaxSteps returns the calibrated revolution length.
func (e *Engine) MaxSteps() uint16 { return e.stepMax }

// EdgeSteps returns the opto-fork gap width in steps.
func (e *Engine) EdgeSteps() uint16 { return e.edgeSteps }

// StepCount returns the current absolute position, 0 <= n < MaxSteps().
func (e *Engine) StepCount() uint16 { return uint16(e.stepCounter) }

// GetDirection returns the current rotation direction.
func (e *Engine) GetDirection() Direction { return e.direction }

// SequenceCounter returns the index into the phase table the next queued
// batch will begin at. Exported for tests verifying the invariant in spec
// §8 ("Stepper position").
func (e *Engine) SequenceCounter() uint8 { return e.sequenceCounter }

// Phase returns the winding bit pattern for a phase table index.
func Phase(index uint8) uint8 { return phaseTable[index%8] }
