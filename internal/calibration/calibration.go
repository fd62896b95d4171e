// Package calibration drives the stepper engine through the opto-fork
// interrupt sequence that establishes (full calibration) or restores (half
// calibration) the carousel's absolute position, following the exact edge
// sequencing of the reference firmware's calibration_handler.
package calibration

import "github.com/pilldispenser/firmware/internal/stepper"

// Stepper is the subset of stepper.Engine the calibration state machines
// need. A narrow interface here, instead of a dependency on the concrete
// type, keeps this package host-testable with a fake.
type Stepper interface {
	SetDirection(clockwise bool)
	GetDirection() stepper.Direction
	SetSpeed(rpm float32)
	TurnSteps(stepCount uint16)
	StepCount() uint16
	ResetPosition()
	SetStepCounter(v uint16)
	SetStepMax(stepMax uint16)
	SetEdgeSteps(edgeSteps uint16)
	SetCalibrated(v bool)
	SetCalibrating(v bool)
}

func clockwise(d stepper.Direction) bool { return d == stepper.Clockwise }

const (
	rpmMin = 1.8
	rpmMax = 15.0

	// safeStepMax is set as an initial step_max large enough that a single
	// batch cannot overshoot the true revolution before an edge fires.
	safeStepMax = 6000
	probeBatch  = 6000
)

// phase is a calibration_handler state, named after the reference
// implementation's enum.
type phase int

const (
	phaseFirstEdge phase = iota
	phaseFirstEdgeVerify
	phaseSecondEdge
	phaseFirstEdgeAgain
	phaseFirstEdgeVerifyAgain
	phaseDone
)

// Full drives full calibration: two edge crossings locate both the gap
// width and the true revolution length. One instance is owned exclusively
// by whichever opto-fork IRQ context is actively calibrating; it is not
// safe for concurrent use.
type Full struct {
	stepper      Stepper
	phase        phase
	originalRPM  float32
	secondEdgeSt uint16
	done         bool
}

// NewFull starts a full calibration run: sets a safe step_max, spins up to
// RPM_MAX clockwise, and arms the opto-fork edge handler.
func NewFull(stepper Stepper, originalRPM float32) *Full {
	f := &Full{stepper: stepper, originalRPM: originalRPM, phase: phaseFirstEdge}
	stepper.SetCalibrated(false)
	stepper.SetCalibrating(true)
	stepper.SetStepMax(safeStepMax)
	stepper.SetDirection(true)
	stepper.SetSpeed(rpmMax)
	stepper.TurnSteps(probeBatch)
	return f
}

// Done reports whether calibration has completed and the stepper is ready
// for normal operation.
func (f *Full) Done() bool { return f.done }

// OnFallingEdge handles the opto-fork's falling-edge interrupt (entering
// the gap). The caller must have already called Stop on the stepper engine
// before invoking this, exactly as the reference ISR does.
func (f *Full) OnFallingEdge() {
	switch f.phase {
	case phaseFirstEdge:
		f.stepper.SetDirection(!clockwise(f.stepper.GetDirection()))
		f.stepper.SetSpeed(rpmMin)
		f.stepper.TurnSteps(probeBatch)
		f.phase = phaseFirstEdgeVerify
	case phaseSecondEdge:
		f.finish()
	case phaseFirstEdgeVerifyAgain:
		// The slow re-approach armed in OnRisingEdge's phaseFirstEdgeAgain
		// case reverses into the gap it just left, so it re-enters on a
		// falling edge, not a rising one.
		f.stepper.SetStepMax(f.stepper.StepCount())
		f.stepper.SetEdgeSteps(f.secondEdgeSt)
		f.stepper.SetStepCounter(f.secondEdgeSt / 2)
		f.stepper.SetDirection(!clockwise(f.stepper.GetDirection()))
		f.stepper.SetSpeed(f.originalRPM)
		f.stepper.TurnSteps(f.secondEdgeSt / 2)
		f.stepper.SetCalibrated(true)
		f.stepper.SetCalibrating(false)
		f.done = true
	default:
		// An edge fired out of the expected sequence; ignore it, matching
		// the reference handler's default no-op case.
	}
}

// OnRisingEdge handles the opto-fork's rising-edge interrupt (leaving the
// gap).
func (f *Full) OnRisingEdge() {
	switch f.phase {
	case phaseFirstEdgeVerify:
		f.stepper.ResetPosition()
		f.stepper.SetDirection(!clockwise(f.stepper.GetDirection()))
		f.stepper.TurnSteps(probeBatch)
		f.phase = phaseSecondEdge
	case phaseFirstEdgeAgain:
		// Mirrors phaseFirstEdge: reverse into the gap and slow down for a
		// precise re-approach to the edge we just crossed.
		f.stepper.SetDirection(!clockwise(f.stepper.GetDirection()))
		f.stepper.SetSpeed(rpmMin)
		f.stepper.TurnSteps(probeBatch)
		f.phase = phaseFirstEdgeVerifyAgain
	default:
	}
}

// finish records edge_steps after the second falling edge and starts the
// probe batch that locates the far gap edge. edge_steps is normalized to
// the clockwise sense: on the clockwise leg it's the step counter itself,
// on the anticlockwise leg it's measured from the other end of step_max.
func (f *Full) finish() {
	if clockwise(f.stepper.GetDirection()) {
		f.secondEdgeSt = f.stepper.StepCount()
	} else {
		f.secondEdgeSt = safeStepMax - f.stepper.StepCount()
	}
	f.stepper.SetSpeed(rpmMax)
	f.stepper.TurnSteps(probeBatch)
	f.phase = phaseFirstEdgeAgain
}

// Half drives half calibration: a single gap crossing re-zeros position
// using a step_max/edge_steps already known from a prior full calibration.
type Half struct {
	stepper        Stepper
	phase          halfPhase
	pillsDispensed int
	stepMax        uint16
	edgeSteps      uint16
	done           bool
}

type halfPhase int

const (
	halfPhaseApproach halfPhase = iota
	halfPhaseSeek
	halfPhaseDone
)

// NewHalf starts half calibration: reuses stepMax/edgeSteps from the last
// full calibration, rotates anticlockwise at RPM_MAX toward the gap, and
// arms the opto-fork edge handler. pillsDispensed advances the final
// position so the carousel lands on the next unserved chamber.
func NewHalf(stepper Stepper, stepMax, edgeSteps uint16, pillsDispensed int) *Half {
	h := &Half{stepper: stepper, stepMax: stepMax, edgeSteps: edgeSteps, pillsDispensed: pillsDispensed}
	stepper.SetCalibrated(false)
	stepper.SetCalibrating(true)
	stepper.SetStepMax(stepMax)
	stepper.SetEdgeSteps(edgeSteps)
	stepper.SetDirection(false)
	stepper.SetSpeed(rpmMax)
	stepper.TurnSteps(probeBatch)
	return h
}

// Done reports whether half calibration has completed.
func (h *Half) Done() bool { return h.done }

// OnFallingEdge reverses direction to clockwise and restarts the probe
// batch, matching the reference handler's single reversal.
func (h *Half) OnFallingEdge() {
	if h.phase != halfPhaseApproach {
		return
	}
	h.stepper.SetDirection(true)
	h.stepper.TurnSteps(probeBatch)
	h.phase = halfPhaseSeek
}

// OnRisingEdge seats the carousel at true home, optionally advancing to the
// next unserved chamber, and marks calibration complete.
func (h *Half) OnRisingEdge() {
	if h.phase != halfPhaseSeek {
		return
	}
	h.stepper.SetStepCounter(h.edgeSteps / 2)

	if h.pillsDispensed > 0 {
		target := uint16(h.pillsDispensed) * h.stepMax / 8
		advance := target - h.edgeSteps/2
		h.stepper.TurnSteps(advance)
	}

	h.stepper.SetCalibrated(true)
	h.stepper.SetCalibrating(false)
	h.done = true
	h.phase = halfPhaseDone
}
