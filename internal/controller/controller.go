// Package controller implements the top-level dispenser state machine: boot
// recovery, calibration dispatch, and the dispense/confirm/error-blink loop,
// following the reference firmware's reboot_sequence and main-loop dispatch.
package controller

import (
	"time"

	"github.com/pilldispenser/firmware/internal/codec"
	"github.com/pilldispenser/firmware/internal/indicator"
	"github.com/pilldispenser/firmware/internal/logstore"
	"github.com/pilldispenser/firmware/internal/messages"
	"github.com/pilldispenser/firmware/internal/statusstore"
)

// Tunables, named after spec §4.6.
const (
	MaxPills              = 7
	MaxTurns              = 8
	PillDropDelay         = 5000 * time.Millisecond
	ErrorBlinkTimes       = 5
	MinPlausibleStepCount = 4000
	MaxPlausibleStepCount = 5500
)

// PillNotDroppedDelay computes the maximum time a pill may take to fall
// after its chamber reaches the chute, for a given motor speed in RPM.
func PillNotDroppedDelay(rpm float32) time.Duration {
	ms := (60000.0/rpm)/8.0 + 100.0
	return time.Duration(ms) * time.Millisecond
}

// State is one of the five dispenser controller states.
type State int

const (
	StateCalibrate State = iota
	StateWaitForDispense
	StateDispense
	StateCheckIfDispensed
	StatePillNotDropped
)

// Stepper is the subset of the stepper engine the controller drives
// directly (calibration itself is delegated to the calibration package).
type Stepper interface {
	IsRunning() bool
	TurnSteps(stepCount uint16)
	MaxSteps() uint16
	EdgeSteps() uint16
}

// Calibrator starts a full calibration run when the operator requests one
// from CALIBRATE. The controller does not drive calibration step by step —
// that belongs to the calibration package wired to the opto-fork IRQ — it
// only triggers the start and polls IsRunning() on the shared stepper.
type Calibrator interface {
	StartFull()
	// StartHalf starts a half calibration run, re-zeroing position against
	// the opto-fork without re-measuring step_max/edge_steps, and advancing
	// to the chamber after pillsDropped once seated.
	StartHalf(pillsDropped int)
}

// Shipper is the best-effort LoRa uplink. Send reports nothing back, so a
// failed send never affects the controller.
type Shipper interface {
	Send(text string)
}

// DropSensor reports and clears the latched piezo drop flag, so the
// controller counts at most one drop per observation.
type DropSensor interface {
	Take() bool
}

// Clock abstracts time.Now so tests can control elapsed durations.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock backed by time.Now.
var SystemClock Clock = systemClock{}

// Controller holds the live dispenser state machine.
type Controller struct {
	stepper    Stepper
	calibrator Calibrator
	logs       *logstore.Store
	status     *statusstore.Store
	shipper    Shipper
	clock      Clock

	state         State
	rpm           float32
	device        codec.DeviceStatus
	pillsDropped  int
	dropSensor    DropSensor
	calibReported bool
	dropStarted   time.Time
	blinkCount    int
	blinkStarted  time.Time
	lastTick      time.Time
}

// New constructs a Controller wired to its collaborators. device is the
// DeviceStatus recovered (or defaulted) by Recover.
func New(stepper Stepper, calibrator Calibrator, logs *logstore.Store, status *statusstore.Store, shipper Shipper, clock Clock, device codec.DeviceStatus, dropSensor DropSensor, rpm float32) *Controller {
	return &Controller{
		stepper:    stepper,
		calibrator: calibrator,
		logs:       logs,
		status:     status,
		shipper:    shipper,
		clock:      clock,
		device:     device,
		dropSensor: dropSensor,
		rpm:        rpm,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// log appends a log entry and best-effort-ships it over LoRa, matching the
// reference firmware's "every pushed log is also shipped" policy.
func (c *Controller) log(code messages.Code, now time.Time) {
	tMs := uint32(now.UnixMilli())
	_ = c.logs.Append(&c.device, code, tMs)
	c.shipper.Send(code.String())
}

func (c *Controller) persist() {
	_ = c.status.Update(c.device)
}

// recoveryActivityLog returns the log code identifying the activity in
// progress at the last shutdown, per spec §4.6 step 4.
func recoveryActivityLog(device codec.DeviceStatus) messages.Code {
	switch device.RebootStatusCode {
	case messages.ActivityIdle:
		return messages.IDLE
	case messages.ActivityDispensing:
		return messages.DispenseErrorCode(int(device.PillDispenseState))
	case messages.ActivityFullCalibration:
		return messages.FullCalibrationError
	case messages.ActivityHalfCalibration:
		return messages.HalfCalibrationError
	default:
		return messages.Gremlins
	}
}

// Recover runs the boot recovery protocol (spec §4.6 steps 1-7) and returns
// the Controller ready to enter its main loop, with its initial state
// already chosen (see State). watchdogCaused reports whether the reboot was watchdog-forced;
// pillProvenDropped reports whether corroborating evidence (e.g. a
// persisted PILL_DISPENSED log after the last DISPENSING status write)
// shows the interrupted pill actually fell.
func Recover(stepper Stepper, calibrator Calibrator, logs *logstore.Store, status *statusstore.Store, shipper Shipper, clock Clock, dropSensor DropSensor, rpm float32, watchdogCaused, pillProvenDropped bool) *Controller {
	now := clock.Now()

	device, ok := status.Read()
	idx, _ := logs.FindFirstFree()
	device.UnusedLogIndex = idx

	c := New(stepper, calibrator, logs, status, shipper, clock, device, dropSensor, rpm)

	if !ok {
		c.log(messages.Gremlins, now)
	}

	if watchdogCaused {
		c.log(messages.WatchdogReboot, now)
	}

	// The activity-in-progress log only means something when the status
	// record itself was read successfully; a CRC failure already logged
	// GREMLINS and zeroed every field, so there is no real activity to name.
	if ok {
		c.log(recoveryActivityLog(c.device), now)
	}

	if c.device.RebootStatusCode == messages.ActivityDispensing && !pillProvenDropped {
		c.device.PillDispenseState++
	}

	switch {
	case c.device.PillDispenseState == 0 || int(c.device.PillDispenseState) >= MaxPills:
		c.state = StateCalibrate
	case int(c.device.PrevCalibStepCount) >= MinPlausibleStepCount && int(c.device.PrevCalibStepCount) <= MaxPlausibleStepCount:
		c.pillsDropped = int(c.device.PillDispenseState)
		c.calibrator.StartHalf(c.pillsDropped)
		c.state = StateWaitForDispense
	default:
		c.state = StateCalibrate
	}

	c.log(messages.BootFinished, now)
	c.persist()
	return c
}

// Indicator returns the LED animation pattern for the controller's current
// state, per spec §6's user-interface table.
func (c *Controller) Indicator() indicator.Pattern {
	switch c.state {
	case StateCalibrate:
		return indicator.Wait
	case StateWaitForDispense:
		if c.stepper.IsRunning() {
			return indicator.Calibration
		}
		return indicator.Steady
	case StateDispense:
		return indicator.Steady
	case StateCheckIfDispensed:
		if c.stepper.IsRunning() {
			return indicator.Run
		}
		return indicator.Steady
	case StatePillNotDropped:
		return indicator.Error
	default:
		return indicator.Wait
	}
}

// Tick advances the state machine by one main-loop iteration. calibBtn and
// dispenseBtn are the debounced button levels observed this tick.
func (c *Controller) Tick(calibBtn, dispenseBtn bool) {
	now := c.clock.Now()
	c.lastTick = now

	switch c.state {
	case StateCalibrate:
		c.tickCalibrate(calibBtn, now)
	case StateWaitForDispense:
		c.tickWaitForDispense(dispenseBtn, now)
	case StateDispense:
		c.tickDispense(now)
	case StateCheckIfDispensed:
		c.tickCheckIfDispensed(now)
	case StatePillNotDropped:
		c.tickPillNotDropped(now)
	default:
		c.state = StateCalibrate
	}
}

func (c *Controller) tickCalibrate(calibBtn bool, now time.Time) {
	if !calibBtn {
		return
	}
	c.calibrator.StartFull()
	c.device.RebootStatusCode = messages.ActivityFullCalibration
	c.device.PillDispenseState = 0
	c.log(messages.FullCalibration, now)
	c.persist()
	c.pillsDropped = 0
	c.calibReported = false
	c.state = StateWaitForDispense
}

func (c *Controller) tickWaitForDispense(dispenseBtn bool, now time.Time) {
	if c.stepper.IsRunning() {
		return
	}
	if !c.calibReported {
		c.device.RebootStatusCode = messages.ActivityIdle
		c.device.PrevCalibStepCount = c.stepper.MaxSteps()
		c.device.PrevCalibEdgeCount = c.stepper.EdgeSteps()
		c.log(messages.CalibrationFinished, now)
		c.persist()
		c.calibReported = true
	}
	if dispenseBtn {
		c.log(messages.ButtonPress, now)
		c.state = StateDispense
	}
}

func (c *Controller) tickDispense(now time.Time) {
	if c.pillsDropped >= MaxPills {
		c.log(messages.DispenserEmpty, now)
		c.state = StateCalibrate
		return
	}
	if c.dropStarted.IsZero() {
		c.dropStarted = now
	}
	if now.Sub(c.dropStarted) < PillDropDelay {
		return
	}
	c.stepper.TurnSteps(c.stepper.MaxSteps() / MaxTurns)
	c.dropStarted = time.Time{}
	c.dropSensor.Take()

	c.device.RebootStatusCode = messages.ActivityDispensing
	c.device.PillDispenseState = uint8(c.pillsDropped)
	c.log(messages.DispenseCode(c.pillsDropped), now)
	c.persist()
	c.state = StateCheckIfDispensed
}

func (c *Controller) tickCheckIfDispensed(now time.Time) {
	if c.stepper.IsRunning() {
		return
	}
	if c.dropSensor.Take() {
		c.pillsDropped++
		c.device.RebootStatusCode = messages.ActivityIdle
		c.device.PillDispenseState = uint8(c.pillsDropped)
		c.log(messages.PillDispensed, now)
		c.persist()
		c.state = StateDispense
		return
	}

	if c.dropStarted.IsZero() {
		c.dropStarted = now
		return
	}
	if now.Sub(c.dropStarted) < PillNotDroppedDelay(c.rpm) {
		return
	}
	c.dropStarted = time.Time{}
	c.pillsDropped++
	c.device.RebootStatusCode = messages.ActivityIdle
	c.device.PillDispenseState = uint8(c.pillsDropped)
	c.log(messages.PillError, now)
	c.persist()
	c.blinkCount = 0
	c.blinkStarted = time.Time{}
	c.state = StatePillNotDropped
}

// errorToggleDelay matches indicator.Error's toggle cadence; PILL_NOT_DROPPED
// counts actual LED toggles, not main-loop ticks, so it must track the same
// cadence the indicator animates at.
const errorToggleDelay = 200 * time.Millisecond

func (c *Controller) tickPillNotDropped(now time.Time) {
	if c.blinkStarted.IsZero() {
		c.blinkStarted = now
	}
	if now.Sub(c.blinkStarted) < errorToggleDelay {
		return
	}
	c.blinkStarted = now
	c.blinkCount++
	if c.blinkCount >= 2*ErrorBlinkTimes {
		c.blinkCount = 0
		c.state = StateDispense
	}
}
