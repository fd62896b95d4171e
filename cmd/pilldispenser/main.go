// Command pilldispenser is the RP2040 firmware entry point: it wires the
// EEPROM, stepper, calibration, LoRa, and indicator packages into a
// controller.Controller and drives its main loop, following the
// configure-bus -> configure-pins -> construct-driver -> inject wiring shape
// of examples/tmc5160/main.go and examples/tmc2209/main.go.

//go:build rp2040
// +build rp2040

package main

import (
	"device/rp"
	"machine"
	"time"

	pio "github.com/soypat/rp2040-pio"

	"github.com/pilldispenser/firmware/internal/boardconfig"
	"github.com/pilldispenser/firmware/internal/calibration"
	"github.com/pilldispenser/firmware/internal/controller"
	"github.com/pilldispenser/firmware/internal/debounce"
	"github.com/pilldispenser/firmware/internal/eeprom"
	"github.com/pilldispenser/firmware/internal/indicator"
	"github.com/pilldispenser/firmware/internal/logstore"
	"github.com/pilldispenser/firmware/internal/lora"
	"github.com/pilldispenser/firmware/internal/statusstore"
	"github.com/pilldispenser/firmware/internal/stepper"
)

// appKey is the device's LoRaWAN OTAA application key, provisioned per unit
// at flash time.
const appKey = "1AEF109988E296E7D46DDB456C77B208"

// calibRunner dispatches opto-fork edges to whichever calibration pass (full
// or half) is currently active; once that pass is done, further edges are
// ignored. It is the only thing touched from interrupt context besides the
// debounce package.
type calibRunner struct {
	stepper *stepper.Engine
	full    *calibration.Full
	half    *calibration.Half
}

func (r *calibRunner) StartFull() {
	r.full = calibration.NewFull(r.stepper, boardconfig.MotorSpeedRPM)
	r.half = nil
}

// StartHalf starts a half calibration run, re-zeroing position against the
// opto-fork without re-measuring step_max/edge_steps.
func (r *calibRunner) StartHalf(pillsDropped int) {
	r.half = calibration.NewHalf(r.stepper, r.stepper.MaxSteps(), r.stepper.EdgeSteps(), pillsDropped)
	r.full = nil
}

func (r *calibRunner) onFallingEdge() {
	switch {
	case r.full != nil && !r.full.Done():
		r.full.OnFallingEdge()
	case r.half != nil && !r.half.Done():
		r.half.OnFallingEdge()
	}
}

func (r *calibRunner) onRisingEdge() {
	switch {
	case r.full != nil && !r.full.Done():
		r.full.OnRisingEdge()
	case r.half != nil && !r.half.Done():
		r.half.OnRisingEdge()
	}
}

func main() {
	time.Sleep(2 * time.Second) // let USB/stdio settle, as main.c's stdio_init_all callers expect

	// EEPROM over I2C.
	i2c := machine.I2C0
	i2c.Configure(machine.I2CConfig{
		Frequency: boardconfig.EEPROMBaudHz,
		SDA:       machine.Pin(boardconfig.EEPROMSDAPin),
		SCL:       machine.Pin(boardconfig.EEPROMSCLPin),
	})
	dev := eeprom.NewI2CDevice(i2c, 5*time.Millisecond)
	logs := logstore.New(dev, boardconfig.LogBaseAddr, boardconfig.MaxLogs)
	status := statusstore.New(dev, boardconfig.StatusAddr)

	// Stepper, PIO-backed.
	pins := [4]machine.Pin{
		machine.Pin(boardconfig.StepperBluePin),
		machine.Pin(boardconfig.StepperPinkPin),
		machine.Pin(boardconfig.StepperYellowPin),
		machine.Pin(boardconfig.StepperOrangePin),
	}
	pioProg := stepper.NewRP2040Program(pio.PIO0, 0, pins)
	engine := stepper.New(pioProg, boardconfig.StepperHalfStepMax)

	// LoRa uplink.
	uart := lora.NewMachineUART(machine.UART1, machine.Pin(boardconfig.LoRaUARTTXPin), machine.Pin(boardconfig.LoRaUARTRXPin), boardconfig.LoRaBaudHz)
	shipper := lora.New(uart, lora.Config{AppKey: appKey})

	// Indicator LEDs.
	led := indicator.New(
		indicator.NewPWMChannel(machine.PWM0, machine.Pin(boardconfig.LED1Pin)),
		indicator.NewPWMChannel(machine.PWM1, machine.Pin(boardconfig.LED2Pin)),
		indicator.NewPWMChannel(machine.PWM2, machine.Pin(boardconfig.LED3Pin)),
	)

	// Debounced buttons and un-debounced drop sensor.
	calibBtn := &debounce.Button{}
	dispenseBtn := &debounce.Button{}
	dropSensor := &debounce.DropSensor{}

	calibPin := machine.Pin(boardconfig.CalibrateButtonPin)
	calibPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	calibPin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		calibBtn.OnEdge(p.Get(), time.Now())
	})

	dispensePin := machine.Pin(boardconfig.DispenseButtonPin)
	dispensePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	dispensePin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		dispenseBtn.OnEdge(p.Get(), time.Now())
	})

	piezoPin := machine.Pin(boardconfig.PiezoDropSensorPin)
	piezoPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	piezoPin.SetInterrupt(machine.PinFalling, func(p machine.Pin) {
		dropSensor.OnFallingEdge()
	})

	optoPin := machine.Pin(boardconfig.StepperOptoForkPin)
	optoPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	runner := &calibRunner{stepper: engine}
	optoPin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		if p.Get() {
			runner.onRisingEdge()
		} else {
			runner.onFallingEdge()
		}
	})

	debugPin := machine.Pin(boardconfig.DebugDumpPin)
	debugPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	// WATCHDOG_REASON bit 0 latches across reset iff the watchdog timer
	// itself forced the reboot (as opposed to power-on or a debugger reset).
	watchdogCaused := rp.WATCHDOG.REASON.Get()&1 != 0

	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 8000}); err != nil {
		println("watchdog configure failed:", err.Error())
	}
	machine.Watchdog.Start()

	ctl := controller.Recover(engine, runner, logs, status, shipper, controller.SystemClock, dropSensor, boardconfig.MotorSpeedRPM, watchdogCaused, false)

	dumped := false
	for {
		machine.Watchdog.Update()
		engine.Poll()

		if !debugPin.Get() {
			if !dumped {
				dumpLogs(logs)
				dumped = true
			}
		} else {
			dumped = false
		}

		ctl.Tick(calibBtn.Pressed(), dispenseBtn.Pressed())
		led.Step(ctl.Indicator(), time.Now())

		time.Sleep(10 * time.Millisecond)
	}
}

func dumpLogs(logs *logstore.Store) {
	entries, err := logs.PrintValid()
	if err != nil {
		println("log dump failed:", err.Error())
		return
	}
	for _, e := range entries {
		println(e.Slot, ": ", e.Message.String(), " ", e.SecondsAgo, " seconds after last boot.")
	}
}
