// Package boardconfig centralizes the pin numbers and board-level wiring
// constants for the pill dispenser's RP2040 build. Pin assignments are
// grounded directly on the reference firmware's testmain.c/led.c/eeprom.c.
package boardconfig

// Stepper driver pins, in carousel phase order (spec §2 pins[4]).
const (
	StepperBluePin   = 2
	StepperPinkPin   = 3
	StepperYellowPin = 6
	StepperOrangePin = 13
)

// StepperOptoForkPin is the opto-fork interrupt input used for calibration.
const StepperOptoForkPin = 28

// PiezoDropSensorPin is the un-debounced piezo drop-detect input.
const PiezoDropSensorPin = 27

// CalibrateButtonPin and DispenseButtonPin are the two debounced,
// user-facing control inputs.
const (
	CalibrateButtonPin = 14
	DispenseButtonPin  = 15
)

// DebugDumpPin, when held low, triggers a one-shot log dump to stdio; it
// must be released before it can trigger another.
const DebugDumpPin = 26

// Indicator LED pins, driven by PWM at a fixed brightness.
const (
	LED1Pin = 20
	LED2Pin = 21
	LED3Pin = 22
)

// EEPROM I2C pins and bus parameters; i2c0 uses pins 16/17 on this board.
const (
	EEPROMSDAPin   = 16
	EEPROMSCLPin   = 17
	EEPROMBaudHz   = 400_000
	EEPROMI2CAddr  = 0x50
	EEPROMPageSize = 64
)

// LoRa module UART pins.
const (
	LoRaUARTTXPin = 4
	LoRaUARTRXPin = 5
	LoRaBaudHz    = 9600
)

// EEPROM layout: the log ring of MaxLogs 8-byte slots occupies
// [0x0000, 0x0800), and the status record sits one 8-byte slot past the end
// of the ring.
const (
	StatusAddr  = LogBaseAddr + MaxLogs*8 + 8
	LogBaseAddr = 0
	MaxLogs     = 256
)

// MotorSpeedRPM is the speed a full calibration restores when it finishes,
// and the speed the controller's pill-drop timeout is computed from. Half
// calibration does not restore it: after a half calibration the motor keeps
// running at the calibration package's maximum speed.
const MotorSpeedRPM = 7.5

// StepperHalfStepMax is a safe, pre-calibration default for the revolution
// step count, overwritten once a full calibration completes.
const StepperHalfStepMax = 4300
