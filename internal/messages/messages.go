// Package messages defines the stable, persisted event-code table and the
// (disjoint) reboot-activity codes the controller uses during recovery.
package messages

// Code is a message code persisted in a LogEntry. The numeric values are
// part of the on-EEPROM format and must never be reordered once shipped.
type Code uint8

const (
	IDLE Code = iota
	WatchdogReboot
	Dispense1
	Dispense2
	Dispense3
	Dispense4
	Dispense5
	Dispense6
	Dispense7
	HalfCalibration
	FullCalibration
	ButtonPress
	PillDispensed
	PillError
	DispenserEmpty
	CalibrationFinished
	Dispense1Error
	Dispense2Error
	Dispense3Error
	Dispense4Error
	Dispense5Error
	Dispense6Error
	Dispense7Error
	HalfCalibrationError
	FullCalibrationError
	Gremlins
	DispenserStatusReadError
	BootFinished
)

var names = [...]string{
	IDLE:                     "pill dispenser idle",
	WatchdogReboot:           "watchdog caused reboot",
	Dispense1:                "dispensing pill 1",
	Dispense2:                "dispensing pill 2",
	Dispense3:                "dispensing pill 3",
	Dispense4:                "dispensing pill 4",
	Dispense5:                "dispensing pill 5",
	Dispense6:                "dispensing pill 6",
	Dispense7:                "dispensing pill 7",
	HalfCalibration:          "doing half calibration",
	FullCalibration:          "doing full calibration",
	ButtonPress:              "button press",
	PillDispensed:            "pill dispensed",
	PillError:                "pill drop not detected",
	DispenserEmpty:           "pill dispenser is empty",
	CalibrationFinished:      "calibration finished",
	Dispense1Error:           "reboot during pill 1 dispensing",
	Dispense2Error:           "reboot during pill 2 dispensing",
	Dispense3Error:           "reboot during pill 3 dispensing",
	Dispense4Error:           "reboot during pill 4 dispensing",
	Dispense5Error:           "reboot during pill 5 dispensing",
	Dispense6Error:           "reboot during pill 6 dispensing",
	Dispense7Error:           "reboot during pill 7 dispensing",
	HalfCalibrationError:     "reboot during half calibration",
	FullCalibrationError:     "reboot during full calibration",
	Gremlins:                 "gremlins in the code",
	DispenserStatusReadError: "failed to read pill dispenser status from eeprom",
	BootFinished:             "boot finished",
}

// String returns the human-readable text used by PrintValid and the LoRa
// shipper payload.
func (c Code) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown message code"
}

// DispenseCode returns the Dispense{n} code for a 0-indexed pill number
// (n == pills already dispensed before this one).
func DispenseCode(n int) Code {
	return Dispense1 + Code(n)
}

// DispenseErrorCode returns the Dispense{n}_ERROR code for a 0-indexed pill number.
func DispenseErrorCode(n int) Code {
	return Dispense1Error + Code(n)
}

// ActivityCode is the activity that was in progress when the device was last
// shut down, persisted as DeviceStatus.RebootStatusCode. Kept disjoint from
// Code per the enum-collision redesign: the original firmware reused a
// single integer range for both reboot activity and log messages.
type ActivityCode uint8

const (
	ActivityIdle ActivityCode = iota
	ActivityDispensing
	ActivityFullCalibration
	ActivityHalfCalibration
)
