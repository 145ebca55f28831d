package ecu

import (
	"can-translator/signals"
)

const (
	// Votol ECU CAN IDs (29-bit)
	VotolDisplayControllerID = 0x1026105A
	VotolVCUControllerID     = 0x10262001
	VotolControllerDisplayID = 0x10261022
	VotolControllerStatusID  = 0x10261023

	// Update rates
	VotolDisplayRate = 250 // ms
	VotolControlRate = 100 // ms
	VotolStatusRate  = 50  // ms
)

// VotolDefinition describes the Votol controller on bus. All multi-byte
// fields are little-endian.
func VotolDefinition(bus *signals.Bus) Definition {
	display := &signals.Message{Bus: bus, ID: VotolDisplayControllerID, Extended: true, Name: "display_controller"}
	controller := &signals.Message{Bus: bus, ID: VotolControllerDisplayID, Extended: true, Name: "controller_display"}
	status := &signals.Message{Bus: bus, ID: VotolControllerStatusID, Extended: true, Name: "controller_status"}

	unsigned := littleEndianDecoder(false)
	signed := littleEndianDecoder(true)

	sigs := []*signals.Signal{
		// NOTE: the display frame is not currently sent by the controller;
		// speed is derived from RPM instead
		{Name: SignalOdometer, Message: display, BitPosition: 0, BitSize: 16, Factor: 1000, Unit: "m", Decoder: unsigned},
		{Name: "display_speed", Message: display, BitPosition: 40, BitSize: 8, Factor: 1, Unit: "km/h"},

		{Name: SignalRPM, Message: controller, BitPosition: 16, BitSize: 16, Factor: 1, Unit: "rpm", Decoder: unsigned},
		{Name: SignalSpeed, Message: controller, BitPosition: 16, BitSize: 16, Factor: RPMToSpeedFactor, Unit: "km/h", Decoder: unsigned},
		// 0.1V/bit
		{Name: SignalVoltage, Message: controller, BitPosition: 32, BitSize: 16, Factor: 100, Unit: "mV", Decoder: unsigned},
		// 0.1A/bit, negative while regenerating
		{Name: SignalCurrent, Message: controller, BitPosition: 48, BitSize: 16, Factor: 100, Unit: "mA", Decoder: signed},

		{Name: SignalTemperature, Message: status, BitPosition: 0, BitSize: 8, Factor: 1, Unit: "degC", Decoder: signedDecoder},
		{Name: SignalFaultCode, Message: status, BitPosition: 48, BitSize: 8, Factor: 1},
	}
	sigs = append(sigs, faultBitSignals(status, 6, votolFaultMap)...)

	return Definition{
		Messages: []*signals.Message{display, controller, status},
		Signals:  sigs,
	}
}
