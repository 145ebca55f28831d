package ecu

import (
	"can-translator/bitfield"
	"can-translator/pipeline"
	"can-translator/signals"
)

const (
	// Bosch ECU CAN IDs
	BoschStatus1FrameID       = 0x7E0
	BoschStatus2FrameID       = 0x7E1
	BoschStatus3FrameID       = 0x7E2
	BoschStatus4FrameID       = 0x7E3
	BoschEBSSetFrameID        = 0x4E2
	BoschControlMessageID     = 0x4E0
	BoschStatusRequestFrameID = 0x4EF // Request all ECU status messages

	// Constants for KERS
	KersVoltage          = 56000 // 56V
	KersCurrent          = 10000 // 10A
	BoschGearModeEnable  = true
	BoschBoostModeEnable = false

	// Odometer calibration factor (as applied by unu service)
	OdometerCalibrationFactor = 1.07

	// Fault 15 is reported while braking and is not a fault.
	BoschSpuriousFault = 0x0F
)

// Signal names shared by the built-in dictionaries.
const (
	SignalVoltage       = "battery_voltage"
	SignalCurrent       = "motor_current"
	SignalRPM           = "motor_rpm"
	SignalRawSpeed      = "raw_speed"
	SignalSpeed         = "vehicle_speed"
	SignalThrottle      = "throttle_on"
	SignalTemperature   = "ecu_temperature"
	SignalFaultCode     = "fault_code"
	SignalFault         = "fault"
	SignalOdometer      = "odometer"
	SignalTrip          = "trip_distance"
	SignalKersEnabled   = "kers_enabled"
	SignalKersControl   = "kers_control"
	SignalEBSVoltage    = "ebs_voltage"
	SignalStatusRequest = "status_request"
	CommandKers         = "kers"
)

// BoschDefinition describes the Bosch scooter ECU on bus.
func BoschDefinition(bus *signals.Bus) Definition {
	status1 := &signals.Message{Bus: bus, ID: BoschStatus1FrameID, Name: "status1"}
	status2 := &signals.Message{Bus: bus, ID: BoschStatus2FrameID, Name: "status2"}
	status3 := &signals.Message{Bus: bus, ID: BoschStatus3FrameID, Name: "status3"}
	status4 := &signals.Message{Bus: bus, ID: BoschStatus4FrameID, Name: "status4"}
	control := &signals.Message{Bus: bus, ID: BoschControlMessageID, Name: "control", Length: 1}
	ebs := &signals.Message{Bus: bus, ID: BoschEBSSetFrameID, Name: "ebs_set", Length: 4}
	request := &signals.Message{Bus: bus, ID: BoschStatusRequestFrameID, Name: "status_request", Length: 1}

	sigs := []*signals.Signal{
		// Voltage (mV)
		{Name: SignalVoltage, Message: status1, BitPosition: 0, BitSize: 16, Factor: 10, Unit: "mV"},
		// Current (mA), signed
		{Name: SignalCurrent, Message: status1, BitPosition: 16, BitSize: 16, Factor: 10, Unit: "mA", Decoder: signedDecoder},
		{Name: SignalRPM, Message: status1, BitPosition: 32, BitSize: 16, Factor: 1, Unit: "rpm"},
		{Name: SignalRawSpeed, Message: status1, BitPosition: 48, BitSize: 8, Factor: 1, Unit: "km/h"},
		// Speed with calibration and averaging
		{Name: SignalSpeed, Message: status1, BitPosition: 48, BitSize: 8, Factor: 1, Unit: "km/h", SendSame: true, Decoder: speedDecoder()},
		{Name: SignalThrottle, Message: status1, BitPosition: 63, BitSize: 1, Factor: 1, Decoder: pipeline.BooleanDecoder},

		{Name: SignalTemperature, Message: status2, BitPosition: 0, BitSize: 8, Factor: 1, Unit: "degC", Decoder: signedDecoder},
		{Name: SignalFaultCode, Message: status2, BitPosition: 16, BitSize: 32, Factor: 1, Decoder: boschFaultCodeDecoder},
		{Name: SignalFault, Message: status2, BitPosition: 16, BitSize: 32, Factor: 1, States: faultStates(boschFaultMap), Decoder: boschFaultDecoder},

		// Odometer in meters, reported in 0.1km steps
		{Name: SignalOdometer, Message: status3, BitPosition: 0, BitSize: 32, Factor: OdometerCalibrationFactor * 100, Unit: "m", SendFrequency: 1},
		{Name: SignalTrip, Message: status3, BitPosition: 0, BitSize: 32, Factor: OdometerCalibrationFactor * 100, Unit: "m", Decoder: tripDecoder()},

		{Name: SignalKersEnabled, Message: status4, BitPosition: 1, BitSize: 1, Factor: 1, ForceSendChanged: true, Decoder: pipeline.BooleanDecoder},

		{Name: SignalKersControl, Message: control, BitPosition: 5, BitSize: 1, Factor: 1, Writable: true, Encoder: kersControlEncoder},
		{Name: SignalEBSVoltage, Message: ebs, BitPosition: 0, BitSize: 16, Factor: 1, Unit: "mV", Writable: true, Encoder: ebsEncoder},
		{Name: SignalStatusRequest, Message: request, BitPosition: 7, BitSize: 1, Factor: 1, Writable: true},
	}

	return Definition{
		Messages: []*signals.Message{status1, status2, status3, status4, control, ebs, request},
		Signals:  sigs,
		Commands: []*signals.Command{{Name: CommandKers, Handler: kersCommand}},
	}
}

func boschFaultCodeDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	if value == BoschSpuriousFault {
		return signals.Number(0)
	}
	return signals.Number(value)
}

func boschFaultDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	if value == BoschSpuriousFault {
		value = 0
	}
	return faultEventDecoder(ctx, value, send)
}

// kersControlEncoder packs the whole control byte: gear mode, boost mode and
// the requested KERS state.
func kersControlEncoder(ctx *signals.EncodeContext, value signals.Value, send *bool) uint64 {
	enabled := value.Float() != 0
	control := boolToByte(BoschGearModeEnable) |
		(boolToByte(BoschBoostModeEnable) << 1) |
		(boolToByte(enabled) << 2)

	var payload uint64
	bitfield.Set(&payload, uint64(control), 0, 8)
	return payload
}

// ebsEncoder writes the KERS voltage limit followed by the fixed current
// limit.
func ebsEncoder(ctx *signals.EncodeContext, value signals.Value, send *bool) uint64 {
	voltage := value.Float()
	if voltage <= 0 || voltage > 0xFFFF {
		if ctx.Logger != nil {
			ctx.Logger.Warn("EBS voltage %v out of range", voltage)
		}
		*send = false
		return 0
	}

	var payload uint64
	bitfield.Set(&payload, uint64(voltage), 0, 16)
	bitfield.Set(&payload, KersCurrent, 16, 16)
	return payload
}

// kersCommand enables or disables KERS. Enabling sends the voltage/current
// settings first.
func kersCommand(ctx *signals.CommandContext, name string, value signals.Value, event *signals.Value) bool {
	enabled := value.Float() != 0
	if enabled {
		ebs := ctx.Dictionary.LookupWritableSignal(SignalEBSVoltage)
		if ebs == nil || !ctx.Writer.Write(ebs, signals.Number(KersVoltage), false) {
			return false
		}
	}

	control := ctx.Dictionary.LookupWritableSignal(SignalKersControl)
	if control == nil {
		return false
	}
	return ctx.Writer.Write(control, signals.Boolean(enabled), false)
}
