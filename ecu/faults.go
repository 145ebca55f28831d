package ecu

import (
	"sort"

	"can-translator/pipeline"
	"can-translator/signals"
)

type ECUFault uint32

const (
	FaultNone ECUFault = iota
	FaultBatteryOverVoltage
	FaultBatteryUnderVoltage
	FaultMotorShortCircuit
	FaultMotorStalled
	FaultHallSensorAbnormal
	FaultMOSFETCheckError
	FaultMotorOpenCircuit
	FaultReserved8
	FaultReserved9
	FaultPowerOnSelfCheckError
	FaultOverTemperature
	FaultThrottleAbnormal
	FaultMotorTemperatureProtection
	FaultThrottleActiveAtPowerUp
	FaultReserved15
	FaultInternal15vAbnormal
)

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

type FaultConfig struct {
	Code        ECUFault
	Name        string
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[ECUFault]FaultConfig{
	FaultBatteryOverVoltage:         {FaultBatteryOverVoltage, "battery_over_voltage", "Battery over-voltage", SeverityCritical},
	FaultBatteryUnderVoltage:        {FaultBatteryUnderVoltage, "battery_under_voltage", "Battery under-voltage", SeverityCritical},
	FaultMotorShortCircuit:          {FaultMotorShortCircuit, "motor_short_circuit", "Motor short-circuit", SeverityCritical},
	FaultMotorStalled:               {FaultMotorStalled, "motor_stalled", "Motor stalled", SeverityCritical},
	FaultHallSensorAbnormal:         {FaultHallSensorAbnormal, "hall_sensor_abnormal", "Hall sensor abnormal", SeverityCritical},
	FaultMOSFETCheckError:           {FaultMOSFETCheckError, "mosfet_check_error", "MOSFET check error", SeverityCritical},
	FaultMotorOpenCircuit:           {FaultMotorOpenCircuit, "motor_open_circuit", "Motor open-circuit", SeverityCritical},
	FaultPowerOnSelfCheckError:      {FaultPowerOnSelfCheckError, "self_check_error", "Power-on self-check error", SeverityCritical},
	FaultOverTemperature:            {FaultOverTemperature, "over_temperature", "Over-temperature", SeverityCritical},
	FaultThrottleAbnormal:           {FaultThrottleAbnormal, "throttle_abnormal", "Throttle abnormal", SeverityCritical},
	FaultInternal15vAbnormal:        {FaultInternal15vAbnormal, "internal_15v_abnormal", "Internal 15V abnormal", SeverityCritical},
	FaultThrottleActiveAtPowerUp:    {FaultThrottleActiveAtPowerUp, "throttle_active_at_power_up", "Throttle active at power up", SeverityWarning},
	FaultMotorTemperatureProtection: {FaultMotorTemperatureProtection, "motor_temperature_protection", "Motor temperature protection", SeverityWarning},
	FaultReserved15:                 {FaultReserved15, "reserved_15", "Reserved", SeverityWarning},
}

func GetFaultConfig(fault ECUFault) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

var boschFaultMap = map[uint32]ECUFault{
	0x01: FaultBatteryOverVoltage,
	0x02: FaultBatteryUnderVoltage,
	0x03: FaultMotorShortCircuit,
	0x04: FaultMotorStalled,
	0x05: FaultHallSensorAbnormal,
	0x06: FaultMOSFETCheckError,
	0x07: FaultMotorOpenCircuit,
	0x0A: FaultPowerOnSelfCheckError,
	0x0B: FaultOverTemperature,
	0x0C: FaultThrottleAbnormal,
	0x0D: FaultMotorTemperatureProtection,
	0x0E: FaultThrottleActiveAtPowerUp,
	0x10: FaultInternal15vAbnormal,
}

func MapBoschFault(code uint32) ECUFault {
	if fault, ok := boschFaultMap[code]; ok {
		return fault
	}
	return FaultNone
}

var votolFaultMap = map[uint32]ECUFault{
	0x01: FaultMotorStalled,
	0x02: FaultHallSensorAbnormal,
	0x04: FaultThrottleAbnormal,
	0x08: FaultPowerOnSelfCheckError,
	0x10: FaultReserved15,
	0x20: FaultOverTemperature,
	0x40: FaultInternal15vAbnormal,
}

func MapVotolFault(code uint32) ECUFault {
	if fault, ok := votolFaultMap[code]; ok {
		return fault
	}
	return FaultNone
}

// faultStates turns a code map into signal states, with 0 as "none".
func faultStates(codes map[uint32]ECUFault) []signals.SignalState {
	states := []signals.SignalState{{Value: 0, Name: "none"}}
	for code, fault := range codes {
		if config, ok := GetFaultConfig(fault); ok {
			states = append(states, signals.SignalState{Value: int(code), Name: config.Name})
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Value < states[j].Value })
	return states
}

// faultEventDecoder publishes fault transitions as events: the value names
// the fault and the event tells whether it is now active. Clearing a fault
// reports the previous one as inactive.
func faultEventDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	rt := ctx.Runtime.For(ctx.Signal)

	code := int(value)
	active := code != 0
	if !active {
		if !rt.Received || rt.LastValue == 0 || ctx.Signal.StateByValue(int(rt.LastValue)) == nil {
			*send = false
			return signals.String("none")
		}
		code = int(rt.LastValue)
	}

	state := ctx.Signal.StateByValue(code)
	if state == nil {
		if *send && ctx.Logger != nil {
			ctx.Logger.Warn("Unknown fault code 0x%X", code)
		}
		*send = false
		return signals.Value{}
	}

	event := signals.Boolean(active)
	ctx.Event = &event
	return signals.String(state.Name)
}

// faultBitSignals creates one boolean signal per bit of a fault bitmask byte.
func faultBitSignals(msg *signals.Message, byteIndex int, codes map[uint32]ECUFault) []*signals.Signal {
	var result []*signals.Signal
	for bit := 0; bit < 8; bit++ {
		fault := codes[uint32(1)<<uint(bit)]
		config, ok := GetFaultConfig(fault)
		if !ok {
			continue
		}
		result = append(result, &signals.Signal{
			Name:        "fault_" + config.Name,
			Message:     msg,
			BitPosition: byteIndex*8 + (7 - bit),
			BitSize:     1,
			Factor:      1,
			Decoder:     pipeline.BooleanDecoder,
		})
	}
	return result
}
