package pipeline

import (
	"math"

	"can-translator/bitfield"
	"can-translator/signals"
)

// DecodeSignal extracts the signal from payload and scales it. Signals with
// states are not scaled: state values are raw field values.
func DecodeSignal(signal *signals.Signal, payload uint64) float64 {
	raw := bitfield.Get(payload, signal.BitPosition, signal.BitSize)
	if signal.HasStates() {
		return float64(raw)
	}
	return float64(raw)*signal.Factor + signal.Offset
}

// EncodeSignal scales value back to the raw field and sets it in payload.
// Positive raw values are rounded half up; the field is masked to its width.
// Signals with states take value as the raw field value.
func EncodeSignal(signal *signals.Signal, value float64, payload uint64) uint64 {
	raw := value
	if !signal.HasStates() {
		raw -= signal.Offset
		if signal.Factor != 0 {
			raw /= signal.Factor
		}
	}

	var bits uint64
	switch {
	case math.IsNaN(raw):
	case raw > 0:
		bits = uint64(raw + 0.5)
	default:
		// two's complement, masked to the field by Set
		bits = uint64(int64(raw))
	}
	bitfield.Set(&payload, bits, signal.BitPosition, signal.BitSize)
	return payload
}

// NumberDecoder publishes the scaled value as is.
func NumberDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	return signals.Number(value)
}

// BooleanDecoder publishes true for any nonzero value.
func BooleanDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	return signals.Boolean(value != 0)
}

// IgnoreDecoder never publishes; the value is still tracked as LastValue.
func IgnoreDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	*send = false
	return signals.Number(value)
}

// StateDecoder publishes the state name for the raw value. Unknown values are
// reported and not published.
func StateDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	state := ctx.Signal.StateByValue(int(value))
	if state == nil {
		if *send && ctx.Logger != nil {
			ctx.Logger.Warn("Unrecognized state %v for signal %s", value, ctx.Signal.Name)
		}
		*send = false
		return signals.Value{}
	}
	return signals.String(state.Name)
}

// NumberEncoder writes the numeric form of value. A string that is not a
// number vetoes the write.
func NumberEncoder(ctx *signals.EncodeContext, value signals.Value, send *bool) uint64 {
	v, ok := value.Numeric()
	if !ok {
		vetoNonNumeric(ctx, value, send)
		return 0
	}
	return EncodeSignal(ctx.Signal, v, 0)
}

// BooleanEncoder writes 1 for true and 0 for false.
func BooleanEncoder(ctx *signals.EncodeContext, value signals.Value, send *bool) uint64 {
	var v float64
	switch value.Type {
	case signals.BooleanValue:
		if value.Boolean {
			v = 1
		}
	default:
		f, ok := value.Numeric()
		if !ok {
			vetoNonNumeric(ctx, value, send)
			return 0
		}
		if f != 0 {
			v = 1
		}
	}
	return EncodeSignal(ctx.Signal, v, 0)
}

func vetoNonNumeric(ctx *signals.EncodeContext, value signals.Value, send *bool) {
	if ctx.Logger != nil {
		ctx.Logger.Warn("Value %q for signal %s is not a number", value.String(), ctx.Signal.Name)
	}
	*send = false
}

// StateEncoder writes the raw value of the state named by value. A numeric
// value is accepted when it is one of the signal's states. An unknown name
// vetoes the write.
func StateEncoder(ctx *signals.EncodeContext, value signals.Value, send *bool) uint64 {
	state := ctx.Signal.StateByName(value.String())
	if state == nil && value.Type == signals.NumberValue {
		state = ctx.Signal.StateByValue(int(value.Number))
	}
	if state == nil {
		if ctx.Logger != nil {
			ctx.Logger.Warn("Unknown state %q for signal %s", value.String(), ctx.Signal.Name)
		}
		*send = false
		return 0
	}
	return EncodeSignal(ctx.Signal, float64(state.Value), 0)
}

func decoderFor(signal *signals.Signal) signals.Decoder {
	switch {
	case signal.Decoder != nil:
		return signal.Decoder
	case signal.HasStates():
		return StateDecoder
	default:
		return NumberDecoder
	}
}

func encoderFor(signal *signals.Signal, value signals.Value) signals.Encoder {
	switch {
	case signal.Encoder != nil:
		return signal.Encoder
	case signal.HasStates():
		return StateEncoder
	case value.Type == signals.BooleanValue:
		return BooleanEncoder
	default:
		return NumberEncoder
	}
}
