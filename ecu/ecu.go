package ecu

import (
	"can-translator/bitfield"
	"can-translator/signals"
)

const (
	// Common constants
	SpeedToleranceFactor = 1.155556
	CalibrationFactor    = 1.03
	RPMToSpeedFactor     = 0.0783744
	OdoCalFactor         = 1.07

	// Window size for speed averaging
	WindowSize = 3
)

// SpeedBuffer implements a moving average for speed readings
type SpeedBuffer struct {
	data  [WindowSize]uint16
	head  uint8
	count uint8
	sum   uint16
}

func (buf *SpeedBuffer) Reset() {
	buf.count = 0
	buf.head = 0
	buf.sum = 0
	for i := range buf.data {
		buf.data[i] = 0
	}
}

func (buf *SpeedBuffer) MovingAverage(speed uint16) float64 {
	var lastData uint16
	if buf.count >= WindowSize {
		buf.count = WindowSize
		lastData = buf.data[buf.head]
	} else {
		buf.count++
	}

	buf.data[buf.head] = speed
	buf.sum = (buf.sum - lastData) + speed
	average := float64(buf.sum) / float64(buf.count)
	buf.head = (buf.head + 1) % WindowSize

	return average
}

// calculateSpeed processes raw speed input using calibration and averaging
func (buf *SpeedBuffer) calculateSpeed(rawSpeed uint16) uint16 {
	if rawSpeed == 0 {
		buf.Reset()
		return 0
	}

	avgSpeed := buf.MovingAverage(rawSpeed)
	return uint16(avgSpeed * CalibrationFactor * SpeedToleranceFactor)
}

// speedDecoder publishes the calibrated moving average of the raw speed.
// Each decoder owns its buffer, so build one per dictionary.
func speedDecoder() signals.Decoder {
	var buf SpeedBuffer
	return func(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
		return signals.Number(float64(buf.calculateSpeed(uint16(value))))
	}
}

func signExtend(raw uint64, bits int) int64 {
	if bits >= 64 {
		return int64(raw)
	}
	shift := uint(64 - bits)
	return int64(raw<<shift) >> shift
}

// signedDecoder reads the field as two's complement.
func signedDecoder(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
	s := ctx.Signal
	raw := bitfield.Get(ctx.Payload, s.BitPosition, s.BitSize)
	return signals.Number(float64(signExtend(raw, s.BitSize))*s.Factor + s.Offset)
}

// littleEndianDecoder reads the signal's bytes least-significant first. The
// signal must be byte aligned.
func littleEndianDecoder(signed bool) signals.Decoder {
	return func(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
		s := ctx.Signal
		first := s.BitPosition / 8
		n := s.BitSize / 8

		var raw uint64
		for i := n - 1; i >= 0; i-- {
			raw = raw<<8 | uint64(bitfield.NthByte(ctx.Payload, first+i))
		}
		physical := float64(raw)
		if signed {
			physical = float64(signExtend(raw, s.BitSize))
		}
		return signals.Number(physical*s.Factor + s.Offset)
	}
}

// tripDecoder publishes the distance covered since the first reading of a
// cumulative counter, tolerating the counter wrapping around.
func tripDecoder() signals.Decoder {
	var (
		started bool
		last    uint64
		total   uint64
	)
	return func(ctx *signals.DecodeContext, value float64, send *bool) signals.Value {
		s := ctx.Signal
		raw := bitfield.Get(ctx.Payload, s.BitPosition, s.BitSize)
		if !started {
			started = true
			last = raw
		}
		delta := (raw - last) & fieldMask(s.BitSize)
		last = raw
		total += delta
		return signals.Number(float64(total) * s.Factor)
	}
}

func fieldMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(bits) - 1
}

// Helper function to convert bool to byte
func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
