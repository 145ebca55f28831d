// Package bitfield reads and writes bit fields inside an 8-byte CAN payload.
//
// Bits are numbered in network order: bit 0 is the most-significant bit of
// the first byte on the wire and bit 63 is the least-significant bit of the
// last byte. A field's value is stored most-significant bit first, so a field
// may cross any number of byte boundaries.
package bitfield

import (
	"go.einride.tech/can"
)

// PayloadBits is the width of a classical CAN payload.
const PayloadBits = 64

func mask(numBits int) uint64 {
	if numBits >= PayloadBits {
		return ^uint64(0)
	}
	return (uint64(1) << uint(numBits)) - 1
}

// Get extracts numBits starting at startBit from payload. The result is
// undefined when startBit+numBits exceeds 64; dictionaries are validated
// before any frame is decoded.
func Get(payload uint64, startBit, numBits int) uint64 {
	if numBits <= 0 {
		return 0
	}
	shift := PayloadBits - startBit - numBits
	return (payload >> uint(shift)) & mask(numBits)
}

// Set writes value into the field at startBit, leaving every other bit of
// payload untouched. Bits of value above numBits are discarded.
func Set(payload *uint64, value uint64, startBit, numBits int) {
	if numBits <= 0 {
		return
	}
	shift := uint(PayloadBits - startBit - numBits)
	m := mask(numBits) << shift
	*payload = (*payload &^ m) | ((value << shift) & m)
}

// Fits reports whether a field of numBits at startBit lies inside the payload.
func Fits(startBit, numBits int) bool {
	return startBit >= 0 && numBits > 0 && startBit+numBits <= PayloadBits
}

// NthByte returns byte n (0 = first on the wire) of payload.
func NthByte(payload uint64, n int) uint8 {
	return uint8(payload >> uint(PayloadBits-(n+1)*8))
}

// Pack converts frame data into the payload scalar used by Get and Set.
func Pack(data can.Data) uint64 {
	return data.PackBigEndian()
}

// Unpack converts a payload scalar back into frame data.
func Unpack(payload uint64) can.Data {
	var data can.Data
	data.UnpackBigEndian(payload)
	return data
}
