package format

// Alignment utilities for the volume format.
//
// The persistent cluster bitmap is stored with a quad-word (8-byte)
// aligned byte length, and several record structures require 8-byte
// alignment of their payloads.

const quadAlignMask = 7

// QuadAlign returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	QuadAlign(1)  = 8
//	QuadAlign(8)  = 8
//	QuadAlign(9)  = 16
func QuadAlign(n int) int {
	return (n + quadAlignMask) & ^quadAlignMask
}

// QuadAlign64 is QuadAlign for 64-bit sizes (bitmap byte lengths).
func QuadAlign64(n uint64) uint64 {
	return (n + quadAlignMask) &^ quadAlignMask
}

// BitmapBytes returns the persistent byte length of a bitmap tracking
// nbits allocation units: one bit per unit, quad-word aligned.
func BitmapBytes(nbits uint64) uint64 {
	return QuadAlign64((nbits + 7) / 8)
}
