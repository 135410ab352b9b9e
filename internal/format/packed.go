package format

// Minimal-width signed integer fields for the on-disk run codec.
//
// Run records store lengths and physical-offset deltas as little-endian,
// sign-extended integers trimmed to the smallest byte width that still
// round-trips the value. The width is carried in the record header, so
// encode and decode both work on explicit (offset, width) pairs rather
// than overlaying native integers on the buffer.

// PackedSize returns the minimal byte width (1..8) that represents v as a
// little-endian sign-extended field. The sign bit counts: 0x80 needs two
// bytes, -0x80 needs one.
func PackedSize(v int64) int {
	for n := 1; n < 8; n++ {
		shift := uint(64 - 8*n)
		if v<<shift>>shift == v {
			return n
		}
	}
	return 8
}

// PutPacked writes the low 'width' bytes of v at b[off:], little-endian.
// The caller chooses width; PackedSize gives the minimal one.
func PutPacked(b []byte, off, width int, v int64) {
	for i := 0; i < width; i++ {
		b[off+i] = byte(v)
		v >>= 8
	}
}

// ReadPacked reads a 'width'-byte little-endian field at b[off:] and
// sign-extends it to int64.
func ReadPacked(b []byte, off, width int) int64 {
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[off+i])
	}
	shift := uint(64 - 8*width)
	return int64(v<<shift) >> shift
}
