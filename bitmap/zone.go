package bitmap

// Zone management. The zone [zoneStart, zoneEnd) is a reserved free range
// kept ahead of metadata record-table growth. It is advisory: the bits
// stay zero in the bitmap, ordinary Find skips the range explicitly, and
// only the zone's owner allocates from it (FindInZone).

// SetZone replaces the reserved zone with [start, start+length). The
// range must be currently free in the bitmap; otherwise ErrZoneOverlap is
// returned and the previous zone is kept. A zero length clears the zone.
func (b *Bitmap) SetZone(start, length uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if length == 0 {
		b.zoneStart, b.zoneEnd = 0, 0
		return nil
	}
	if start+length > b.nbits || start+length < start {
		return ErrRange
	}
	if b.zeroes(start, length) != length {
		return ErrZoneOverlap
	}
	b.zoneStart, b.zoneEnd = start, start+length
	return nil
}

// ZoneBit returns the first unit of the reserved zone.
func (b *Bitmap) ZoneBit() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.zoneStart
}

// ZoneLen returns the zone length in units; zero means no zone.
func (b *Bitmap) ZoneLen() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.zoneEnd - b.zoneStart
}

// ShrinkZone advances the zone start past units the owner has consumed.
// Shrinking past the end clears the zone.
func (b *Bitmap) ShrinkZone(newStart uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if newStart >= b.zoneEnd {
		b.zoneStart, b.zoneEnd = 0, 0
		return
	}
	if newStart > b.zoneStart {
		b.zoneStart = newStart
	}
}
