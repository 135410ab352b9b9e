package bitmap

// FindFlag alters Find behavior.
type FindFlag uint8

const (
	// FindMarkUsed atomically reserves the returned run before Find
	// returns, under the same lock acquisition.
	FindMarkUsed FindFlag = 1 << iota

	// FindFull fails rather than return a shorter run than requested.
	FindFull

	// FindInZone permits results inside the reserved zone. Only the
	// zone's privileged owner passes this.
	FindInZone
)

// Find searches for a free run of need units at or after hint.
//
// When the extent cache is current the size-ordered index answers with
// the smallest sufficient run (ties to the lowest start, which keeps
// fragmentation drift down and favors locality). Otherwise a linear
// window scan starts at hint's window and wraps once, using the window
// free counts to skip full and empty windows so the walk is bounded by
// window count rather than bit count.
//
// Without FindFull a shorter run than requested may be returned (the
// largest seen). The reserved zone is never returned unless FindInZone.
// A miss is ErrNoSpace.
func (b *Bitmap) Find(need, hint uint64, flags FindFlag) (start, got uint64, err error) {
	if need == 0 {
		return 0, 0, ErrInvalidCount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if need > b.totalFree {
		return 0, 0, ErrNoSpace
	}
	if hint >= b.nbits {
		hint = 0
	}
	if b.state == cacheUninit {
		b.buildCache()
	}

	var ok bool
	if b.state == cacheCurrent {
		start, got, ok = b.cacheFind(need, hint, flags)
	} else {
		start, got, ok = b.scanFind(need, hint, flags)
	}
	if !ok {
		return 0, 0, ErrNoSpace
	}
	if flags&FindMarkUsed != 0 {
		if err := b.setUsedLocked(start, got); err != nil {
			return 0, 0, err
		}
	}
	return start, got, nil
}

// clipZone subtracts the reserved zone from a free extent, yielding up to
// two usable pieces.
func (b *Bitmap) clipZone(e extent, flags FindFlag) []extent {
	if flags&FindInZone != 0 || b.zoneEnd == b.zoneStart {
		return []extent{e}
	}
	if e.end() <= b.zoneStart || e.start >= b.zoneEnd {
		return []extent{e}
	}
	var out []extent
	if e.start < b.zoneStart {
		out = append(out, extent{start: e.start, count: b.zoneStart - e.start})
	}
	if e.end() > b.zoneEnd {
		out = append(out, extent{start: b.zoneEnd, count: e.end() - b.zoneEnd})
	}
	return out
}

// cacheFind probes the size-ordered index. Search order: smallest
// sufficient run at or after hint; then smallest sufficient run anywhere;
// then, unless FindFull, the largest run available.
func (b *Bitmap) cacheFind(need, hint uint64, flags FindFlag) (uint64, uint64, bool) {
	var start uint64
	found := false

	// extentMax is an upper estimate of the largest cached run (it only
	// grows). A request above it cannot be satisfied whole, so skip
	// straight to the best-effort pass.
	if need > b.extentMax {
		if flags&FindFull != 0 {
			return 0, 0, false
		}
		return b.cacheFindPartial(need, flags)
	}

	// Pass 1: smallest run >= need whose usable piece begins at or after
	// hint. The (count, start) ordering makes the first hit the best fit
	// with the lowest start.
	b.bySize.AscendGreaterOrEqual(extent{count: need, start: hint}, func(e extent) bool {
		for _, p := range b.clipZone(e, flags) {
			at := max(p.start, hint)
			if at+need <= p.end() {
				start, found = at, true
				return false
			}
		}
		return true
	})
	if found {
		return start, need, true
	}

	// Pass 2: ignore the hint.
	b.bySize.AscendGreaterOrEqual(extent{count: need, start: 0}, func(e extent) bool {
		for _, p := range b.clipZone(e, flags) {
			if p.count >= need {
				start, found = p.start, true
				return false
			}
		}
		return true
	})
	if found {
		return start, need, true
	}
	if flags&FindFull != 0 {
		return 0, 0, false
	}
	return b.cacheFindPartial(need, flags)
}

// cacheFindPartial is the best-effort pass: the largest usable piece,
// shorter than requested.
func (b *Bitmap) cacheFindPartial(need uint64, flags FindFlag) (uint64, uint64, bool) {
	var start, bestLen uint64
	found := false
	b.bySize.Descend(func(e extent) bool {
		for _, p := range b.clipZone(e, flags) {
			if p.count > bestLen {
				start, bestLen = p.start, p.count
				found = true
			}
		}
		// Raw counts only shrink from here; once the raw count cannot
		// beat the best usable piece, stop.
		return e.count > bestLen
	})
	if !found {
		return 0, 0, false
	}
	return start, min(bestLen, need), true
}

// scanFind is the linear fallback used while the cache is stale. It
// walks windows from the one containing hint, wrapping once, keeping a
// running free run across window boundaries and tracking the largest run
// seen for the non-full fallback.
func (b *Bitmap) scanFind(need, hint uint64, flags FindFlag) (uint64, uint64, bool) {
	var (
		runStart, runLen   uint64
		bestStart, bestLen uint64
	)

	inZone := func(i uint64) bool {
		return flags&FindInZone == 0 && i >= b.zoneStart && i < b.zoneEnd
	}
	note := func() {
		if runLen > bestLen {
			bestStart, bestLen = runStart, runLen
		}
	}

	// scan visits bits [from, to) continuing the current run; returns the
	// found start when the run reaches need units.
	scan := func(from, to uint64) (uint64, bool) {
		w := int(from / b.opt.WindowBits)
		for from < to {
			wFirst, wCount := b.windowSpan(w)
			segEnd := min(wFirst+wCount, to)

			// Window-level shortcuts apply only when the segment covers
			// the whole window and the zone does not intersect it.
			whole := from == wFirst && segEnd == wFirst+wCount
			zoneFree := flags&FindInZone != 0 ||
				b.zoneEnd == b.zoneStart ||
				segEnd <= b.zoneStart || from >= b.zoneEnd

			switch {
			case whole && zoneFree && b.freeBits[w] == 0:
				note()
				runLen = 0
			case whole && zoneFree && b.freeBits[w] == wCount:
				if runLen == 0 {
					runStart = wFirst
				}
				runLen += wCount
			default:
				for i := from; i < segEnd; i++ {
					free := b.bits[i>>3]&(1<<(i&7)) == 0 && !inZone(i)
					if !free {
						note()
						runLen = 0
						continue
					}
					if runLen == 0 {
						runStart = i
					}
					runLen++
					if runLen == need {
						return runStart, true
					}
				}
			}
			if runLen >= need {
				return runStart, true
			}
			from = segEnd
			w++
		}
		return 0, false
	}

	if s, ok := scan(hint, b.nbits); ok {
		return s, need, true
	}
	// Wrap once. A run cannot continue across the address-space end.
	note()
	runLen = 0
	if hint > 0 {
		if s, ok := scan(0, hint); ok {
			return s, need, true
		}
		note()
	}

	if flags&FindFull != 0 || bestLen == 0 {
		return 0, 0, false
	}
	return bestStart, bestLen, true
}
