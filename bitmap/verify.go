package bitmap

import "fmt"

// Verify walks the accounting invariants. It is a debug aid: expensive
// (full bitmap popcount) and intended for tests and paranoia mounts. Any
// mismatch wraps ErrInconsistent; higher layers treat that as filesystem
// corruption and may force a read-only remount. Nothing is auto-repaired.
func (b *Bitmap) Verify() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total uint64
	for w := 0; w < b.nwnd; w++ {
		first, count := b.windowSpan(w)
		zeros := b.zeroes(first, count)
		if zeros != b.freeBits[w] {
			return fmt.Errorf("%w: window %d free count %d, bitmap has %d",
				ErrInconsistent, w, b.freeBits[w], zeros)
		}
		total += zeros
	}
	if total != b.totalFree {
		return fmt.Errorf("%w: totalFree %d, window sum %d",
			ErrInconsistent, b.totalFree, total)
	}

	if b.state != cacheCurrent {
		return nil
	}

	// The cache, when current, must contain exactly the maximal free runs:
	// sorted, non-mergeable, covering every free bit, mirrored in both
	// indices.
	if b.byStart.Len() != b.bySize.Len() {
		return fmt.Errorf("%w: index sizes differ: byStart %d, bySize %d",
			ErrInconsistent, b.byStart.Len(), b.bySize.Len())
	}

	var cacheTotal uint64
	var prev extent
	first := true
	var walkErr error
	b.byStart.Ascend(func(e extent) bool {
		if e.count == 0 {
			walkErr = fmt.Errorf("%w: empty extent at %d", ErrInconsistent, e.start)
			return false
		}
		if !first && prev.end() >= e.start {
			walkErr = fmt.Errorf("%w: extents [%d,%d) and [%d,%d) mergeable or overlapping",
				ErrInconsistent, prev.start, prev.end(), e.start, e.end())
			return false
		}
		if b.zeroes(e.start, e.count) != e.count {
			walkErr = fmt.Errorf("%w: cached extent [%d,%d) overlaps used bits",
				ErrInconsistent, e.start, e.end())
			return false
		}
		if _, dup := b.bySize.Get(e); !dup {
			walkErr = fmt.Errorf("%w: extent [%d,%d) missing from size index",
				ErrInconsistent, e.start, e.end())
			return false
		}
		cacheTotal += e.count
		prev, first = e, false
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	if cacheTotal != b.totalFree {
		return fmt.Errorf("%w: cache tracks %d free units, bitmap has %d",
			ErrInconsistent, cacheTotal, b.totalFree)
	}
	return nil
}
