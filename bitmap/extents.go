package bitmap

import "github.com/google/btree"

// Free-extent cache maintenance. Every helper here runs with the write
// lock held and keeps the two indices transactionally in sync: an extent
// present in byStart is present in bySize and vice versa, always.

// cacheLen returns the number of cached free extents.
func (b *Bitmap) cacheLen() int {
	if b.byStart == nil {
		return 0
	}
	return b.byStart.Len()
}

// cacheInsert adds one extent to both indices, tripping the staleness
// threshold when the cache grows past MaxExtents.
func (b *Bitmap) cacheInsert(e extent) {
	b.byStart.ReplaceOrInsert(e)
	b.bySize.ReplaceOrInsert(e)
	if e.count > b.extentMax {
		b.extentMax = e.count
	}
	if b.byStart.Len() > b.opt.MaxExtents {
		b.cacheAbandon()
	}
}

// cacheDelete removes one extent from both indices.
func (b *Bitmap) cacheDelete(e extent) {
	b.byStart.Delete(e)
	b.bySize.Delete(e)
}

// cacheAbandon drops the cache and marks it stale. It is never rebuilt
// implicitly; RebuildCache is the only way back to current. This bounds
// worst-case mutation cost on pathologically fragmented volumes.
func (b *Bitmap) cacheAbandon() {
	b.byStart = nil
	b.bySize = nil
	b.state = cacheStale
}

// cacheAddRun merge-inserts the free run [first, first+count), unioning
// it with every cached extent it touches. Because the cache mirrors the
// maximal free runs exactly while current, neighbor detection never needs
// a bitmap scan.
func (b *Bitmap) cacheAddRun(first, count uint64) {
	newStart, newEnd := first, first+count

	var touching []extent
	b.byStart.DescendLessOrEqual(extent{start: newEnd}, func(e extent) bool {
		if e.end() < newStart {
			return false // strictly before, not even adjacent
		}
		touching = append(touching, e)
		return true
	})
	for _, e := range touching {
		b.cacheDelete(e)
		newStart = min(newStart, e.start)
		newEnd = max(newEnd, e.end())
	}
	b.cacheInsert(extent{start: newStart, count: newEnd - newStart})
}

// cacheRemoveRange drops [first, first+count) from the free cache,
// splitting extents that straddle the boundary. Removing bits that were
// never cached is a no-op, which keeps SetUsed idempotent.
func (b *Bitmap) cacheRemoveRange(first, count uint64) {
	end := first + count

	var overlapping []extent
	b.byStart.DescendLessOrEqual(extent{start: end - 1}, func(e extent) bool {
		if e.end() <= first {
			return false
		}
		overlapping = append(overlapping, e)
		return true
	})
	for _, e := range overlapping {
		b.cacheDelete(e)
		if e.start < first {
			b.cacheInsert(extent{start: e.start, count: first - e.start})
		}
		if b.state == cacheCurrent && e.end() > end {
			b.cacheInsert(extent{start: end, count: e.end() - end})
		}
		// A split can push the cache past MaxExtents; once abandoned,
		// stop touching it.
		if b.state != cacheCurrent {
			return
		}
	}
}

// buildCache scans the bitmap for maximal free runs and loads both
// indices. If the volume is too fragmented to track cheaply the cache is
// abandoned instead, leaving searches on the linear path.
func (b *Bitmap) buildCache() {
	b.byStart = btree.NewG(b.opt.Degree, lessByStart)
	b.bySize = btree.NewG(b.opt.Degree, lessBySize)
	b.extentMax = 0
	b.state = cacheCurrent

	var runStart uint64
	inRun := false
	for w := 0; w < b.nwnd && b.state == cacheCurrent; w++ {
		first, count := b.windowSpan(w)
		switch b.freeBits[w] {
		case 0:
			if inRun {
				b.cacheInsert(extent{start: runStart, count: first - runStart})
				inRun = false
			}
		case count:
			if !inRun {
				runStart = first
				inRun = true
			}
		default:
			end := first + count
			for i := first; i < end; i++ {
				if b.bits[i>>3]&(1<<(i&7)) == 0 {
					if !inRun {
						runStart = i
						inRun = true
					}
				} else if inRun {
					b.cacheInsert(extent{start: runStart, count: i - runStart})
					inRun = false
					if b.state != cacheCurrent {
						return
					}
				}
			}
		}
	}
	if inRun && b.state == cacheCurrent {
		b.cacheInsert(extent{start: runStart, count: b.nbits - runStart})
	}
}

// RebuildCache discards the current extent cache and rebuilds it from the
// bitmap. This is the only transition from stale back to current.
func (b *Bitmap) RebuildCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildCache()
}
