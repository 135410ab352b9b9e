package bitmap

import (
	"context"
	"fmt"
	"io"
	"math/bits"
	"sync"

	"github.com/google/btree"

	"github.com/volkit/volkit/blockdev"
	"github.com/volkit/volkit/internal/format"
)

// LockClass tags a bitmap instance with its position in the fixed lock
// order. When both instances must be held, data is acquired before
// metadata, never the reverse.
type LockClass int

const (
	// LockData is the data-cluster bitmap. Acquired first.
	LockData LockClass = iota
	// LockMeta is the metadata record-slot bitmap. Acquired second.
	LockMeta
)

func (c LockClass) String() string {
	switch c {
	case LockData:
		return "data"
	case LockMeta:
		return "meta"
	default:
		return fmt.Sprintf("LockClass(%d)", int(c))
	}
}

// Options tunes a bitmap instance. The zero value selects defaults.
type Options struct {
	// WindowBits is the number of bits per window. Must be a power of two
	// and a multiple of 64 so windows stay byte-aligned on disk.
	// Default 32768 (one 4KB block of bitmap per window).
	WindowBits uint64

	// MaxExtents bounds the free-extent cache. When a mutation would push
	// the cache past this many nodes the cache is abandoned and searches
	// fall back to linear scans until RebuildCache. The default matches
	// the historical heuristic; treat it as a tunable, not a contract.
	MaxExtents int

	// Degree is the B-tree degree for the two extent indices.
	Degree int
}

// DefaultOptions are the values used for zero fields in Options.
var DefaultOptions = Options{
	WindowBits: 1 << 15,
	MaxExtents: 32 * 1024,
	Degree:     32,
}

// extent is one maximal free run tracked by the cache.
type extent struct {
	start uint64
	count uint64
}

func (e extent) end() uint64 { return e.start + e.count }

func lessByStart(a, b extent) bool {
	return a.start < b.start
}

func lessBySize(a, b extent) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	return a.start < b.start
}

// cacheState tracks the extent-cache lifecycle. Transitions:
// uninit -> current (lazy build), current -> stale (fragmentation
// threshold), stale -> current (explicit RebuildCache only).
type cacheState int8

const (
	cacheUninit cacheState = iota
	cacheCurrent
	cacheStale
)

// Bitmap is one managed bit space. Two instances exist per mounted
// volume: data clusters and metadata record slots.
//
// A single reader/writer lock guards both the window bitmap and the
// extent cache so readers never observe the two in mutually inconsistent
// states. IsFree/IsUsed/TotalFree run as readers; every mutation -
// SetFree, SetUsed, Find (which may lazily build the cache), Extend,
// zone changes - runs exclusive.
type Bitmap struct {
	mu    sync.RWMutex
	class LockClass
	opt   Options

	dev  blockdev.Device
	bits []byte // authoritative bit array, quad-word aligned length

	nbits     uint64
	nwnd      int
	bitsLast  uint64   // bits tracked by the final window
	freeBits  []uint64 // per-window free-bit counts
	totalFree uint64

	byStart   *btree.BTreeG[extent] // free runs by start
	bySize    *btree.BTreeG[extent] // free runs by (count, start)
	state     cacheState
	extentMax uint64 // upper estimate of the biggest free run

	zoneStart uint64
	zoneEnd   uint64

	dirty map[int]struct{} // windows pending Flush
}

// New creates an empty bitmap with the given lock class. Call Init before
// use.
func New(class LockClass, opt *Options) *Bitmap {
	o := DefaultOptions
	if opt != nil {
		if opt.WindowBits != 0 {
			o.WindowBits = opt.WindowBits
		}
		if opt.MaxExtents != 0 {
			o.MaxExtents = opt.MaxExtents
		}
		if opt.Degree != 0 {
			o.Degree = opt.Degree
		}
	}
	if o.WindowBits < 64 || o.WindowBits&(o.WindowBits-1) != 0 {
		panic("bitmap: WindowBits must be a power of two >= 64")
	}
	return &Bitmap{
		class: class,
		opt:   o,
		dirty: make(map[int]struct{}),
	}
}

// Class returns the instance's lock class.
func (b *Bitmap) Class() LockClass { return b.class }

// Init loads the persistent bit array for totalBits units from dev, or
// zero-initializes when dev is nil or shorter than the bitmap (a fresh
// volume). Window free counts are computed up front; the extent cache is
// not built until the first search needs it.
func (b *Bitmap) Init(dev blockdev.Device, totalBits uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if totalBits == 0 {
		return ErrInvalidCount
	}

	nbytes := format.BitmapBytes(totalBits)
	buf := make([]byte, nbytes)
	if dev != nil {
		if _, err := dev.ReadAt(buf, 0); err != nil && err != io.EOF {
			return fmt.Errorf("bitmap: load: %w", err)
		}
	}

	b.dev = dev
	b.bits = buf
	b.nbits = totalBits
	b.zoneStart, b.zoneEnd = 0, 0
	b.state = cacheUninit
	b.byStart, b.bySize = nil, nil
	b.dirty = make(map[int]struct{})

	// Bits past nbits in the tail byte are not addressable; force them
	// clear in memory so popcounts stay honest.
	b.clearTail()

	b.recountWindows()
	return nil
}

// clearTail zeroes storage bits at or past nbits.
func (b *Bitmap) clearTail() {
	if b.nbits%8 != 0 {
		b.bits[b.nbits/8] &= byte(1<<(b.nbits%8)) - 1
	}
	for i := (b.nbits + 7) / 8; i < uint64(len(b.bits)); i++ {
		b.bits[i] = 0
	}
}

// recountWindows recomputes nwnd, bitsLast, per-window free counts and
// totalFree from the bit array.
func (b *Bitmap) recountWindows() {
	wb := b.opt.WindowBits
	b.nwnd = int((b.nbits + wb - 1) / wb)
	b.bitsLast = b.nbits - uint64(b.nwnd-1)*wb

	b.freeBits = make([]uint64, b.nwnd)
	b.totalFree = 0
	for w := 0; w < b.nwnd; w++ {
		first, count := b.windowSpan(w)
		free := b.zeroes(first, count)
		b.freeBits[w] = free
		b.totalFree += free
	}
}

// windowSpan returns the first bit and bit count of window w.
func (b *Bitmap) windowSpan(w int) (first, count uint64) {
	first = uint64(w) * b.opt.WindowBits
	count = b.opt.WindowBits
	if w == b.nwnd-1 {
		count = b.bitsLast
	}
	return first, count
}

// Units returns the total number of tracked allocation units. Together
// with RangeUsed this satisfies the run package's PhysChecker.
func (b *Bitmap) Units() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nbits
}

// TotalFree returns the maintained running count of free units.
func (b *Bitmap) TotalFree() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalFree
}

// Windows returns the window count (for introspection tools).
func (b *Bitmap) Windows() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nwnd
}

// IsFree reports whether every bit in [first, first+count) is zero.
func (b *Bitmap) IsFree(first, count uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if count == 0 || first+count > b.nbits {
		return false
	}
	return b.zeroes(first, count) == count
}

// IsUsed reports whether every bit in [first, first+count) is one.
func (b *Bitmap) IsUsed(first, count uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if count == 0 || first+count > b.nbits {
		return false
	}
	return b.zeroes(first, count) == 0
}

// RangeUsed is IsUsed under the PhysChecker spelling.
func (b *Bitmap) RangeUsed(first, count uint64) bool {
	return b.IsUsed(first, count)
}

// zeroes counts zero bits in [first, first+count). Caller holds the lock.
func (b *Bitmap) zeroes(first, count uint64) uint64 {
	if count == 0 {
		return 0
	}
	var zeros uint64
	end := first + count

	// Head partial byte.
	if first%8 != 0 {
		byteEnd := min((first/8+1)*8, end)
		for i := first; i < byteEnd; i++ {
			if b.bits[i>>3]&(1<<(i&7)) == 0 {
				zeros++
			}
		}
		first = byteEnd
	}
	// Whole bytes.
	for first+8 <= end {
		zeros += uint64(bits.OnesCount8(^b.bits[first>>3]))
		first += 8
	}
	// Tail bits.
	for i := first; i < end; i++ {
		if b.bits[i>>3]&(1<<(i&7)) == 0 {
			zeros++
		}
	}
	return zeros
}

// SetUsed marks [first, first+count) as used. Already-used bits stay used
// with no double accounting; the operation is idempotent. The extent
// cache, when current, drops the range from its free nodes.
func (b *Bitmap) SetUsed(first, count uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setUsedLocked(first, count)
}

func (b *Bitmap) setUsedLocked(first, count uint64) error {
	if count == 0 {
		return ErrInvalidCount
	}
	if first+count > b.nbits || first+count < first {
		return ErrRange
	}
	b.mutate(first, count, true)
	if b.state == cacheCurrent {
		b.cacheRemoveRange(first, count)
	}
	return nil
}

// SetFree marks [first, first+count) as free. Already-free bits stay free
// with no double accounting. The extent cache, when current, merge-inserts
// a node covering the maximal free run around the range.
func (b *Bitmap) SetFree(first, count uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setFreeLocked(first, count)
}

func (b *Bitmap) setFreeLocked(first, count uint64) error {
	if count == 0 {
		return ErrInvalidCount
	}
	if first+count > b.nbits || first+count < first {
		return ErrRange
	}
	b.mutate(first, count, false)
	if b.state == cacheCurrent {
		b.cacheAddRun(first, count)
	}
	return nil
}

// mutate flips bits toward used or free, window by window, updating each
// touched window's free count, totalFree, and the dirty set by the number
// of bits actually flipped.
func (b *Bitmap) mutate(first, count uint64, used bool) {
	end := first + count
	for first < end {
		w := int(first / b.opt.WindowBits)
		wFirst, wCount := b.windowSpan(w)
		segEnd := min(wFirst+wCount, end)

		flipped := b.flipRange(first, segEnd, used)
		if flipped != 0 {
			if used {
				b.freeBits[w] -= flipped
				b.totalFree -= flipped
			} else {
				b.freeBits[w] += flipped
				b.totalFree += flipped
			}
			b.dirty[w] = struct{}{}
		}
		first = segEnd
	}
}

// flipRange sets or clears [first, end) and returns how many bits changed.
func (b *Bitmap) flipRange(first, end uint64, used bool) uint64 {
	var flipped uint64
	for first < end {
		idx := first >> 3
		lo := first & 7
		hi := min(uint64(8), lo+(end-first))
		mask := byte(1<<hi-1) &^ (byte(1<<lo) - 1)

		old := b.bits[idx]
		var nw byte
		if used {
			nw = old | mask
		} else {
			nw = old &^ mask
		}
		if nw != old {
			b.bits[idx] = nw
			flipped += uint64(bits.OnesCount8(old ^ nw))
		}
		first += hi - lo
	}
	return flipped
}

// Extend grows the bit space to newTotal bits; the new bits are free.
// The extent cache, if current, absorbs the new free run incrementally.
func (b *Bitmap) Extend(newTotal uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if newTotal < b.nbits {
		return ErrRange
	}
	if newTotal == b.nbits {
		return nil
	}
	old := b.nbits

	nbytes := format.BitmapBytes(newTotal)
	if uint64(len(b.bits)) < nbytes {
		grown := make([]byte, nbytes)
		copy(grown, b.bits)
		b.bits = grown
	}
	b.nbits = newTotal
	b.clearTail()

	// Windows from the one containing the old end onward need recounting;
	// cheaper to patch than recompute, but the last-window bookkeeping
	// changes shape, so recount from the boundary window.
	boundary := int(old / b.opt.WindowBits)
	wb := b.opt.WindowBits
	b.nwnd = int((newTotal + wb - 1) / wb)
	b.bitsLast = newTotal - uint64(b.nwnd-1)*wb

	freeBits := make([]uint64, b.nwnd)
	copy(freeBits, b.freeBits[:boundary])
	b.freeBits = freeBits
	b.totalFree = 0
	for w := 0; w < boundary; w++ {
		b.totalFree += b.freeBits[w]
	}
	for w := boundary; w < b.nwnd; w++ {
		first, count := b.windowSpan(w)
		free := b.zeroes(first, count)
		b.freeBits[w] = free
		b.totalFree += free
		b.dirty[w] = struct{}{}
	}

	if b.state == cacheCurrent {
		b.cacheAddRun(old, newTotal-old)
	}
	return nil
}

// Flush writes dirty windows back through the device, window-granular,
// then syncs. A nil device (pure in-memory instance) just clears the
// dirty set.
func (b *Bitmap) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		b.dirty = make(map[int]struct{})
		return nil
	}
	for w := range b.dirty {
		if err := ctx.Err(); err != nil {
			return err
		}
		first, count := b.windowSpan(w)
		lo := first / 8
		hi := min(format.QuadAlign64((first+count+7)/8), uint64(len(b.bits)))
		if _, err := b.dev.WriteAt(b.bits[lo:hi], int64(lo)); err != nil {
			return fmt.Errorf("bitmap: flush window %d: %w", w, err)
		}
	}
	if err := b.dev.Sync(ctx); err != nil {
		return err
	}
	b.dirty = make(map[int]struct{})
	return nil
}
