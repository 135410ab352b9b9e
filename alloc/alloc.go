// Package alloc is the allocation façade over the two cluster bitmaps.
//
// It combines the windowed bitmap searches with the reserved-zone policy
// and caller hints to satisfy allocation requests, and owns the
// deallocation path including best-effort discard (TRIM) hints to the
// block layer. Two independent bit spaces are managed: data clusters and
// metadata record slots. They carry distinct lock identities with a fixed
// acquisition order (data before metadata); the façade touches one at a
// time, so the order can never invert here.
package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/volkit/volkit/bitmap"
	"github.com/volkit/volkit/blockdev"
	"github.com/volkit/volkit/run"
)

// Runtime debug flag for allocation logging - controlled by VOLKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("VOLKIT_LOG_ALLOC") != ""

// PoolKind selects which bit space a request draws from.
type PoolKind int

const (
	// PoolData allocates data clusters.
	PoolData PoolKind = iota
	// PoolMeta allocates metadata record slots. A separate bitmap
	// instance entirely, so record allocation never contends with data
	// allocation locks.
	PoolMeta
)

// Options configures an Allocator. The zero value selects defaults.
type Options struct {
	// UnitBytes is the byte size of one allocation unit, used to convert
	// unit ranges into device byte ranges for discard. Default 4096.
	UnitBytes uint64

	// MinZoneUnits is the smallest reservation RefreshZone will keep
	// ahead of record-table growth. Default 100.
	MinZoneUnits uint64

	// ZoneShift sets the zone target as totalFree >> ZoneShift. Policy,
	// not contract; the only hard rule is that ordinary requests never
	// receive zone units. Default 4.
	ZoneShift uint

	// Logger receives discard-failure advisories. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// AllocOptions shapes a single allocation request.
type AllocOptions struct {
	// Pool selects data clusters or metadata record slots.
	Pool PoolKind

	// FullMatch fails the request rather than return a shorter run.
	FullMatch bool

	// ZoneOK permits the result to come from the reserved zone. Only the
	// zone's privileged owner (record-table growth) sets this.
	ZoneOK bool
}

// Stats counts allocator activity, for tests and instrumentation.
type Stats struct {
	Allocs          int
	AllocFailures   int
	Frees           int
	Discards        int
	DiscardFailures int
}

// Allocator is the space-manager façade handed to the attribute,
// directory and record managers.
type Allocator struct {
	data *bitmap.Bitmap
	meta *bitmap.Bitmap
	dev  blockdev.Device
	log  *slog.Logger

	unitBytes    uint64
	minZoneUnits uint64
	zoneShift    uint

	mu    sync.Mutex
	stats Stats
}

// New wires the façade. data and meta must carry the LockData and
// LockMeta classes respectively; anything else is a wiring bug caught
// here rather than as a deadlock later. dev may be nil when the volume
// offers no discard path.
func New(data, meta *bitmap.Bitmap, dev blockdev.Device, opt *Options) (*Allocator, error) {
	if data.Class() != bitmap.LockData || meta.Class() != bitmap.LockMeta {
		return nil, ErrLockClass
	}
	a := &Allocator{
		data:         data,
		meta:         meta,
		dev:          dev,
		log:          slog.Default(),
		unitBytes:    4096,
		minZoneUnits: 100,
		zoneShift:    4,
	}
	if opt != nil {
		if opt.UnitBytes != 0 {
			a.unitBytes = opt.UnitBytes
		}
		if opt.MinZoneUnits != 0 {
			a.minZoneUnits = opt.MinZoneUnits
		}
		if opt.ZoneShift != 0 {
			a.zoneShift = opt.ZoneShift
		}
		if opt.Logger != nil {
			a.log = opt.Logger
		}
	}
	return a, nil
}

func (a *Allocator) pool(k PoolKind) *bitmap.Bitmap {
	if k == PoolMeta {
		return a.meta
	}
	return a.data
}

// Allocate reserves units allocation units near hint and returns them as
// a single physical run. The entry's VCN is zero; the caller places the
// run in its own logical space when appending to a run list.
//
// Without FullMatch the returned run may be shorter than requested;
// callers needing the rest retry or use AllocateRuns. ErrNoSpace means
// no run of the required shape exists under the current policy.
func (a *Allocator) Allocate(units, hint uint64, opt AllocOptions) (run.Entry, error) {
	flags := bitmap.FindMarkUsed
	if opt.FullMatch {
		flags |= bitmap.FindFull
	}
	if opt.ZoneOK {
		flags |= bitmap.FindInZone
	}

	start, got, err := a.pool(opt.Pool).Find(units, hint, flags)
	if err != nil {
		a.count(func(s *Stats) { s.AllocFailures++ })
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[ALLOC] pool=%d need=%d hint=%d: %v\n",
				opt.Pool, units, hint, err)
		}
		return run.Entry{}, err
	}
	a.count(func(s *Stats) { s.Allocs++ })
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[ALLOC] pool=%d need=%d hint=%d -> [%d,%d)\n",
			opt.Pool, units, hint, start, start+got)
	}
	return run.Entry{LCN: start, Len: got}, nil
}

// AllocateRuns satisfies units with as many runs as the free space shape
// requires: the fragmented fallback after a full-match Allocate fails.
// On any shortfall everything reserved so far is released and ErrNoSpace
// returned, so the caller never sees a partial reservation.
func (a *Allocator) AllocateRuns(units, hint uint64, opt AllocOptions) ([]run.Entry, error) {
	var out []run.Entry
	remaining := units
	opt.FullMatch = false

	for remaining > 0 {
		e, err := a.Allocate(remaining, hint, opt)
		if err != nil {
			for _, got := range out {
				// Release is best-effort bookkeeping rollback; the bits
				// were only just reserved so SetFree cannot fail.
				_ = a.pool(opt.Pool).SetFree(got.LCN, got.Len)
			}
			return nil, err
		}
		out = append(out, e)
		remaining -= e.Len
		hint = e.LCN + e.Len
	}
	return out, nil
}

// Deallocate returns data-cluster runs to the free pool. With trim set,
// a discard hint for each freed physical range is queued to the block
// layer; discard is an optimization, so failures are logged and never
// propagated, and completion is not awaited before the free is
// considered committed.
func (a *Allocator) Deallocate(entries []run.Entry, trim bool) error {
	for _, e := range entries {
		if e.Len == 0 {
			continue
		}
		if err := a.data.SetFree(e.LCN, e.Len); err != nil {
			return fmt.Errorf("alloc: free [%d,%d): %w", e.LCN, e.LCN+e.Len, err)
		}
		a.count(func(s *Stats) { s.Frees++ })
		if trim {
			a.discard(e.LCN, e.Len)
		}
	}
	return nil
}

// FreeRecords returns metadata record slots to the free pool. Record
// slots live inside already-allocated metadata clusters, so no discard
// is ever issued for them.
func (a *Allocator) FreeRecords(first, count uint64) error {
	if err := a.meta.SetFree(first, count); err != nil {
		return fmt.Errorf("alloc: free records [%d,%d): %w", first, first+count, err)
	}
	a.count(func(s *Stats) { s.Frees++ })
	return nil
}

func (a *Allocator) discard(first, count uint64) {
	if a.dev == nil {
		return
	}
	off := int64(first * a.unitBytes)
	length := int64(count * a.unitBytes)
	if err := a.dev.Discard(off, length); err != nil {
		a.count(func(s *Stats) { s.DiscardFailures++ })
		a.log.Warn("discard hint failed",
			"first", first, "count", count, "err", err)
		return
	}
	a.count(func(s *Stats) { s.Discards++ })
}

// RefreshZone re-establishes the reserved zone ahead of the record
// table, whose current end (in data-cluster units) is recordEnd. The
// target size scales with free space and never drops below MinZoneUnits;
// when no contiguous run of even the minimum size exists the zone is
// left clear and ordinary allocation proceeds unreserved. The sizing is
// policy; the invariant that ordinary Find skips the zone is enforced in
// the bitmap itself.
func (a *Allocator) RefreshZone(recordEnd uint64) error {
	if a.data.ZoneLen() >= a.minZoneUnits {
		return nil
	}
	if err := a.data.SetZone(0, 0); err != nil {
		return err
	}

	target := a.data.TotalFree() >> a.zoneShift
	if target < a.minZoneUnits {
		target = a.minZoneUnits
	}
	for target >= a.minZoneUnits {
		start, got, err := a.data.Find(target, recordEnd, bitmap.FindFull)
		if err == nil {
			return a.data.SetZone(start, got)
		}
		if !errors.Is(err, ErrNoSpace) {
			return err
		}
		target /= 2
	}
	// Volume too full or too fragmented for any reservation.
	return nil
}

// Stats returns a snapshot of the activity counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Allocator) count(f func(*Stats)) {
	a.mu.Lock()
	f(&a.stats)
	a.mu.Unlock()
}
