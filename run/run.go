package run

import (
	"fmt"
	"slices"
	"sort"
)

// Debug flag - enables overlap assertions in AddEntry (compile-time toggle).
const debugRuns = false

// Entry maps a contiguous logical range onto a contiguous physical range.
type Entry struct {
	VCN uint64 // first logical unit
	LCN uint64 // first physical unit
	Len uint64 // unit count, always > 0
}

// End returns the first logical unit past the entry.
func (e Entry) End() uint64 { return e.VCN + e.Len }

// Runs is an ordered run list. The zero value is an empty, usable list.
type Runs struct {
	entries []Entry
}

// Len returns the number of entries.
func (r *Runs) Len() int { return len(r.entries) }

// Empty reports whether the list describes no mapping at all.
func (r *Runs) Empty() bool { return len(r.entries) == 0 }

// Entry returns the i-th entry in VCN order.
func (r *Runs) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[i], true
}

// index returns the position of the entry covering vcn, or the insertion
// point and false when vcn falls in a hole.
func (r *Runs) index(vcn uint64) (int, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].End() > vcn
	})
	if i < len(r.entries) && r.entries[i].VCN <= vcn {
		return i, true
	}
	return i, false
}

// Lookup resolves a logical unit. On success it returns the physical unit,
// the number of units remaining in the run from vcn onward, and the entry
// index. ok is false when vcn falls in a hole or past the mapped range.
func (r *Runs) Lookup(vcn uint64) (lcn, remain uint64, idx int, ok bool) {
	i, covered := r.index(vcn)
	if !covered {
		return 0, 0, 0, false
	}
	e := r.entries[i]
	off := vcn - e.VCN
	return e.LCN + off, e.Len - off, i, true
}

// AddEntry inserts the mapping [vcn, vcn+count) -> [lcn, lcn+count),
// merging with neighbors that are contiguous both logically and
// physically. Overlap with an existing entry is a caller contract
// violation; the list's behavior is undefined if it happens (asserted
// when debugRuns is set).
//
// The bool mirrors the backing-storage failure contract of the on-disk
// format: in this implementation appends cannot fail, so the return is
// always true, and the list is never left partially mutated.
func (r *Runs) AddEntry(vcn, lcn, count uint64) bool {
	if count == 0 {
		return true
	}
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].VCN >= vcn
	})
	if debugRuns {
		if i < len(r.entries) && r.entries[i].VCN < vcn+count {
			panic(fmt.Sprintf("run: AddEntry overlap at vcn %d", vcn))
		}
		if i > 0 && r.entries[i-1].End() > vcn {
			panic(fmt.Sprintf("run: AddEntry overlap at vcn %d", vcn))
		}
	}

	mergeLeft := i > 0 &&
		r.entries[i-1].End() == vcn &&
		r.entries[i-1].LCN+r.entries[i-1].Len == lcn
	mergeRight := i < len(r.entries) &&
		vcn+count == r.entries[i].VCN &&
		lcn+count == r.entries[i].LCN

	switch {
	case mergeLeft && mergeRight:
		r.entries[i-1].Len += count + r.entries[i].Len
		r.entries = slices.Delete(r.entries, i, i+1)
	case mergeLeft:
		r.entries[i-1].Len += count
	case mergeRight:
		r.entries[i].VCN = vcn
		r.entries[i].LCN = lcn
		r.entries[i].Len += count
	default:
		r.entries = slices.Insert(r.entries, i, Entry{VCN: vcn, LCN: lcn, Len: count})
	}
	return true
}

// Truncate removes all mappings at or beyond vcn. An entry straddling vcn
// keeps its head.
func (r *Runs) Truncate(vcn uint64) {
	i, covered := r.index(vcn)
	if covered && r.entries[i].VCN < vcn {
		r.entries[i].Len = vcn - r.entries[i].VCN
		i++
	}
	r.entries = r.entries[:i]
}

// TruncateHead removes all mappings strictly before vcn. An entry
// straddling vcn keeps its tail, with VCN and LCN advanced together.
// Used when the front of a sparse attribute is deallocated.
func (r *Runs) TruncateHead(vcn uint64) {
	i, covered := r.index(vcn)
	if covered && r.entries[i].VCN < vcn {
		off := vcn - r.entries[i].VCN
		r.entries[i].VCN += off
		r.entries[i].LCN += off
		r.entries[i].Len -= off
	}
	r.entries = slices.Delete(r.entries, 0, i)
}

// IsMappedFull reports whether every logical unit in [start, end) is
// covered by some entry, with no holes. Used to decide whether a read
// range needs hole filling.
func (r *Runs) IsMappedFull(start, end uint64) bool {
	if start >= end {
		return true
	}
	cursor := start
	i, covered := r.index(cursor)
	if !covered {
		return false
	}
	for {
		e := r.entries[i]
		if e.End() >= end {
			return true
		}
		cursor = e.End()
		i++
		if i >= len(r.entries) || r.entries[i].VCN != cursor {
			return false
		}
	}
}
