package run

import (
	"github.com/volkit/volkit/internal/format"
)

// On-disk run encoding.
//
// A packed run buffer is a sequence of variable-length records:
//
//	[header byte] [length field] [offset-delta field]
//
// The header's low nibble is the byte width of the length field; the high
// nibble is the byte width of the signed physical-offset delta field. The
// delta is relative to the previous record's physical start (the first
// record's delta is absolute, i.e. relative to zero). A zero high nibble
// means the record describes a hole: the logical cursor advances with no
// physical mapping. A zero header byte terminates the sequence.
//
// Fields are little-endian, minimal-width, sign-extended on decode. The
// encoder always emits minimal widths; the lenient decoder accepts
// over-wide encodings for compatibility, the strict decoder rejects them.

// PhysChecker is the cross-check hook used by UnpackStrict: it answers
// whether a physical range lies inside the managed space and is currently
// marked used. The cluster bitmap satisfies it.
type PhysChecker interface {
	Units() uint64
	RangeUsed(first, count uint64) bool
}

// Pack serializes the mappings for the logical range [svcn, svcn+length)
// into buf, including holes (encoded with a zero-width offset field) and
// the zero terminator.
//
// If buf is too small, Pack emits as many whole records as fit and
// reports via packedVCNs how many logical units were actually packed, so
// the caller can split the list across multiple on-disk records. The
// returned byte count always includes the terminator.
func (r *Runs) Pack(svcn, length uint64, buf []byte) (n int, packedVCNs uint64, err error) {
	if len(buf) == 0 {
		return 0, 0, nil
	}
	pos := 0
	prevLCN := int64(0)
	vcn := svcn
	end := svcn + length

	for vcn < end {
		i, covered := r.index(vcn)

		var segLen uint64
		var lcn uint64
		hole := !covered
		if hole {
			// Hole up to the next entry or the end of the requested range.
			segLen = end - vcn
			if i < len(r.entries) && r.entries[i].VCN < end {
				segLen = r.entries[i].VCN - vcn
			}
		} else {
			e := r.entries[i]
			off := vcn - e.VCN
			lcn = e.LCN + off
			segLen = min(e.Len-off, end-vcn)
		}

		lenSize := format.PackedSize(int64(segLen))
		lcnSize := 0
		var delta int64
		if !hole {
			delta = int64(lcn) - prevLCN
			lcnSize = format.PackedSize(delta)
		}

		// Whole record plus terminator must fit, or we stop here.
		rec := 1 + lenSize + lcnSize
		if pos+rec+1 > len(buf) {
			break
		}

		buf[pos] = byte(lenSize) | byte(lcnSize)<<4
		pos++
		format.PutPacked(buf, pos, lenSize, int64(segLen))
		pos += lenSize
		if !hole {
			format.PutPacked(buf, pos, lcnSize, delta)
			pos += lcnSize
			prevLCN = int64(lcn)
		}

		vcn += segLen
		packedVCNs += segLen
	}

	buf[pos] = 0
	pos++
	return pos, packedVCNs, nil
}

// Unpack decodes an on-disk run buffer describing the inclusive logical
// range [svcn, evcn] and adds the resulting entries to r. Records with a
// zero-width offset field advance the logical cursor without adding an
// entry (holes stay holes).
//
// The decoded total must reconcile exactly with evcn-svcn+1, otherwise
// ErrCorrupt is returned. A buffer ending mid-field returns ErrTruncated.
// On any error r is left unchanged.
func (r *Runs) Unpack(buf []byte, svcn, evcn uint64) error {
	return r.unpack(buf, svcn, evcn, false, nil)
}

// UnpackStrict is Unpack with extra integrity checking: field widths must
// be minimal for their values, and every referenced physical range must
// lie within chk's managed space and be marked used. Enabled when the
// mount runs with paranoia checks.
func (r *Runs) UnpackStrict(buf []byte, svcn, evcn uint64, chk PhysChecker) error {
	return r.unpack(buf, svcn, evcn, true, chk)
}

func (r *Runs) unpack(buf []byte, svcn, evcn uint64, strict bool, chk PhysChecker) error {
	// evcn+1 == svcn is the canonical empty encoding.
	if evcn+1 == svcn {
		if len(buf) == 0 {
			return ErrTruncated
		}
		if buf[0] != 0 {
			return ErrCorrupt
		}
		return nil
	}
	if evcn < svcn {
		return ErrCorrupt
	}

	var decoded []Entry
	pos := 0
	vcn := svcn
	prevLCN := int64(0)

	for {
		if pos >= len(buf) {
			return ErrTruncated
		}
		h := buf[pos]
		pos++
		if h == 0 {
			break
		}

		lenSize := int(h & 0xF)
		lcnSize := int(h >> 4)
		if lenSize == 0 || lenSize > 8 || lcnSize > 8 {
			return ErrCorrupt
		}
		if pos+lenSize+lcnSize > len(buf) {
			return ErrTruncated
		}

		l := format.ReadPacked(buf, pos, lenSize)
		pos += lenSize
		if l <= 0 {
			return ErrCorrupt
		}
		if strict && format.PackedSize(l) != lenSize {
			return ErrCorrupt
		}
		count := uint64(l)

		if lcnSize > 0 {
			delta := format.ReadPacked(buf, pos, lcnSize)
			pos += lcnSize
			if strict && format.PackedSize(delta) != lcnSize {
				return ErrCorrupt
			}
			lcn := prevLCN + delta
			if lcn < 0 {
				return ErrCorrupt
			}
			if chk != nil {
				ulcn := uint64(lcn)
				if ulcn+count > chk.Units() || !chk.RangeUsed(ulcn, count) {
					return ErrCorrupt
				}
			}
			decoded = append(decoded, Entry{VCN: vcn, LCN: uint64(lcn), Len: count})
			prevLCN = lcn
		}

		prev := vcn
		vcn += count
		if vcn < prev || vcn > evcn+1 {
			return ErrCorrupt
		}
	}

	if vcn != evcn+1 {
		return ErrCorrupt
	}

	for _, e := range decoded {
		r.AddEntry(e.VCN, e.LCN, e.Len)
	}
	return nil
}

// HighestVCN scans an encoded run buffer and returns the highest logical
// unit it describes, counting both mapped records and holes, without
// materializing a run list. ok is false when the buffer describes zero
// units. Used for cheap bounds checks before a full decode.
func HighestVCN(svcn uint64, buf []byte) (highest uint64, ok bool, err error) {
	pos := 0
	var total uint64
	for {
		if pos >= len(buf) {
			return 0, false, ErrTruncated
		}
		h := buf[pos]
		pos++
		if h == 0 {
			break
		}
		lenSize := int(h & 0xF)
		lcnSize := int(h >> 4)
		if lenSize == 0 || lenSize > 8 || lcnSize > 8 {
			return 0, false, ErrCorrupt
		}
		if pos+lenSize+lcnSize > len(buf) {
			return 0, false, ErrTruncated
		}
		l := format.ReadPacked(buf, pos, lenSize)
		if l <= 0 {
			return 0, false, ErrCorrupt
		}
		pos += lenSize + lcnSize
		total += uint64(l)
	}
	if total == 0 {
		return 0, false, nil
	}
	return svcn + total - 1, true, nil
}
